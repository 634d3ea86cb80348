// Package config – keyring.go resolves the shared bot secret.
//
// Priority:
//  1. OS keyring (Linux: Secret Service, macOS: Keychain, Windows:
//     Credential Manager)
//  2. Environment variable (APP_SECRET)
//  3. config.yaml value (least secure — plaintext on disk)
package config

import (
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "talksum"

	// keyringBotSecret is the key name for the shared bot secret.
	keyringBotSecret = "bot_secret"
)

// StoreSecret saves the bot secret to the OS keyring.
func StoreSecret(value string) error {
	return keyring.Set(keyringService, keyringBotSecret, value)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__talksum_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveSecret resolves the bot secret using the priority chain and
// updates the config in place. Returns false when no secret was found
// anywhere.
func ResolveSecret(cfg *Config, logger *slog.Logger) bool {
	if val, err := keyring.Get(keyringService, keyringBotSecret); err == nil && val != "" {
		cfg.Nextcloud.Secret = val
		logger.Debug("bot secret resolved from OS keyring")
		return true
	}

	if val := os.Getenv("APP_SECRET"); val != "" {
		cfg.Nextcloud.Secret = val
		logger.Debug("bot secret resolved from environment")
		return true
	}

	if cfg.Nextcloud.Secret != "" {
		logger.Warn("bot secret is stored in plaintext in the config file — consider the OS keyring or APP_SECRET")
		return true
	}
	return false
}
