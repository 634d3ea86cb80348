// Package gateway exposes the HTTP surface of the bot: the signed Talk
// webhook, a health endpoint, and Prometheus metrics.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talksum/talksum/pkg/talksum/talk"
)

// maxBodyBytes bounds webhook payloads. Talk messages are limited to a few
// kilobytes server-side; anything larger is not a legitimate event.
const maxBodyBytes = 256 * 1024

// Receiver accepts classified inbound events. Implemented by bot.Bot.
type Receiver interface {
	Enqueue(ev *talk.Event) bool
}

// Config holds the gateway settings.
type Config struct {
	// Address is the listen address (host:port).
	Address string `yaml:"address"`
}

// Gateway is the HTTP server.
type Gateway struct {
	cfg      Config
	secret   string
	receiver Receiver
	server   *http.Server
	logger   *slog.Logger

	startedAt time.Time
}

// New creates a Gateway. secret is the shared bot secret used to verify
// webhook signatures.
func New(cfg Config, secret string, receiver Receiver, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":9032"
	}
	return &Gateway{
		cfg:      cfg,
		secret:   secret,
		receiver: receiver,
		logger:   logger.With("component", "gateway"),
	}
}

// Start starts the HTTP server.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/bot", g.handleWebhook)

	g.server = &http.Server{
		Addr:    g.cfg.Address,
		Handler: g.securityHeadersMiddleware(mux),
	}

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", g.cfg.Address)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping...")
	return g.server.Shutdown(ctx)
}

// handleWebhook receives one signed Talk bot event. The response is always
// an empty acknowledgement; user-visible output goes through the bot's
// send path, never through this response.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		g.logger.Warn("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	random := r.Header.Get("X-Nextcloud-Talk-Random")
	signature := r.Header.Get("X-Nextcloud-Talk-Signature")
	if !talk.VerifySignature(g.secret, random, signature, body) {
		g.logger.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var ev talk.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		g.logger.Warn("undecodable webhook payload", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	g.receiver.Enqueue(&ev)
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(g.startedAt).String(),
	})
}

// securityHeadersMiddleware adds standard security headers to all responses.
func (g *Gateway) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
