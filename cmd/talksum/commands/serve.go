package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talksum/talksum/pkg/talksum/bot"
	"github.com/talksum/talksum/pkg/talksum/config"
	"github.com/talksum/talksum/pkg/talksum/gateway"
	"github.com/talksum/talksum/pkg/talksum/scheduler"
	"github.com/talksum/talksum/pkg/talksum/store"
	"github.com/talksum/talksum/pkg/talksum/summarize"
	"github.com/talksum/talksum/pkg/talksum/talk"
	"github.com/talksum/talksum/pkg/talksum/textproc"
)

// newServeCmd creates the `talksum serve` command that starts the bot.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bot webhook server and the job scheduler",
		Long: `Start TalkSum: receive Talk events on the webhook endpoint, store
conversation, answer bot commands, and fire scheduled daily summaries.

Examples:
  talksum serve
  talksum serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	if !config.ResolveSecret(cfg, logger) {
		return fmt.Errorf("no bot secret configured — run 'talksum setup' or set APP_SECRET")
	}

	location := time.Local
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
		location = loc
	}

	// ── Persistence ──
	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// ── External collaborators ──
	backend := textproc.New(cfg.Nextcloud.URL, cfg.Nextcloud.AppID, logger)
	messenger := talk.NewClient(cfg.Nextcloud.URL, cfg.Nextcloud.Secret, logger)

	// ── Core components ──
	gen := summarize.New(st, backend, location, logger)

	// The scheduler handler is bound after the bot exists; scheduling
	// starts only once the whole pipeline is wired.
	var b *bot.Bot
	sched := scheduler.New(st, func(ctx context.Context, job *scheduler.Job) error {
		return b.HandleJob(ctx, job)
	}, logger)
	b = bot.New(cfg.Bot, st, sched, gen, messenger, logger)

	gw := gateway.New(cfg.Gateway, cfg.Nextcloud.Secret, b, logger)

	// ── Start ──
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b.Start(ctx)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	logger.Info("TalkSum running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"trigger", cfg.Bot.Trigger,
		"address", cfg.Gateway.Address,
		"timezone", location.String(),
	)

	// ── Wait for shutdown ──
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("gateway shutdown error", "error", err)
	}
	sched.Stop()
	b.Stop()

	logger.Info("stopped")
	return nil
}
