package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/orangefortress/vote-backend/internal/config"
	"github.com/orangefortress/vote-backend/internal/evidence"
	"github.com/orangefortress/vote-backend/internal/match"
	"github.com/orangefortress/vote-backend/internal/notifier"
	"github.com/orangefortress/vote-backend/internal/reconcile"
	"github.com/orangefortress/vote-backend/internal/relay"
	"github.com/orangefortress/vote-backend/internal/server"
	"github.com/orangefortress/vote-backend/internal/storage"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.EmailWebhookSecret == "" {
		log.Warn("EMAIL_WEBHOOK_SECRET not set, email webhook will reject everything")
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Optional telegram notifications for confirmed tips
	var notify reconcile.Notifier
	if cfg.BotToken != "" && cfg.AdminChatID != 0 {
		tg, err := notifier.New(cfg.BotToken, cfg.AdminChatID, log)
		if err != nil {
			log.Error("init notifier", "error", err)
			os.Exit(1)
		}
		notify = tg
		log.Info("telegram notifier initialized", "chat_id", cfg.AdminChatID)
	}

	// Reconciliation pipeline
	parser := evidence.NewParser(cfg.EmailAllowList)
	matcher := match.New(cfg.MatchAmountWeight)
	window := time.Duration(cfg.MatchWindowMinutes) * time.Minute
	reconciler := reconcile.New(store, matcher, window, notify, log)

	// Zap sweeper, enabled when a profile npub is configured
	var sweeper *reconcile.ZapSweeper
	if cfg.ProfileNpub != "" {
		pubkeyHex, err := relay.NpubToHex(cfg.ProfileNpub)
		if err != nil {
			log.Error("decode PROFILE_NPUB", "error", err)
			os.Exit(1)
		}

		collector := relay.NewCollector(log)
		sweeper = reconcile.NewZapSweeper(
			store, collector, reconciler,
			cfg.Relays, pubkeyHex,
			time.Duration(cfg.SweepLookbackMinutes)*time.Minute,
			time.Duration(cfg.SweepTimeoutMs)*time.Millisecond,
			log,
		)
		log.Info("zap sweeper initialized", "relays", len(cfg.Relays))
	} else {
		log.Info("zap sweeper disabled: PROFILE_NPUB not set")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background sweep loop
	if sweeper != nil && cfg.SweepIntervalSeconds > 0 {
		go sweeper.Loop(ctx, time.Duration(cfg.SweepIntervalSeconds)*time.Second)
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start HTTP server
	srv := server.New(cfg, store, parser, reconciler, sweeper, log)
	if err := srv.Start(ctx, cfg.Port); err != nil && err != http.ErrServerClosed {
		log.Error("http server", "error", err)
		os.Exit(1)
	}
}
