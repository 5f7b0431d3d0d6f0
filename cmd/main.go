package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"bonbot/internal/bot"
	"bonbot/internal/config"
	cronpkg "bonbot/internal/cron"
	"bonbot/internal/limiter"
	"bonbot/internal/mail"
	"bonbot/internal/middleware"
	"bonbot/internal/router"
	"bonbot/internal/session"
	"bonbot/internal/store"
	"bonbot/internal/wizard"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Data store ---
	tree, err := newTree(cfg)
	if err != nil {
		logger.Fatal("Failed to open data store", zap.Error(err))
	}
	logger.Info("Data store ready", zap.String("driver", strings.ToLower(cfg.Store.Driver)))

	// --- Code-request throttle (Redis with in-memory fallback) ---
	throttle, throttleErr := limiter.NewRedisThrottle(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB)
	if throttleErr != nil {
		logger.Warn("Redis unavailable for code throttle, using in-memory fallback", zap.Error(throttleErr))
		throttle = limiter.NewMemoryThrottle()
	}

	// --- Mailbox + code limiter ---
	fetcher := mail.NewGmailFetcher(cfg.Mail, logger)
	lim := limiter.New(tree, throttle, fetcher, cfg.Bot.CodeCoolDown, logger)

	// --- Admin wizards ---
	wiz := wizard.New(session.NewStore(), tree, logger)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Webhook deduper (Redis with in-memory fallback) ---
	updateDeduper, dedupeErr := middleware.NewUpdateDeduper(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		10*time.Minute,
	)
	if dedupeErr != nil {
		logger.Warn("Redis unavailable for webhook dedup, using in-memory fallback", zap.Error(dedupeErr))
	}

	// --- Bot ---
	teleBot, err := bot.New(cfg, tree, wiz, lim, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// --- Routes ---
	router.Setup(e, logger, updateDeduper, teleBot.WebhookHandler())

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg, tree, teleBot, logger)
	scheduler.Start()

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting Bonbot server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	go teleBot.Start()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	teleBot.Stop()

	ctx := scheduler.Stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newTree opens the configured data store backend. Firebase is the
// default; STORE_DRIVER=mysql keeps the whole tree in a local table for
// self-hosted setups.
func newTree(cfg *config.Config) (store.Tree, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "", "firebase":
		if cfg.Store.FirebaseURL == "" {
			return nil, fmt.Errorf("FIREBASE_DATABASE_URL is required for the firebase store driver")
		}
		return store.NewFirebase(cfg.Store.FirebaseURL, cfg.Store.FirebaseAuth), nil
	case "mysql":
		db, err := config.NewDatabase(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		return store.NewMySQL(db)
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}
}
