// Package main wires together the clip ingestion service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mediaharbor/clipcrawler/internal/api"
	"github.com/mediaharbor/clipcrawler/internal/clock/system"
	"github.com/mediaharbor/clipcrawler/internal/config"
	"github.com/mediaharbor/clipcrawler/internal/enrich"
	"github.com/mediaharbor/clipcrawler/internal/fetcher"
	"github.com/mediaharbor/clipcrawler/internal/id/uuid"
	"github.com/mediaharbor/clipcrawler/internal/ingest"
	"github.com/mediaharbor/clipcrawler/internal/keyring"
	"github.com/mediaharbor/clipcrawler/internal/logging"
	"github.com/mediaharbor/clipcrawler/internal/ratelimit"
	"github.com/mediaharbor/clipcrawler/internal/retry"
	"github.com/mediaharbor/clipcrawler/internal/session"
	memorystorage "github.com/mediaharbor/clipcrawler/internal/storage/memory"
	"github.com/mediaharbor/clipcrawler/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store ingest.ClipStore
	var closeStore func()
	if cfg.DB.DSN != "" {
		pgStore, err := postgres.NewClipStore(ctx, postgres.ClipStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		store = pgStore
		closeStore = pgStore.Close
	} else {
		logger.Warn("db.dsn not set, using in-memory store")
		store = memorystorage.NewClipStore()
		closeStore = func() {}
	}
	defer closeStore()

	clock := system.New()
	idGen := uuid.New()

	siteFetcher, err := fetcher.New(fetcher.Config{
		BaseURL:     cfg.Site.BaseURL,
		RedirectURL: cfg.Site.RedirectURL,
		UserAgent:   cfg.Site.UserAgent,
		Timeout:     time.Duration(cfg.Site.TimeoutSeconds) * time.Second,
	}, logger.Named("fetcher"))
	if err != nil {
		logger.Fatal("fetcher init failed", zap.Error(err))
	}

	retrier := retry.New(retry.Config{
		MaxAttempts: cfg.Crawl.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.Crawl.RetryBaseMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Crawl.RetryMaxMs) * time.Millisecond,
	}, logger.Named("retry"))

	keys := keyring.New(
		cfg.Enrich.APIKeys,
		time.Duration(cfg.Enrich.CooldownSeconds)*time.Second,
		clock,
		logger.Named("keyring"),
	)
	enrichLimit := ratelimit.New(cfg.Enrich.Concurrency, time.Duration(cfg.Enrich.SpacingMs)*time.Millisecond)
	enricher := enrich.New(
		enrich.NewLangchainProvider(cfg.Enrich.Model),
		keys,
		enrichLimit,
		retrier,
		enrich.Config{
			Language:   cfg.Enrich.Language,
			Timeout:    time.Duration(cfg.Enrich.TimeoutSeconds) * time.Second,
			MaxRetries: cfg.Enrich.MaxRetries,
		},
		logger.Named("enrich"),
	)

	fetchLimit := ratelimit.New(cfg.Crawl.FetchConcurrency, 0)
	controller := session.New(
		siteFetcher,
		enricher,
		store,
		clock,
		idGen,
		retrier,
		fetchLimit,
		session.Config{
			PageDelay:       time.Duration(cfg.Site.PageDelayMs) * time.Millisecond,
			EmptyPageStreak: cfg.Site.EmptyPageStreak,
		},
		logger.Named("session"),
	)

	apiServer := api.NewServer(controller, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")
	controller.Abort()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
