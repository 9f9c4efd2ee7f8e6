package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github-stars-crawler/internal/api"
	"github-stars-crawler/internal/config"
	"github-stars-crawler/internal/crawler"
	"github-stars-crawler/internal/database"
	"github-stars-crawler/internal/github"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and bootstrap the schema
	dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	store := database.NewStore(dbpool)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap database schema: %w", err)
	}
	logger.Info("Database schema ready")

	// 5. Initialize application components
	ghClient := github.NewClient(cfg.GithubToken, logger)
	start, end := cfg.CrawlRange()
	appCrawler, err := crawler.New(ghClient, store, crawler.NewGovernor(logger), logger,
		start, end, cfg.ShardWindowDays, cfg.ReposToFetch)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	srv := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: api.NewRouter(store, logger),
	}

	// 6. Run the crawl and the read API side by side; the crawl finishing
	// (or a signal) brings the server down too.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		total, err := appCrawler.Run(gctx)
		if err != nil {
			return fmt.Errorf("crawl failed after %d records: %w", total, err)
		}
		logger.Info("Crawl finished", "total_records", total)
		return nil
	})

	g.Go(func() error {
		logger.Info("Read API listening", "addr", cfg.APIAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
