// Package main wires together the video ingestion service.
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

	"github.com/bilimath/crawler/internal/api"
	"github.com/bilimath/crawler/internal/classify"
	"github.com/bilimath/crawler/internal/clock/system"
	"github.com/bilimath/crawler/internal/config"
	"github.com/bilimath/crawler/internal/crawler"
	"github.com/bilimath/crawler/internal/fetcher/bili"
	"github.com/bilimath/crawler/internal/logging"
	pubsubpublisher "github.com/bilimath/crawler/internal/publisher/pubsub"
	gcsstorage "github.com/bilimath/crawler/internal/storage/gcs"
	localstorage "github.com/bilimath/crawler/internal/storage/local"
	"github.com/bilimath/crawler/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to config file")
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
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	classifier, err := buildClassifier(cfg.Classifier, logger)
	if err != nil {
		return err
	}

	fetcher := bili.New(bili.Config{
		UserAgent:  cfg.Auth.UserAgent,
		Referer:    cfg.Auth.Referer,
		Cookie:     cfg.Auth.Cookie,
		Timeout:    cfg.HTTP.Timeout(),
		MaxRetries: cfg.HTTP.MaxRetries,
		Backoff:    cfg.HTTP.Backoff(),
	})

	archive, err := buildArchive(ctx, cfg.Archive)
	if err != nil {
		return err
	}

	var publisher crawler.Publisher
	if cfg.PubSub.Topic != "" {
		ps, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("create publisher: %w", err)
		}
		defer func() {
			_ = ps.Close()
		}()
		publisher = ps
	}

	scheduler := crawler.NewScheduler(
		fetcher,
		store,
		classifier,
		archive,
		publisher,
		system.New(),
		crawler.SchedulerConfig{
			MaxPages:      cfg.Crawler.MaxPages,
			DelayMin:      cfg.Crawler.DelayMin(),
			DelayMax:      cfg.Crawler.DelayMax(),
			FailurePause:  cfg.Crawler.FailurePause(),
			ArchivePrefix: cfg.Archive.Prefix,
			Topic:         cfg.PubSub.Topic,
		},
		logging.Named(logger, "scheduler"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(store, scheduler, logging.Named(logger, "ops")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	final := scheduler.Run(ctx, cfg.Jobs)
	logger.Info("crawl run finished",
		zap.String("run_id", final.RunID),
		zap.Int("jobs_done", final.JobsDone),
		zap.Int("pages_fetched", final.PagesFetched),
		zap.Int("pages_failed", final.PagesFailed),
		zap.Int64("records_committed", final.RecordsCommitted),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown failed", zap.Error(err))
	}

	select {
	case err := <-serverErr:
		return fmt.Errorf("ops server: %w", err)
	default:
	}
	return nil
}

func buildClassifier(cfg config.ClassifierConfig, logger *zap.Logger) (*classify.Classifier, error) {
	model, err := classify.LoadModel(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load classifier model: %w", err)
	}
	if model == nil && cfg.ModelPath != "" {
		logger.Warn("classifier model not found, using rules only",
			zap.String("path", cfg.ModelPath))
	}
	c := classify.New(classify.Config{
		Scorer:              scorerOrNil(model),
		Rules:               classify.DefaultRules(),
		ConfidenceThreshold: cfg.ConfidenceThreshold,
	})
	return c, nil
}

// scorerOrNil avoids storing a typed nil behind the Scorer interface.
func scorerOrNil(model *classify.NaiveBayes) classify.Scorer {
	if model == nil {
		return nil
	}
	return model
}

func buildArchive(ctx context.Context, cfg config.ArchiveConfig) (crawler.BlobStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "gcs":
		store, err := gcsstorage.New(ctx, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("create gcs archive: %w", err)
		}
		return store, nil
	default:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("create local archive: %w", err)
		}
		return store, nil
	}
}
