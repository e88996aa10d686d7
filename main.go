package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"feedsync/config"
	"feedsync/logger"
	"feedsync/pipeline"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	feedsPath := flag.String("feeds", "", "Path to feed list file (overrides config)")
	dryRun := flag.Bool("dry-run", false, "Run the full cycle without calling the catalog or persisting state")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(2)
	}
	if *feedsPath != "" {
		cfg.Feeds.File = *feedsPath
	}
	if *dryRun {
		cfg.Sync.DryRun = true
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(2)
	}

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Feedsync.Name,
		"version": cfg.Feedsync.Version,
		"dry_run": cfg.Sync.DryRun,
	}).Info("starting feedsync")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	if cfg.Sync.Interval <= 0 {
		os.Exit(runOnce(ctx, cfg, log))
	}

	ticker := time.NewTicker(cfg.Sync.Interval)
	defer ticker.Stop()

	runOnce(ctx, cfg, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("feedsync stopped")
			return
		case <-ticker.C:
			runOnce(ctx, cfg, log)
		}
	}
}

func runOnce(ctx context.Context, cfg *config.Config, log *logger.Log) int {
	start := time.Now()
	summary, err := pipeline.Run(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("sync run failed")
		return 1
	}

	log.WithFields(logger.Fields{
		"feeds_fetched":     summary.FeedsFetched,
		"feeds_failed":      summary.FeedsFailed,
		"offers_parsed":     summary.OffersParsed,
		"changes":           summary.Changes,
		"batches_succeeded": summary.BatchesSucceeded,
		"batches_failed":    summary.BatchesFailed,
		"items_succeeded":   summary.ItemsSucceeded,
		"items_failed":      summary.ItemsFailed,
		"skipped":           summary.Skipped,
		"duration":          time.Since(start).String(),
	}).Info("sync run completed")
	return 0
}
