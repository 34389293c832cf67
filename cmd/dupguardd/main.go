package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dupguard/internal/api"
	"dupguard/internal/config"
	"dupguard/internal/duplicates"
	"dupguard/internal/engine"
	"dupguard/internal/ingest"
	"dupguard/internal/logging"
	"dupguard/internal/metrics"
	"dupguard/internal/model"
	"dupguard/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml or json)")
	flag.Parse()

	var manager *config.Manager
	if *configPath != "" {
		m, err := config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		manager = m
	} else {
		manager = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("dupguard starting", "version", version)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Init(ctx); err != nil {
		logger.Error("storage schema init failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	metricsStore := metrics.NewStore(cfg.Metrics.StoreLimit)
	dupStore := duplicates.NewStore(cfg.Duplicates.StoreLimit)
	detector := engine.NewDetector(cfg, logger, metricsStore, dupStore, store)

	items := make(chan model.ContentItem, cfg.Ingest.ChannelBuffer)
	detector.Start(ctx, items)
	detector.StartRetention(ctx)

	parser := ingest.NewParser()
	ingest.StartREST(ctx, manager, items, logger)
	ingest.StartKafka(ctx, manager, parser, items, logger)
	ingest.StartFileTail(ctx, manager, parser, items, logger)
	ingest.StartTCPStream(ctx, manager, parser, items, logger)
	ingest.StartRSS(ctx, manager, items, logger)

	api.Start(ctx, manager, metricsStore, dupStore, detector, logger, version)

	if *configPath != "" {
		go manager.Watch(3*time.Second,
			func(next *config.Config) {
				logger.Info("config reloaded", "path", manager.Path())
				detector.UpdateConfig(next)
			},
			func(err error) {
				logger.Warn("config reload failed", "err", err)
			},
			ctx.Done(),
		)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("dupguard shutting down")
	cancel()
	time.Sleep(200 * time.Millisecond)
}
