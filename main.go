package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketfeed/config"
	"marketfeed/internal/cache"
	"marketfeed/internal/metrics"
	"marketfeed/internal/pull"
	"marketfeed/internal/ratelimit"
	"marketfeed/internal/server"
	"marketfeed/internal/stream"
	"marketfeed/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Marketfeed.Name,
		"version": cfg.Marketfeed.Version,
		"symbols": len(cfg.Symbols),
	}).Info("starting marketfeed")

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := ratelimit.NewLimiter(cfg.RateLimit)
	store := cache.New(cfg.Cache)
	client := pull.NewClient(cfg, limiter)
	scheduler := cache.NewScheduler(cfg, store, client)

	// Pull-based bootstrap so no symbol is ever served empty. A bounded
	// deadline keeps a dead REST endpoint from wedging startup.
	bootCtx, bootCancel := context.WithTimeout(ctx, 2*time.Minute)
	if err := scheduler.Initialize(bootCtx); err != nil {
		bootCancel()
		log.WithError(err).Error("snapshot bootstrap failed")
		os.Exit(1)
	}
	bootCancel()

	router := stream.NewRouter(cfg, store)
	manager := stream.NewManager(cfg, router)
	if err := manager.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start stream manager")
		os.Exit(1)
	}

	if err := scheduler.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start refresh scheduler")
		os.Exit(1)
	}

	var api *server.Server
	if cfg.Server.Enabled {
		api = server.New(cfg, store, manager, router, limiter)
		if err := api.Start(); err != nil {
			log.WithError(err).Error("failed to start read API")
			os.Exit(1)
		}
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if api != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		api.Stop(shutdownCtx)
		shutdownCancel()
	}

	log.Info("stopping refresh scheduler")
	scheduler.Stop()

	log.Info("stopping stream manager")
	manager.Stop()

	log.Info("marketfeed stopped")
}
