package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/enxi-erp/reconcile-backend/internal/api"
	"github.com/enxi-erp/reconcile-backend/internal/application/service"
	"github.com/enxi-erp/reconcile-backend/internal/application/session"
	"github.com/enxi-erp/reconcile-backend/internal/domain/matcher"
	"github.com/enxi-erp/reconcile-backend/internal/infrastructure/config"
	"github.com/enxi-erp/reconcile-backend/internal/infrastructure/storage"
	"github.com/enxi-erp/reconcile-backend/internal/observability"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		port       = flag.Int("port", 0, "Port to listen on (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg := loadConfig(*configFile)

	loggingCfg := cfg.Observability.Logging
	if *verbose {
		loggingCfg.Level = "debug"
	}
	logger := observability.NewLogger(loggingCfg)

	rules, err := cfg.Matching.Rules()
	if err != nil {
		logger.Error("invalid matching configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := storage.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	matching := session.LocalMatcher{Engine: matcher.NewEngine(matcher.DefaultWeights())}
	sessions := service.New(store, matching, store, logger)

	apiCfg := api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DefaultRules:   rules,
	}
	if *port != 0 {
		apiCfg.Port = *port
	}

	server := api.NewServer(apiCfg, store, sessions, logger)

	// Handle graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("received shutdown signal")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	<-done
	logger.Info("server stopped")
}

func loadConfig(configFile string) *config.Config {
	if configFile != "" {
		return config.LoadOrEnvWithPath(configFile)
	}
	return config.LoadOrEnv()
}
