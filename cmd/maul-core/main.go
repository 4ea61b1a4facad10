// Package main is the entry point for the maul-core binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maulworks/maul/internal/server"
	"github.com/maulworks/maul/pkg/config"
	"github.com/maulworks/maul/pkg/logging"
	"github.com/maulworks/maul/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (YAML)")
	listenAddr := flag.String("listen", "", "Address to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	prettyLogs := flag.Bool("pretty", false, "Enable pretty console logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.Address = *listenAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *prettyLogs {
		cfg.Logging.Pretty = true
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)

	logger.Info("Starting maul-core", "config", *configPath, "addr", cfg.Server.Address)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "maul-core",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Warn("Telemetry setup failed, continuing without exporter", "error", err)
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("Telemetry shutdown failed", "error", err)
			}
		}()
	}

	srv, err := server.New(cfg, logger, server.Options{})
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	if err := srv.Start(ctx); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
