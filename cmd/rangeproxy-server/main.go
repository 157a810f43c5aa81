package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	rangeproxy "github.com/haldorio/rangeproxy"
	"github.com/haldorio/rangeproxy/internal/config"
	"github.com/haldorio/rangeproxy/internal/logging"
	"github.com/haldorio/rangeproxy/origin"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logOpts := logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if cfg.Logging.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
		}
		defer rotator.Close()
		logOpts.Output = rotator
	}

	logger, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting rangeproxy-server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	handle, err := rangeproxy.Init(rangeproxy.Config{
		Port:           cfg.Server.Port,
		StorageDir:     cfg.Server.StorageDir,
		CollectionsDir: cfg.Server.CollectionsDir,
		UserAgent:      cfg.Origin.UserAgent,
		Proxy: origin.ProxyConfig{
			URL:      cfg.Origin.ProxyURL,
			Username: cfg.Origin.ProxyUser,
			Password: cfg.Origin.ProxyPass,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to initialize rangeproxy", zap.Error(err))
	}

	handle.ResumeAll()

	logger.Info("rangeproxy-server started successfully",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_dir", cfg.Server.StorageDir),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")
	if err := handle.Dispose(); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	logger.Info("rangeproxy-server stopped")
}
