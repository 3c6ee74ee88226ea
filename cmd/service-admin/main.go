package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/internal/modes"
	modeall "github.com/sirosfoundation/go-service-admin/internal/modes/all"
	modeinstance "github.com/sirosfoundation/go-service-admin/internal/modes/instance"
	modeserver "github.com/sirosfoundation/go-service-admin/internal/modes/server"
	"github.com/sirosfoundation/go-service-admin/pkg/config"
	"github.com/sirosfoundation/go-service-admin/pkg/logging"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	modeFlag   = flag.String("mode", string(modes.ModeServer), "Operating mode: server, instance or all")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	mode, err := modes.ParseMode(*modeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting service admin",
		zap.String("mode", string(mode)),
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("log_level", logging.LevelString(logging.ParseLevel(cfg.Logging.Level))),
	)

	runner, err := modes.NewRunner(mode, runnerConfig(mode, cfg, logger))
	if err != nil {
		logger.Fatal("Failed to create runner", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Run(ctx)
	}()

	// Wait for interrupt signal or a runner failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		logger.Info("Shutting down...")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Error("Runner failed", zap.Error(err))
			exitCode = 1
		}
		cancel()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
		exitCode = 1
	}

	logger.Info("Service admin exited")
	if exitCode != 0 {
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}

// runnerConfig builds the configuration type expected by the mode's runner
func runnerConfig(mode modes.Mode, cfg *config.Config, logger *zap.Logger) interface{} {
	switch mode {
	case modes.ModeInstance:
		return &modeinstance.Config{Config: cfg, Logger: logger.Named("instance"), Version: version}
	case modes.ModeAll:
		return &modeall.Config{Config: cfg, Logger: logger, Version: version}
	default:
		return &modeserver.Config{Config: cfg, Logger: logger.Named("server")}
	}
}
