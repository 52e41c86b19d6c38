// Package main runs the energy monitor: it ingests panel readings from the
// broker into the time-series store and serves metrics and health.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/caleheinzz25/realtime-energy-monitoring/config"

	_ "time/tzdata"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "energymon"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger, logCloser := setupLogger(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("Starting energy monitor",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"config", cfg.String())

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(ctx, a, cliCfg.StatusInterval)
}

// initializeCLI parses flags and handles the informational ones
func initializeCLI(args []string) (*CLIConfig, bool, error) {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return nil, true, err
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}
	return cliCfg, cliCfg.ShowHelp, nil
}

// initializeConfiguration loads the dotenv file, the optional config file and
// the environment, then applies flag overrides
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	if err := godotenv.Load(cliCfg.EnvFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", cliCfg.EnvFile, err)
	}

	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	return cfg, nil
}

// runWithSignalHandling starts ingestion and the metrics server, then blocks
// until SIGINT or SIGTERM
func runWithSignalHandling(ctx context.Context, a *app, statusInterval time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := a.connector.Start(signalCtx); err != nil {
		// never started, so the store is still ours to close
		a.connector = nil
		a.close(ctx)
		return fmt.Errorf("start connector: %w", err)
	}

	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		slog.Info("Metrics server listening", "address", a.server.Address())
	}

	go reportStatus(signalCtx, a.query, statusInterval, a.logger.With("component", "status"))

	slog.Info("Energy monitor started", "state", a.connector.State().String())

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := shutdown(shutdownCtx, a); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("Energy monitor shutdown complete", "stats", a.connector.Stats())
	return nil
}

// shutdown stops the metrics server, drains the connector and releases the
// registry
func shutdown(ctx context.Context, a *app) error {
	timeout := a.cfg.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	var errs []error
	if a.server != nil {
		if err := a.server.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.connector.Stop(timeout); err != nil {
		errs = append(errs, err)
	}
	a.close(ctx)
	return errors.Join(errs...)
}
