package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath     string
	EnvFile        string
	LogLevel       string
	LogFormat      string
	StatusInterval time.Duration
	ShowVersion    bool
	ShowHelp       bool
	Validate       bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("ENERGYMON_CONFIG", ""),
		"Path to a JSON configuration file, optional (env: ENERGYMON_CONFIG)")

	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("ENERGYMON_CONFIG", ""),
		"Path to a JSON configuration file, optional (env: ENERGYMON_CONFIG)")

	fs.StringVar(&cfg.EnvFile, "env-file",
		getEnv("ENERGYMON_ENV_FILE", ".env"),
		"dotenv file loaded before configuration, ignored when missing (env: ENERGYMON_ENV_FILE)")

	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level override: debug, info, warn, error")

	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format override: json, text")

	fs.DurationVar(&cfg.StatusInterval, "status-interval",
		getEnvDuration("ENERGYMON_STATUS_INTERVAL", time.Minute),
		"Interval of the panel status log, 0 to disable (env: ENERGYMON_STATUS_INTERVAL)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ShowHelp {
		fs.Usage()
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.StatusInterval < 0 {
		return fmt.Errorf("invalid status interval: %s", cfg.StatusInterval)
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Realtime energy panel monitor

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with defaults plus a .env file in the working directory
  %s

  # Run against NATS with an in-memory store
  TRANSPORT=nats STORAGE_MODE=memory %s --log-format=text

  # Layer a config file under the environment
  %s --config=/etc/energymon/config.json

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
