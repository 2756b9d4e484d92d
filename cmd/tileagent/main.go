package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tileagent/internal/config"
	"tileagent/internal/logging"
)

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tileagent",
		Short:         "tileagent trains a deep Q-learning agent to play the 2048 sliding-tile puzzle.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default $TILEAGENT_CONFIG, then built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (default $TILEAGENT_LOG_LEVEL, then config)")

	for _, envFile := range []string{
		".env",
		"../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd.AddCommand(newRunCmd(), newReplayCmd(), newBenchCmd(), newReportCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config file from the flag or the environment
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("TILEAGENT_CONFIG")
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if lvl := os.Getenv("TILEAGENT_LOG_LEVEL"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	return logging.New(cfg.Logging, os.Stderr)
}
