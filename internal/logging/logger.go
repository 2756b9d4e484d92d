// Package logging sets up the process logger and writes per-run artifacts.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"tileagent/internal/config"
)

// New returns a logger writing to w at the configured level. Pretty
// switches from JSON lines to zerolog's console format.
func New(cfg config.LoggingConfig, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
