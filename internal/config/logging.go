package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds the process logger from LoggingConfig and installs it as
// the zerolog global so library call sites share the same sink. Every line
// carries a service field so warehouse logs stay distinguishable when they
// are shipped alongside other services.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, levelErr := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if levelErr != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).Level(level).With().
		Timestamp().
		Str("service", "warehouse").
		Logger()
	if levelErr != nil {
		logger.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
	}
	log.Logger = logger
	return logger
}
