// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init installs the global logger: human-readable console output in development,
// JSON lines everywhere else.
func Init(env string) zerolog.Logger {
	return InitWithWriter(env, os.Stdout)
}

func InitWithWriter(env string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if env == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("service", "medlink").Logger()
	log.Logger = logger
	return logger
}
