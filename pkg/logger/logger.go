// Package logger builds the root zerolog logger shared by every treasury
// component. Services derive their own loggers from it with With().
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls the root logger. An empty or unrecognized Level falls
// back to info. Pretty switches to human-readable console output for
// development runs; production stays on JSON lines.
type Config struct {
	Level  string
	Pretty bool
}

// New builds the root logger, installs its level globally, and replaces
// the zerolog package-level logger so stray log calls share the sink.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	root := zerolog.New(out).With().Timestamp().Caller().Logger()
	log.Logger = root
	return root
}
