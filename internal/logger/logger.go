package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. Unknown levels fall back to info.
// When json is false a human readable console writer is used.
func Init(level string, json bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		fmt.Fprintf(os.Stderr, "Unknown log level '%s', defaulting to 'info'\n", level)
		lvl = zerolog.InfoLevel
	}

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	var out io.Writer = os.Stderr
	if !json {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	log.Logger = zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	log.Info().Str("level", lvl.String()).Msg("Logger initialized")
}

// WithComponent returns a child of the global logger tagged with the component name.
func WithComponent(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// Mask shortens secrets-bearing strings (proxy URLs, tokens) for log output.
func Mask(s string, keep int) string {
	if len(s) <= keep {
		return s
	}
	return s[:keep] + "..."
}
