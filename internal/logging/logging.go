// Package logging configures zerolog for the proxy.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds a logger writing to w in the given format and level. Unknown
// levels fall back to info.
func New(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if strings.EqualFold(format, FormatConsole) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Setup builds the process logger on stderr and installs it as the global one
func Setup(level, format string) zerolog.Logger {
	logger := New(os.Stderr, level, format)
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger
}
