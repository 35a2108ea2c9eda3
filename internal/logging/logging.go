// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Options selects level and output.
type Options struct {
	// Level is a zerolog level name; empty means warn.
	Level string
	// Verbosity raises Level by one step per count (warn, info, debug).
	Verbosity int
	// Pretty switches to the human console writer.
	Pretty bool
	// File appends logs to a file instead of stderr.
	File string
	// Out overrides the destination. Used by tests.
	Out io.Writer
}

// ParseLevel maps a level name to a zerolog level. Empty is warn.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.WarnLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
	return lvl, nil
}

// EffectiveLevel applies -v counts on top of the configured level.
func EffectiveLevel(base zerolog.Level, verbosity int) zerolog.Level {
	lvl := base
	for i := 0; i < verbosity && lvl > zerolog.DebugLevel; i++ {
		lvl--
	}
	return lvl
}

// Init installs the global logger and routes the standard log package
// into it. The returned cleanup closes the log file, if any.
func Init(opts Options) (zerolog.Logger, func(), error) {
	base, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), func() {}, err
	}
	level := EffectiveLevel(base, opts.Verbosity)

	cleanup := func() {}
	var w io.Writer = os.Stderr
	switch {
	case opts.Out != nil:
		w = opts.Out
	case opts.File != "":
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), cleanup, fmt.Errorf("logging: open log file: %w", err)
		}
		w = f
		cleanup = func() { _ = f.Close() }
	}
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: opts.File != ""}
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", "procmetrics").
		Logger()

	zerolog.SetGlobalLevel(level)
	zlog.Logger = logger

	stdlog.SetFlags(0)
	stdlog.SetOutput(logger)

	return logger, cleanup, nil
}
