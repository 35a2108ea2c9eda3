package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
	"github.com/tinytelemetry/procmetrics/internal/logging"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without the process globals, so tests can drive it.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := newFlagSet()
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if showVersion, _ := fs.GetBool("version"); showVersion {
		fmt.Fprintf(stdout, "procmetrics - processing metrics tail\n")
		fmt.Fprintf(stdout, "  Version:    %s\n", version)
		fmt.Fprintf(stdout, "  Commit:     %s\n", commit)
		fmt.Fprintf(stdout, "  Built:      %s\n", buildTime)
		fmt.Fprintf(stdout, "  Go version: %s\n", runtime.Version())
		return 0
	}

	cfg, err := loadConfig(fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	verbosity, _ := fs.GetCount("verbose")
	logOpts := logging.Options{
		Level:     cfg.LogLevel,
		Verbosity: verbosity,
		Pretty:    cfg.LogPretty,
		File:      cfg.LogFile,
	}
	if cfg.LogFile == "" {
		logOpts.Out = stderr
	}
	logger, cleanup, err := logging.Init(logOpts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer cleanup()

	r, err := newRunner(ctx, cfg, logger, stdin, stdout)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.Watch {
		err = r.watch(ctx, stdout)
	} else {
		_, err = r.runBatch(ctx)
	}
	if err != nil {
		var corrupt *aggregate.CorruptStateError
		if errors.As(err, &corrupt) {
			logger.Error().Err(err).Str("path", corrupt.Path).Msg("refusing to overwrite unreadable state file")
		} else {
			logger.Error().Err(err).Msg("run failed")
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
