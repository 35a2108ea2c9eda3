package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
	"github.com/tinytelemetry/procmetrics/internal/atomicfile"
	"github.com/tinytelemetry/procmetrics/internal/backup"
	"github.com/tinytelemetry/procmetrics/internal/ingest"
	"github.com/tinytelemetry/procmetrics/internal/logsource"
	"github.com/tinytelemetry/procmetrics/internal/publish"
	"github.com/tinytelemetry/procmetrics/internal/report"
)

// runner owns everything a batch run needs. One runner serves every run
// of a watch loop; runs never overlap.
type runner struct {
	cfg       appConfig
	logger    zerolog.Logger
	stdin     io.Reader
	stdout    io.Writer
	publisher *publish.StatsdPublisher
	backups   *backup.Manager
}

// runResult is what one batch run produced.
type runResult struct {
	State     *aggregate.State
	Stats     ingest.Stats
	Published int
}

func newRunner(ctx context.Context, cfg appConfig, logger zerolog.Logger, stdin io.Reader, stdout io.Writer) (*runner, error) {
	r := &runner{
		cfg:    cfg,
		logger: logger,
		stdin:  stdin,
		stdout: stdout,
	}
	if cfg.StatsdEnabled {
		r.publisher = publish.NewStatsdPublisher(publish.StatsdConfig{
			Host:        cfg.StatsdHost,
			Port:        cfg.StatsdPort,
			Timeout:     cfg.StatsdTimeout,
			Environment: cfg.Environment,
		}, logger)
	}

	backups, err := backup.NewManager(ctx, cfg.StateFile, backup.Config{
		Enabled:        cfg.BackupEnabled,
		Interval:       cfg.BackupInterval,
		LocalDir:       cfg.BackupLocalDir,
		KeepLast:       cfg.BackupKeepLast,
		BucketURL:      cfg.BackupBucket,
		S3Endpoint:     cfg.BackupEndpoint,
		S3Region:       cfg.BackupRegion,
		S3AccessKey:    cfg.BackupAccess,
		S3SecretKey:    cfg.BackupSecret,
		S3SessionToken: cfg.BackupSession,
		S3UseSSL:       cfg.BackupUseSSL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backups: %w", err)
	}
	r.backups = backups
	return r, nil
}

// runBatch processes the lines appended since the last run. The order is
// load, apply, save, commit offset, backup, report, publish: the offset
// only moves once the state that reflects it is on disk, and nothing after
// the save can damage the snapshot.
func (r *runner) runBatch(ctx context.Context) (runResult, error) {
	var res runResult

	st, err := aggregate.Load(r.cfg.StateFile)
	if err != nil {
		return res, err
	}

	src, err := r.openSource(ctx)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return res, err
		}
		r.logger.Warn().Str("path", r.cfg.MetricsLog).Msg("metrics log not found, reporting saved state")
	}

	proc := ingest.NewProcessor(st, r.logger)
	if src != nil {
		drainErr := proc.Drain(ctx, src.Lines())
		src.Stop()
		if drainErr != nil {
			return res, fmt.Errorf("reading %s: %w", src.Name(), drainErr)
		}
		if err := src.Err(); err != nil {
			return res, err
		}
	}
	res.State = st
	res.Stats = proc.Stats()

	if err := aggregate.Save(r.cfg.StateFile, st); err != nil {
		return res, err
	}
	if src != nil {
		if err := src.Commit(); err != nil {
			return res, err
		}
	}
	r.logger.Info().
		Int("lines", res.Stats.Lines).
		Int("applied", res.Stats.Applied).
		Int("skipped", res.Stats.Skipped()).
		Msg("batch applied")

	if r.backups != nil {
		if path, err := r.backups.MaybeRun(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("snapshot backup failed")
		} else if path != "" {
			r.logger.Debug().Str("path", path).Msg("snapshot backed up")
		}
	}

	if err := r.writeReport(st); err != nil {
		return res, err
	}

	if r.publisher != nil {
		n, err := r.publisher.Publish(ctx, st)
		if err != nil {
			var pubErr *publish.PublishError
			if !errors.As(err, &pubErr) {
				return res, err
			}
			r.logger.Warn().Err(err).Msg("statsd publish failed")
		}
		res.Published = n
	}
	return res, nil
}

func (r *runner) openSource(ctx context.Context) (logsource.LogSource, error) {
	if r.cfg.MetricsLog == stdinPath {
		return logsource.NewStdinSource(ctx, r.stdin, logsource.StdinConfig{MaxLineSize: r.cfg.MaxLineSize}), nil
	}
	src, err := logsource.OpenFile(ctx, r.cfg.MetricsLog, r.cfg.OffsetFile, logsource.FileConfig{
		MaxLines:    r.cfg.MaxBatchLines,
		MaxLineSize: r.cfg.MaxLineSize,
	}, r.logger)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// writeReport renders st to text-output, or stdout when unset. In watch
// mode stdout reports are suppressed.
func (r *runner) writeReport(st *aggregate.State) error {
	if r.cfg.TextOutput == "" && r.cfg.Watch {
		return nil
	}
	opts := report.Options{
		Format:  r.cfg.format,
		SeeAlso: r.cfg.ReportSeeAlso,
		Color:   r.useColor(),
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, st, opts); err != nil {
		return err
	}
	if r.cfg.TextOutput != "" {
		if err := atomicfile.WriteFile(r.cfg.TextOutput, buf.Bytes()); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	}
	if _, err := r.stdout.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (r *runner) useColor() bool {
	if r.cfg.format != report.FormatText {
		return false
	}
	switch r.cfg.ReportColor {
	case "always":
		return true
	case "never":
		return false
	}
	if r.cfg.TextOutput != "" {
		return false
	}
	f, ok := r.stdout.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
