package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
	"github.com/tinytelemetry/procmetrics/internal/httpserver"
	"github.com/tinytelemetry/procmetrics/internal/model"
	"github.com/tinytelemetry/procmetrics/internal/publish"
)

// watch repeats runBatch whenever the metrics log changes, or every
// watch-interval, until ctx is cancelled.
func (r *runner) watch(ctx context.Context, banner io.Writer) error {
	holder := &httpserver.StateHolder{}
	initial, err := aggregate.Load(r.cfg.StateFile)
	if err != nil {
		return err
	}
	holder.Set(initial, time.Now())

	reg := prometheus.NewRegistry()
	reg.MustRegister(publish.NewCollector(holder.State))
	runMetrics := publish.NewRunMetrics()
	if err := runMetrics.Register(reg); err != nil {
		return fmt.Errorf("register run metrics: %w", err)
	}

	if r.cfg.APIEnabled {
		gin.SetMode(gin.ReleaseMode)
		apiServer := httpserver.NewServer(r.cfg.APIAddr, holder, reg, httpserver.WithSeeAlso(r.cfg.ReportSeeAlso))
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
		r.cfg.APIAddr = apiServer.Addr()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()
	// Watch the directory so rotation (rename + create) is seen too.
	if err := watcher.Add(filepath.Dir(r.cfg.MetricsLog)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(r.cfg.MetricsLog), err)
	}

	if banner != nil {
		printStartupBanner(banner, r.cfg)
	}

	changes := make(chan struct{}, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return forwardChanges(gctx, watcher, r.cfg.MetricsLog, changes, r.logger)
	})

	g.Go(func() error {
		runOnce := func() error {
			res, err := r.runBatch(gctx)
			runMetrics.Observe(res.Stats, err, time.Now())
			if err != nil {
				var corrupt *aggregate.CorruptStateError
				if errors.As(err, &corrupt) || gctx.Err() != nil {
					return err
				}
				r.logger.Error().Err(err).Msg("watch run failed")
				return nil
			}
			holder.Set(res.State, time.Now())
			return nil
		}

		if err := runOnce(); err != nil {
			return err
		}

		ticker := time.NewTicker(r.cfg.WatchInterval)
		defer ticker.Stop()
		var debounce *time.Timer
		var fire <-chan time.Time
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := runOnce(); err != nil {
					return err
				}
			case <-changes:
				if debounce == nil {
					debounce = time.NewTimer(model.DefaultWatchDebounce)
				} else {
					debounce.Reset(model.DefaultWatchDebounce)
				}
				fire = debounce.C
			case <-fire:
				fire = nil
				if err := runOnce(); err != nil {
					return err
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// forwardChanges turns fsnotify events on the metrics log into a
// coalesced change signal.
func forwardChanges(ctx context.Context, w *fsnotify.Watcher, logPath string, changes chan<- struct{}, logger zerolog.Logger) error {
	target := filepath.Clean(logPath)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			select {
			case changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func printStartupBanner(w io.Writer, cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	var lines []string
	lines = append(lines, "")
	lines = append(lines, "    "+cyan.Bold(true).Render("procmetrics")+" "+dim.Render("v"+version))
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Input"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Metrics Log    %s", check, cyan.Render(shortenPath(cfg.MetricsLog))))
	lines = append(lines, fmt.Sprintf("    %s  Offset File    %s", check, dim.Render(shortenPath(cfg.OffsetFile))))
	lines = append(lines, fmt.Sprintf("    %s  Interval       %s", check, dim.Render(cfg.WatchInterval.String())))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Output"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  State File     %s", check, dim.Render(shortenPath(cfg.StateFile))))
	if cfg.TextOutput != "" {
		lines = append(lines, fmt.Sprintf("    %s  Text Report    %s", check, dim.Render(shortenPath(cfg.TextOutput))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Text Report    %s", dot, dim.Render("disabled")))
	}
	if cfg.StatsdEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Statsd         %s", check, cyan.Render(fmt.Sprintf("%s:%d", cfg.StatsdHost, cfg.StatsdPort))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Statsd         %s", dot, dim.Render("disabled")))
	}
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	if cfg.BackupEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", check, dim.Render(shortenPath(cfg.BackupLocalDir))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
