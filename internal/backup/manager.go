package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/procmetrics/internal/atomicfile"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24

	filePrefix = "procmetrics-"
	fileSuffix = ".json"
	// Fixed width so lexical order is chronological.
	stampLayout = "20060102T150405.000000000Z"
)

// Manager copies the saved snapshot into a backup directory, optionally
// uploads each copy, and prunes old local copies.
type Manager struct {
	statePath string
	cfg       Config
	uploader  Uploader
	logger    zerolog.Logger
	now       func() time.Time
}

// NewManager initializes the backup manager. It returns nil when backups
// are disabled.
func NewManager(ctx context.Context, statePath string, cfg Config, logger zerolog.Logger) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(statePath) == "" {
		return nil, fmt.Errorf("backup: state-file is empty")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("backup: local-dir is required when backup is enabled")
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}

	var uploader Uploader
	if strings.TrimSpace(cfg.BucketURL) != "" {
		s3u, err := NewS3Uploader(ctx, S3Config{
			BucketURL:    cfg.BucketURL,
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			SessionToken: cfg.S3SessionToken,
			UseSSL:       cfg.S3UseSSL,
			ContentType:  "application/json",
		})
		if err != nil {
			return nil, fmt.Errorf("backup: init s3 uploader: %w", err)
		}
		uploader = s3u
	}

	return &Manager{
		statePath: statePath,
		cfg:       cfg,
		uploader:  uploader,
		logger:    logger.With().Str("component", "backup").Logger(),
		now:       time.Now,
	}, nil
}

// MaybeRun takes a backup when the newest one is older than the
// configured interval. It returns the new backup path, or "" when no
// backup was due.
func (m *Manager) MaybeRun(ctx context.Context) (string, error) {
	newest, ok, err := newestBackup(m.cfg.LocalDir)
	if err != nil {
		return "", fmt.Errorf("backup: scan local-dir: %w", err)
	}
	if ok && m.now().Sub(newest) < m.cfg.Interval {
		return "", nil
	}
	return m.RunOnce(ctx)
}

// RunOnce copies the snapshot, uploads it when configured, and prunes old
// local copies.
func (m *Manager) RunOnce(ctx context.Context) (string, error) {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		return "", fmt.Errorf("backup: read snapshot: %w", err)
	}
	fileName := filePrefix + m.now().UTC().Format(stampLayout) + fileSuffix
	localPath := filepath.Join(m.cfg.LocalDir, fileName)
	if err := atomicfile.WriteFile(localPath, data); err != nil {
		return "", fmt.Errorf("backup: write copy: %w", err)
	}
	m.logger.Info().Str("path", localPath).Msg("created snapshot backup")

	if m.uploader != nil {
		if err := m.uploader.UploadFile(ctx, localPath); err != nil {
			return localPath, fmt.Errorf("backup: upload: %w", err)
		}
		m.logger.Info().Str("file", fileName).Msg("uploaded snapshot backup")
	}

	if err := pruneLocalBackups(m.cfg.LocalDir, m.cfg.KeepLast); err != nil {
		return localPath, fmt.Errorf("backup: prune local backups: %w", err)
	}
	return localPath, nil
}

func listBackups(localDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(localDir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

func newestBackup(localDir string) (time.Time, bool, error) {
	matches, err := listBackups(localDir)
	if err != nil {
		return time.Time{}, false, err
	}
	for _, p := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), filePrefix), fileSuffix)
		if t, err := time.Parse(stampLayout, stamp); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, nil
}

func pruneLocalBackups(localDir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}
	matches, err := listBackups(localDir)
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}
	for _, oldPath := range matches[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
