package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/procmetrics/internal/model"
	"github.com/tinytelemetry/procmetrics/internal/report"
)

func loadWithArgs(t *testing.T, args ...string) (appConfig, error) {
	t.Helper()
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return loadConfig(fs)
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetProcmetricsEnv(t)

	missing := filepath.Join(t.TempDir(), "absent.yml")
	cfg, err := loadWithArgs(t, "--config", missing)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.MetricsLog != model.DefaultMetricsLog {
		t.Fatalf("MetricsLog = %q", cfg.MetricsLog)
	}
	if cfg.OffsetFile != model.DefaultMetricsLog+".offset" {
		t.Fatalf("OffsetFile = %q, want <metrics-log>.offset", cfg.OffsetFile)
	}
	if cfg.StateFile != model.DefaultStateFile {
		t.Fatalf("StateFile = %q", cfg.StateFile)
	}
	if cfg.StatsdHost != "localhost" || cfg.StatsdPort != 7125 || !cfg.StatsdEnabled {
		t.Fatalf("statsd = %s:%d enabled=%v", cfg.StatsdHost, cfg.StatsdPort, cfg.StatsdEnabled)
	}
	if cfg.Environment != "production" {
		t.Fatalf("Environment = %q", cfg.Environment)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.format != report.FormatText || cfg.ReportColor != "auto" {
		t.Fatalf("report = %q/%q", cfg.format, cfg.ReportColor)
	}
	if cfg.ReportSeeAlso != "/processing_metrics.json" {
		t.Fatalf("ReportSeeAlso = %q", cfg.ReportSeeAlso)
	}
	if cfg.ConfigPath != "" {
		t.Fatalf("ConfigPath = %q, want empty for a missing file", cfg.ConfigPath)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	resetProcmetricsEnv(t)

	configPath := writeTempConfig(t, `
metrics-log: /srv/logs/metrics.log
environment: staging
statsd-port: 8125
statsd-timeout: 2s
report-see-also: ""
`)

	t.Run("file", func(t *testing.T) {
		cfg, err := loadWithArgs(t, "--config", configPath)
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.MetricsLog != "/srv/logs/metrics.log" || cfg.OffsetFile != "/srv/logs/metrics.log.offset" {
			t.Fatalf("paths = %q / %q", cfg.MetricsLog, cfg.OffsetFile)
		}
		if cfg.Environment != "staging" || cfg.StatsdPort != 8125 || cfg.StatsdTimeout != 2*time.Second {
			t.Fatalf("cfg = %+v", cfg)
		}
		if cfg.ReportSeeAlso != "" {
			t.Fatalf("ReportSeeAlso = %q, want empty", cfg.ReportSeeAlso)
		}
		if cfg.ConfigPath != configPath {
			t.Fatalf("ConfigPath = %q, want %q", cfg.ConfigPath, configPath)
		}
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("PROCMETRICS_ENVIRONMENT", "test")
		t.Setenv("PROCMETRICS_STATSD_HOST", "collector.local")
		cfg, err := loadWithArgs(t, "--config", configPath)
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.Environment != "test" || cfg.StatsdHost != "collector.local" {
			t.Fatalf("env not applied: %q %q", cfg.Environment, cfg.StatsdHost)
		}
	})

	t.Run("flag over env", func(t *testing.T) {
		t.Setenv("PROCMETRICS_ENVIRONMENT", "test")
		cfg, err := loadWithArgs(t, "--config", configPath, "--environment", "dev", "-m", "/tmp/other.log", "-o", "/tmp/offset")
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.Environment != "dev" {
			t.Fatalf("Environment = %q, want dev", cfg.Environment)
		}
		if cfg.MetricsLog != "/tmp/other.log" || cfg.OffsetFile != "/tmp/offset" {
			t.Fatalf("paths = %q / %q", cfg.MetricsLog, cfg.OffsetFile)
		}
	})
}

func TestLoadConfig_Validation(t *testing.T) {
	resetProcmetricsEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		args         []string
		errSubstring string
	}{
		{name: "statsd port", configYAML: "statsd-port: 70000", errSubstring: "invalid statsd-port"},
		{name: "statsd port ignored when disabled", configYAML: "statsd-port: 0\nstatsd-enabled: false"},
		{name: "report format", configYAML: "report-format: csv", errSubstring: "invalid report-format"},
		{name: "report color", configYAML: "report-color: sometimes", errSubstring: "invalid report-color"},
		{name: "log level", configYAML: "log-level: chatty", errSubstring: "invalid log-level"},
		{name: "batch lines", args: []string{"--max-batch-lines=-1"}, errSubstring: "invalid max-batch-lines"},
		{name: "watch on stdin", args: []string{"--watch", "--metrics-log=-"}, errSubstring: "invalid metrics-log"},
		{name: "backup without dir", configYAML: "backup-enabled: true", errSubstring: "invalid backup-local-dir"},
		{name: "empty environment", configYAML: `environment: ""`, errSubstring: "invalid environment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := tt.configYAML
			if content == "" {
				content = "environment: production"
			}
			args := append([]string{"--config", writeTempConfig(t, content)}, tt.args...)
			_, err := loadWithArgs(t, args...)
			if tt.errSubstring == "" {
				if err != nil {
					t.Fatalf("loadConfig returned error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errSubstring) {
				t.Fatalf("error = %q, want substring %q", err.Error(), tt.errSubstring)
			}
		})
	}
}

func TestVerbosityFlags(t *testing.T) {
	resetProcmetricsEnv(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "none", args: nil, want: 0},
		{name: "legacy -l", args: []string{"-l"}, want: 1},
		{name: "legacy -ll", args: []string{"-ll"}, want: 2},
		{name: "-vv", args: []string{"-vv"}, want: 2},
		{name: "mixed", args: []string{"-v", "-l"}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			missing := filepath.Join(t.TempDir(), "absent.yml")
			fs := newFlagSet()
			if err := fs.Parse(append([]string{"--config", missing}, tt.args...)); err != nil {
				t.Fatalf("parse flags: %v", err)
			}
			got, err := fs.GetCount("verbose")
			if err != nil {
				t.Fatalf("GetCount: %v", err)
			}
			if got != tt.want {
				t.Fatalf("verbosity = %d, want %d", got, tt.want)
			}
			cfg, err := loadConfig(fs)
			if err != nil {
				t.Fatalf("loadConfig: %v", err)
			}
			if cfg.LogLevel != "warn" {
				t.Fatalf("LogLevel = %q, want warn", cfg.LogLevel)
			}
		})
	}
}

func TestLoadConfig_StdinHasNoOffsetFile(t *testing.T) {
	resetProcmetricsEnv(t)

	cfg, err := loadWithArgs(t, "--config", filepath.Join(t.TempDir(), "absent.yml"), "--metrics-log=-")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.OffsetFile != "" {
		t.Fatalf("OffsetFile = %q, want empty for stdin", cfg.OffsetFile)
	}
}

func TestLoadConfig_BackupSettings(t *testing.T) {
	resetProcmetricsEnv(t)

	configPath := writeTempConfig(t, `
backup-enabled: true
backup-interval: 30m
backup-local-dir: /var/backups/procmetrics
backup-keep-last: 7
backup-bucket-url: s3://metrics/cn
backup-s3-endpoint: minio:9000
backup-s3-use-ssl: false
`)
	cfg, err := loadWithArgs(t, "--config", configPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.BackupEnabled || cfg.BackupInterval != 30*time.Minute || cfg.BackupKeepLast != 7 {
		t.Fatalf("backup = %v %v %d", cfg.BackupEnabled, cfg.BackupInterval, cfg.BackupKeepLast)
	}
	if cfg.BackupLocalDir != "/var/backups/procmetrics" || cfg.BackupBucket != "s3://metrics/cn" {
		t.Fatalf("backup paths = %q %q", cfg.BackupLocalDir, cfg.BackupBucket)
	}
	if cfg.BackupEndpoint != "minio:9000" || cfg.BackupUseSSL {
		t.Fatalf("s3 = %q ssl=%v", cfg.BackupEndpoint, cfg.BackupUseSSL)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func resetProcmetricsEnv(t *testing.T) {
	t.Helper()

	original := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envPrefix+"_") {
			continue
		}
		original[key] = value
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	t.Cleanup(func() {
		for key, value := range original {
			if err := os.Setenv(key, value); err != nil {
				t.Fatalf("cleanup restore %s: %v", key, err)
			}
		}
	})
}
