package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/procmetrics/internal/logging"
	"github.com/tinytelemetry/procmetrics/internal/logsource"
	"github.com/tinytelemetry/procmetrics/internal/model"
	"github.com/tinytelemetry/procmetrics/internal/report"
)

const (
	envPrefix           = "PROCMETRICS"
	stdinPath           = "-"
	defaultBackupPeriod = 6 * time.Hour
	defaultBackupKeep   = 24
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	MetricsLog     string        `mapstructure:"metrics-log"`
	OffsetFile     string        `mapstructure:"offset-file"`
	StateFile      string        `mapstructure:"state-file"`
	TextOutput     string        `mapstructure:"text-output"`
	ReportFormat   string        `mapstructure:"report-format"`
	ReportSeeAlso  string        `mapstructure:"report-see-also"`
	ReportColor    string        `mapstructure:"report-color"`
	LogLevel       string        `mapstructure:"log-level"`
	LogPretty      bool          `mapstructure:"log-pretty"`
	LogFile        string        `mapstructure:"log-file"`
	Environment    string        `mapstructure:"environment"`
	StatsdEnabled  bool          `mapstructure:"statsd-enabled"`
	StatsdHost     string        `mapstructure:"statsd-host"`
	StatsdPort     int           `mapstructure:"statsd-port"`
	StatsdTimeout  time.Duration `mapstructure:"statsd-timeout"`
	MaxBatchLines  int           `mapstructure:"max-batch-lines"`
	MaxLineSize    int           `mapstructure:"max-line-size"`
	Watch          bool          `mapstructure:"watch"`
	WatchInterval  time.Duration `mapstructure:"watch-interval"`
	APIEnabled     bool          `mapstructure:"api-enabled"`
	APIAddr        string        `mapstructure:"api-addr"`
	BackupEnabled  bool          `mapstructure:"backup-enabled"`
	BackupInterval time.Duration `mapstructure:"backup-interval"`
	BackupLocalDir string        `mapstructure:"backup-local-dir"`
	BackupKeepLast int           `mapstructure:"backup-keep-last"`
	BackupBucket   string        `mapstructure:"backup-bucket-url"`
	BackupEndpoint string        `mapstructure:"backup-s3-endpoint"`
	BackupRegion   string        `mapstructure:"backup-s3-region"`
	BackupAccess   string        `mapstructure:"backup-s3-access-key"`
	BackupSecret   string        `mapstructure:"backup-s3-secret-key"`
	BackupSession  string        `mapstructure:"backup-s3-session-token"`
	BackupUseSSL   bool          `mapstructure:"backup-s3-use-ssl"`
	ConfigPath     string        `mapstructure:"-"` // not from config file

	format report.Format
}

// newFlagSet declares the command line. Flag names double as config keys
// so viper can bind them directly.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("procmetrics", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.String("config", "", "config file (default is $HOME/.config/procmetrics/config.yml)")
	fs.Bool("version", false, "print version information")
	// -l and -v share one counter; -l is the historical spelling (-l, -ll).
	var verbosity int
	fs.CountVarP(&verbosity, "verbose", "v", "raise log verbosity (-v info, -vv debug)")
	fs.CountVarP(&verbosity, "log-verbosity", "l", "same as --verbose")

	fs.String("log-level", "warn", "base log level (debug, info, warn, error)")
	fs.StringP("metrics-log", "m", model.DefaultMetricsLog, "process metrics log to tail (- reads stdin)")
	fs.StringP("offset-file", "o", "", "offset bookkeeping file (default <metrics-log>.offset)")
	fs.StringP("state-file", "j", model.DefaultStateFile, "JSON snapshot of the aggregate state")
	fs.StringP("text-output", "t", "", "write the report here instead of stdout")
	fs.String("report-format", string(report.FormatText), "report format: text, json or yaml")
	fs.String("environment", model.DefaultEnvironment, "metric name prefix")
	fs.Bool("statsd-enabled", true, "push gauges to statsd")
	fs.String("statsd-host", model.DefaultStatsdHost, "statsd host")
	fs.Int("statsd-port", model.DefaultStatsdPort, "statsd UDP port")
	fs.Int("max-batch-lines", 0, "lines processed per run (0 = all)")
	fs.Bool("watch", false, "keep running and process new lines as they arrive")
	fs.Duration("watch-interval", model.DefaultWatchInterval, "fallback run interval in watch mode")
	fs.Bool("api-enabled", false, "serve the state over HTTP in watch mode")
	fs.String("api-addr", model.DefaultAPIAddr, "HTTP listen address")
	return fs
}

func loadConfig(fs *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("metrics-log", model.DefaultMetricsLog)
	v.SetDefault("offset-file", "")
	v.SetDefault("state-file", model.DefaultStateFile)
	v.SetDefault("text-output", "")
	v.SetDefault("report-format", string(report.FormatText))
	v.SetDefault("report-see-also", model.DefaultSeeAlso)
	v.SetDefault("report-color", "auto")
	v.SetDefault("log-level", "warn")
	v.SetDefault("log-pretty", false)
	v.SetDefault("log-file", "")
	v.SetDefault("environment", model.DefaultEnvironment)
	v.SetDefault("statsd-enabled", true)
	v.SetDefault("statsd-host", model.DefaultStatsdHost)
	v.SetDefault("statsd-port", model.DefaultStatsdPort)
	v.SetDefault("statsd-timeout", model.DefaultStatsdTimeout)
	v.SetDefault("max-batch-lines", 0)
	v.SetDefault("max-line-size", logsource.DefaultMaxLineSize)
	v.SetDefault("watch", false)
	v.SetDefault("watch-interval", model.DefaultWatchInterval)
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-addr", model.DefaultAPIAddr)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupPeriod)
	v.SetDefault("backup-local-dir", "")
	v.SetDefault("backup-keep-last", defaultBackupKeep)
	v.SetDefault("backup-bucket-url", "")
	v.SetDefault("backup-s3-endpoint", "")
	v.SetDefault("backup-s3-region", "")
	v.SetDefault("backup-s3-access-key", "")
	v.SetDefault("backup-s3-secret-key", "")
	v.SetDefault("backup-s3-session-token", "")
	v.SetDefault("backup-s3-use-ssl", true)

	if fs != nil {
		// Only flags the user actually set override file and env values.
		var bindErr error
		fs.Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "config", "version", "verbose", "log-verbosity":
				return
			}
			if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return cfg, bindErr
		}
	}

	configPath := ""
	if fs != nil {
		configPath, _ = fs.GetString("config")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".config", "procmetrics", "config.yml"))
	}

	usedConfig := ""
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	} else {
		usedConfig = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = usedConfig
	if err := cfg.resolve(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// resolve fills derived values and validates the result. Errors name the
// offending key.
func (c *appConfig) resolve() error {
	c.MetricsLog = strings.TrimSpace(c.MetricsLog)
	if c.MetricsLog == "" {
		return fmt.Errorf("invalid metrics-log: empty")
	}
	if c.OffsetFile == "" && c.MetricsLog != stdinPath {
		c.OffsetFile = c.MetricsLog + ".offset"
	}
	if strings.TrimSpace(c.StateFile) == "" {
		return fmt.Errorf("invalid state-file: empty")
	}

	format, err := report.ParseFormat(c.ReportFormat)
	if err != nil {
		return fmt.Errorf("invalid report-format: %w", err)
	}
	c.format = format

	switch strings.ToLower(strings.TrimSpace(c.ReportColor)) {
	case "auto", "always", "never":
		c.ReportColor = strings.ToLower(strings.TrimSpace(c.ReportColor))
	default:
		return fmt.Errorf("invalid report-color: %q (want auto, always or never)", c.ReportColor)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}
	if strings.TrimSpace(c.Environment) == "" {
		return fmt.Errorf("invalid environment: empty")
	}
	if c.StatsdEnabled {
		if c.StatsdPort <= 0 || c.StatsdPort > 65535 {
			return fmt.Errorf("invalid statsd-port: %d", c.StatsdPort)
		}
		if strings.TrimSpace(c.StatsdHost) == "" {
			return fmt.Errorf("invalid statsd-host: empty")
		}
		if c.StatsdTimeout <= 0 {
			return fmt.Errorf("invalid statsd-timeout: %s", c.StatsdTimeout)
		}
	}
	if c.MaxBatchLines < 0 {
		return fmt.Errorf("invalid max-batch-lines: %d", c.MaxBatchLines)
	}
	if c.MaxLineSize <= 0 {
		return fmt.Errorf("invalid max-line-size: %d", c.MaxLineSize)
	}
	if c.Watch {
		if c.MetricsLog == stdinPath {
			return fmt.Errorf("invalid metrics-log: watch mode needs a file, not stdin")
		}
		if c.WatchInterval <= 0 {
			return fmt.Errorf("invalid watch-interval: %s", c.WatchInterval)
		}
	}
	if c.BackupEnabled && strings.TrimSpace(c.BackupLocalDir) == "" {
		return fmt.Errorf("invalid backup-local-dir: required when backup-enabled is set")
	}
	return nil
}
