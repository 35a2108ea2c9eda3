package model

import "time"

// Shared defaults used by the CLI and the watch loop.
const (
	DefaultMetricsLog    = "/var/log/dataone/daemon/cn-process-metric.log"
	DefaultStateFile     = "/var/www/processing_metrics.json"
	DefaultSeeAlso       = "/processing_metrics.json"
	DefaultEnvironment   = "production"
	DefaultStatsdHost    = "localhost"
	DefaultStatsdPort    = 7125
	DefaultStatsdTimeout = 5 * time.Second
	DefaultWatchInterval = time.Minute
	DefaultAPIAddr       = "127.0.0.1:3000"

	// DefaultWatchDebounce coalesces bursts of log writes into one run.
	DefaultWatchDebounce = 2 * time.Second
)
