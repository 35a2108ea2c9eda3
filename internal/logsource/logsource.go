// Package logsource delivers new lines of the metrics log to a batch run.
package logsource

import "github.com/tinytelemetry/procmetrics/internal/model"

// LogSource is a unified interface for the batch inputs (file, stdin).
//
// Lines is closed when the batch is exhausted or the source is stopped.
// Err and Commit are only meaningful after Lines has been drained.
type LogSource interface {
	Lines() <-chan model.IngestEnvelope
	Err() error
	Commit() error
	Stop()
	Name() string
}
