package publish

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
	"github.com/tinytelemetry/procmetrics/internal/ingest"
)

const namespace = "procmetrics"

// StateFunc returns the state to expose. It must not return a state that
// is being mutated concurrently.
type StateFunc func() *aggregate.State

// Collector exposes the aggregate counters as one Prometheus gauge
// family, procmetrics_counter{category,node,counter}.
type Collector struct {
	state   StateFunc
	counter *prometheus.Desc
}

// NewCollector builds a collector reading from state on every scrape.
func NewCollector(state StateFunc) *Collector {
	return &Collector{
		state: state,
		counter: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "counter"),
			"Latest value reported for a processing counter.",
			[]string{"category", "node", "counter"},
			nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.counter
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, g := range Gauges("", c.state()) {
		m, err := prometheus.NewConstMetric(c.counter, prometheus.GaugeValue, float64(g.Value),
			g.Category.String(), g.Node, g.Counter)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(c.counter, err)
			continue
		}
		ch <- m
	}
}

// RunMetrics describes the batch runs of a watch loop.
type RunMetrics struct {
	Runs             *prometheus.CounterVec
	Lines            *prometheus.CounterVec
	LastRunApplied   prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

// NewRunMetrics creates unregistered run metrics.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Batch runs by result.",
			},
			[]string{"result"},
		),
		Lines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_total",
				Help:      "Log lines processed by outcome.",
			},
			[]string{"outcome"},
		),
		LastRunApplied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_applied",
			Help:      "Events applied by the most recent run.",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}),
	}
}

// Register adds every run metric to reg.
func (m *RunMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Runs, m.Lines, m.LastRunApplied, m.LastRunTimestamp} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Observe records one finished run.
func (m *RunMetrics) Observe(stats ingest.Stats, runErr error, now time.Time) {
	result := "ok"
	if runErr != nil {
		result = "error"
	}
	m.Runs.WithLabelValues(result).Inc()
	m.Lines.WithLabelValues("applied").Add(float64(stats.Applied))
	m.Lines.WithLabelValues("ignored").Add(float64(stats.Ignored))
	m.Lines.WithLabelValues("decode_error").Add(float64(stats.DecodeErrors))
	m.Lines.WithLabelValues("malformed").Add(float64(stats.Malformed))
	m.LastRunApplied.Set(float64(stats.Applied))
	m.LastRunTimestamp.Set(float64(now.Unix()))
}
