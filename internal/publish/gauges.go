// Package publish exports the aggregate counters as metrics: a statsd
// gauge push for batch runs and a Prometheus collector for watch mode.
package publish

import (
	"sort"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
	"github.com/tinytelemetry/procmetrics/internal/label"
)

// Gauge is one counter value ready to publish.
type Gauge struct {
	Category label.Category
	Node     string
	Counter  string
	// Name is the dotted statsd name from label.Derive.
	Name  string
	Value int64
}

// Gauges flattens st into one gauge per (category, node, counter).
// The TOTAL pseudo-node is never published. Output is sorted by name.
func Gauges(env string, st *aggregate.State) []Gauge {
	if st == nil {
		return nil
	}
	var out []Gauge
	add := func(cat label.Category, node, counter string, v int64) {
		out = append(out, Gauge{
			Category: cat,
			Node:     node,
			Counter:  counter,
			Name:     label.Derive(env, cat, node, counter),
			Value:    v,
		})
	}

	for node, rec := range st.Sync {
		if node == aggregate.TotalNode || rec == nil {
			continue
		}
		rec.Each(func(counter string, v int64) { add(label.Synchronization, node, counter, v) })
	}
	for node, rec := range st.Replication {
		if node == aggregate.TotalNode || rec == nil {
			continue
		}
		rec.Each(func(counter string, v int64) { add(label.Replication, node, counter, v) })
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Node < out[j].Node
	})
	return out
}
