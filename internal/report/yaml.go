package report

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
)

type yamlDocument struct {
	DateLogged  string                      `yaml:"dateLogged"`
	Sync        map[string]map[string]int64 `yaml:"synchronization status"`
	Replication map[string]map[string]int64 `yaml:"replication status"`
}

func writeYAML(w io.Writer, st *aggregate.State) error {
	doc := yamlDocument{
		DateLogged:  st.LastLogged,
		Sync:        make(map[string]map[string]int64, len(st.Sync)),
		Replication: make(map[string]map[string]int64, len(st.Replication)),
	}
	for node, rec := range st.Sync {
		flat := make(map[string]int64, 3)
		rec.Each(func(name string, v int64) { flat[name] = v })
		doc.Sync[node] = flat
	}
	for node, rec := range st.Replication {
		flat := make(map[string]int64, 4)
		rec.Each(func(name string, v int64) { flat[name] = v })
		doc.Replication[node] = flat
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("report: encode yaml: %w", err)
	}
	return enc.Close()
}
