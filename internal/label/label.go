// Package label derives dotted metric names from (category, node, counter).
package label

import (
	"strings"
)

// Category selects which pipeline a counter belongs to.
type Category int

const (
	Synchronization Category = iota
	Replication
)

// Short returns the abbreviated segment used in metric names.
func (c Category) Short() string {
	if c == Synchronization {
		return "synchron"
	}
	return "replicat"
}

func (c Category) String() string {
	if c == Synchronization {
		return "synchronization"
	}
	return "replication"
}

// Derive returns "<env>.<category>.<node>.<counter>" in lower case.
//
// Node ids shaped like "urn:node:XYZ" are shortened to their third
// colon-delimited segment; "total" in any case stays "total".
func Derive(env string, cat Category, node, counter string) string {
	parts := []string{
		segment(env),
		cat.Short(),
		segment(ShortNode(node)),
		segment(counter),
	}
	return strings.Join(parts, ".")
}

// ShortNode returns the short node name used in labels.
func ShortNode(node string) string {
	n := strings.TrimSpace(node)
	if strings.EqualFold(n, "total") {
		return "total"
	}
	if parts := strings.Split(n, ":"); len(parts) >= 3 {
		return parts[2]
	}
	return n
}

// segment lower-cases s and replaces characters that would split or
// corrupt a statsd metric name.
func segment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ':', '|', '@', '#', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
