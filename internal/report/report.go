// Package report renders the aggregate state for people: a fixed-width
// text table, or the snapshot as JSON or YAML.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
)

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a configured format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("report: unknown format %q (want text, json or yaml)", s)
	}
}

// Options controls rendering.
type Options struct {
	Format Format
	// SeeAlso is appended to the text legend when non-empty.
	SeeAlso string
	// Color styles text headers with ANSI escapes. Column widths are unchanged.
	Color bool
}

// Render writes st to w in the requested format.
func Render(w io.Writer, st *aggregate.State, opts Options) error {
	switch opts.Format {
	case "", FormatText:
		_, err := io.WriteString(w, Text(st, opts))
		return err
	case FormatJSON:
		data, err := aggregate.Encode(st)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatYAML:
		return writeYAML(w, st)
	default:
		return fmt.Errorf("report: unknown format %q", opts.Format)
	}
}
