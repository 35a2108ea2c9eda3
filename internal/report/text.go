package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
)

const (
	rowFormat    = "%-20s %8s %8s %8s %8s %8s %8s %8s"
	groupFormat  = "%38s %22s"
	blankCounter = ""
)

var legend = []string{
	"",
	"Synchronization",
	"    Queued: Items in synchronization queue",
	"       Sub: Items submitted to synchronization queue at last check",
	"      Retr: Items retrieved from MN at last check",
	"",
	"Replication",
	"    Queued: Items in replication queue",
	"      Comp: Items reported as completed",
	"    Failed: Items reported as failed",
	"   Invalid: Items reported as invalid",
	"",
	"Note that metric values are only updated in response to an",
	"event appearing in the cn-process-metric.log. There may",
	"be significant latency in the reporting of some values.",
}

type textStyles struct {
	enabled bool
	title   lipgloss.Style
	header  lipgloss.Style
	total   lipgloss.Style
}

func newTextStyles(color bool) textStyles {
	if !color {
		return textStyles{}
	}
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.ANSI256)
	return textStyles{
		enabled: true,
		title:   r.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		header:  r.NewStyle().Bold(true),
		total:   r.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func (s textStyles) render(style lipgloss.Style, line string) string {
	if !s.enabled {
		return line
	}
	return style.Render(line)
}

// Text renders the fixed-width status table.
func Text(st *aggregate.State, opts Options) string {
	styles := newTextStyles(opts.Color)

	lines := []string{
		styles.render(styles.title, "Last Update: "+st.LastLogged),
		styles.render(styles.header, fmt.Sprintf(groupFormat, "SYNCHRONIZATION", "REPLICATION")),
		styles.render(styles.header, fmt.Sprintf(rowFormat, "NodeID", "Queued", "Sub", "Retr", "Queued", "Comp", "Failed", "Invalid")),
	}

	for _, node := range st.Nodes() {
		row := fmt.Sprintf(rowFormat,
			node,
			syncCell(st, node, aggregate.CounterQueued),
			syncCell(st, node, aggregate.CounterSubmitted),
			syncCell(st, node, aggregate.CounterRetrieved),
			replicationCell(st, node, aggregate.CounterQueued),
			replicationCell(st, node, aggregate.CounterCompleted),
			replicationCell(st, node, aggregate.CounterFailed),
			replicationCell(st, node, aggregate.CounterInvalidated),
		)
		if node == aggregate.TotalNode {
			row = styles.render(styles.total, row)
		}
		lines = append(lines, row)
	}

	lines = append(lines, legend...)
	if opts.SeeAlso != "" {
		lines = append(lines, "", "See also: "+opts.SeeAlso)
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// syncCell renders one synchronization counter. TOTAL only carries a
// queue depth; its other cells are blank.
func syncCell(st *aggregate.State, node, counter string) string {
	if node == aggregate.TotalNode && counter != aggregate.CounterQueued {
		return blankCounter
	}
	rec, ok := st.Sync[node]
	if !ok || rec == nil {
		return "0"
	}
	v, _ := rec.Get(counter)
	return strconv.FormatInt(v, 10)
}

func replicationCell(st *aggregate.State, node, counter string) string {
	if node == aggregate.TotalNode {
		return blankCounter
	}
	rec, ok := st.Replication[node]
	if !ok || rec == nil {
		return "0"
	}
	v, _ := rec.Get(counter)
	return strconv.FormatInt(v, 10)
}
