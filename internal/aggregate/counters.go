package aggregate

import (
	"sort"

	json "github.com/goccy/go-json"
)

// Counter names as they appear in the snapshot file and in metric labels.
const (
	CounterSubmitted   = "SUBMITTED"
	CounterRetrieved   = "RETRIEVED"
	CounterQueued      = "QUEUED"
	CounterCompleted   = "COMPLETED"
	CounterFailed      = "FAILED"
	CounterInvalidated = "INVALIDATED"
)

// TotalNode is the reserved node id for the synchronization queue depth
// reported without a specific node.
const TotalNode = "TOTAL"

// SyncCounters is the per-node synchronization record. The field order
// is the on-disk key order.
type SyncCounters struct {
	Submitted int64 `json:"SUBMITTED"`
	Retrieved int64 `json:"RETRIEVED"`
	Queued    int64 `json:"QUEUED"`
}

// Get returns the named counter.
func (c *SyncCounters) Get(name string) (int64, bool) {
	switch name {
	case CounterSubmitted:
		return c.Submitted, true
	case CounterRetrieved:
		return c.Retrieved, true
	case CounterQueued:
		return c.Queued, true
	}
	return 0, false
}

// Set overwrites the named counter. It returns false for names outside
// the synchronization set.
func (c *SyncCounters) Set(name string, v int64) bool {
	switch name {
	case CounterSubmitted:
		c.Submitted = v
	case CounterRetrieved:
		c.Retrieved = v
	case CounterQueued:
		c.Queued = v
	default:
		return false
	}
	return true
}

// Each calls fn for every counter in on-disk order.
func (c *SyncCounters) Each(fn func(name string, v int64)) {
	fn(CounterSubmitted, c.Submitted)
	fn(CounterRetrieved, c.Retrieved)
	fn(CounterQueued, c.Queued)
}

// ReplicationCounters is the per-node replication record. Outcome tags
// outside the canonical four are kept in Extra.
type ReplicationCounters struct {
	Completed   int64
	Failed      int64
	Invalidated int64
	Queued      int64
	Extra       map[string]int64
}

// Get returns the named counter, canonical or extra.
func (c *ReplicationCounters) Get(name string) (int64, bool) {
	switch name {
	case CounterCompleted:
		return c.Completed, true
	case CounterFailed:
		return c.Failed, true
	case CounterInvalidated:
		return c.Invalidated, true
	case CounterQueued:
		return c.Queued, true
	}
	v, ok := c.Extra[name]
	return v, ok
}

// Set overwrites the named counter, creating an extra counter on demand.
func (c *ReplicationCounters) Set(name string, v int64) {
	switch name {
	case CounterCompleted:
		c.Completed = v
	case CounterFailed:
		c.Failed = v
	case CounterInvalidated:
		c.Invalidated = v
	case CounterQueued:
		c.Queued = v
	default:
		if c.Extra == nil {
			c.Extra = make(map[string]int64)
		}
		c.Extra[name] = v
	}
}

// Each calls fn for the canonical counters, then extra counters sorted by name.
func (c *ReplicationCounters) Each(fn func(name string, v int64)) {
	fn(CounterCompleted, c.Completed)
	fn(CounterFailed, c.Failed)
	fn(CounterInvalidated, c.Invalidated)
	fn(CounterQueued, c.Queued)

	if len(c.Extra) == 0 {
		return
	}
	names := make([]string, 0, len(c.Extra))
	for name := range c.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fn(name, c.Extra[name])
	}
}

func (c *ReplicationCounters) clone() *ReplicationCounters {
	out := *c
	if c.Extra != nil {
		out.Extra = make(map[string]int64, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// MarshalJSON writes the record as one flat object of counters.
func (c ReplicationCounters) MarshalJSON() ([]byte, error) {
	flat := make(map[string]int64, 4+len(c.Extra))
	c.Each(func(name string, v int64) { flat[name] = v })
	return json.Marshal(flat)
}

// UnmarshalJSON reads a flat object of counters. Missing canonical
// counters stay zero.
func (c *ReplicationCounters) UnmarshalJSON(data []byte) error {
	var flat map[string]int64
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*c = ReplicationCounters{}
	for name, v := range flat {
		c.Set(name, v)
	}
	return nil
}
