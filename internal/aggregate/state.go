// Package aggregate holds the running snapshot of synchronization and
// replication counters and the reducers that fold log events into it.
package aggregate

import (
	"fmt"
	"sort"
)

// State is the persisted snapshot. The JSON keys, including the embedded
// spaces, are read by other tools and must not change.
type State struct {
	LastLogged  string                          `json:"dateLogged"`
	Sync        map[string]*SyncCounters        `json:"synchronization status"`
	Replication map[string]*ReplicationCounters `json:"replication status"`
}

// New returns the empty state used when no snapshot exists yet.
func New() *State {
	return &State{
		Sync:        make(map[string]*SyncCounters),
		Replication: make(map[string]*ReplicationCounters),
	}
}

// EnsureSyncNode returns the synchronization record for id, inserting a
// zeroed record when it does not exist. Existing counters are untouched.
func (s *State) EnsureSyncNode(id string) *SyncCounters {
	if s.Sync == nil {
		s.Sync = make(map[string]*SyncCounters)
	}
	return ensureNode(s.Sync, id)
}

// EnsureReplicationNode is EnsureSyncNode for the replication table.
func (s *State) EnsureReplicationNode(id string) *ReplicationCounters {
	if s.Replication == nil {
		s.Replication = make(map[string]*ReplicationCounters)
	}
	return ensureNode(s.Replication, id)
}

func ensureNode[T any](table map[string]*T, id string) *T {
	if rec, ok := table[id]; ok && rec != nil {
		return rec
	}
	rec := new(T)
	table[id] = rec
	return rec
}

// Nodes returns the sorted union of node ids across both tables.
func (s *State) Nodes() []string {
	seen := make(map[string]struct{}, len(s.Sync)+len(s.Replication))
	for id := range s.Sync {
		seen[id] = struct{}{}
	}
	for id := range s.Replication {
		seen[id] = struct{}{}
	}
	nodes := make([]string, 0, len(seen))
	for id := range seen {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return nodes
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := &State{
		LastLogged:  s.LastLogged,
		Sync:        make(map[string]*SyncCounters, len(s.Sync)),
		Replication: make(map[string]*ReplicationCounters, len(s.Replication)),
	}
	for id, rec := range s.Sync {
		c := SyncCounters{}
		if rec != nil {
			c = *rec
		}
		out.Sync[id] = &c
	}
	for id, rec := range s.Replication {
		if rec == nil {
			out.Replication[id] = &ReplicationCounters{}
			continue
		}
		out.Replication[id] = rec.clone()
	}
	return out
}

// normalize fills tables and records left nil by a decoded snapshot and
// rejects negative counters.
func (s *State) normalize() error {
	if s.Sync == nil {
		s.Sync = make(map[string]*SyncCounters)
	}
	if s.Replication == nil {
		s.Replication = make(map[string]*ReplicationCounters)
	}

	var bad error
	for id, rec := range s.Sync {
		if rec == nil {
			s.Sync[id] = &SyncCounters{}
			continue
		}
		rec.Each(func(name string, v int64) {
			if v < 0 && bad == nil {
				bad = fmt.Errorf("negative synchronization counter %s for node %q", name, id)
			}
		})
	}
	for id, rec := range s.Replication {
		if rec == nil {
			s.Replication[id] = &ReplicationCounters{}
			continue
		}
		rec.Each(func(name string, v int64) {
			if v < 0 && bad == nil {
				bad = fmt.Errorf("negative replication counter %s for node %q", name, id)
			}
		})
	}
	return bad
}
