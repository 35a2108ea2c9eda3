package httpserver

import (
	"sync"
	"time"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
)

// StateHolder keeps an immutable copy of the last saved state for
// readers on other goroutines.
type StateHolder struct {
	mu      sync.RWMutex
	state   *aggregate.State
	savedAt time.Time
}

// Set stores a deep copy of st.
func (h *StateHolder) Set(st *aggregate.State, savedAt time.Time) {
	clone := st.Clone()
	h.mu.Lock()
	h.state = clone
	h.savedAt = savedAt
	h.mu.Unlock()
}

// Snapshot returns the stored state and when it was saved. The state is
// nil before the first Set and must not be mutated.
func (h *StateHolder) Snapshot() (*aggregate.State, time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state, h.savedAt
}

// State is Snapshot without the timestamp.
func (h *StateHolder) State() *aggregate.State {
	st, _ := h.Snapshot()
	return st
}
