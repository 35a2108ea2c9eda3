package event

// Kind identifies the family of a decoded event (the "event" field).
type Kind string

// Event kinds emitted by the process metrics log that the aggregator understands.
const (
	KindHarvestRetrieved  Kind = "synchronization harvest retrieved"
	KindHarvestSubmitted  Kind = "synchronization harvest submitted"
	KindSyncQueued        Kind = "synchronization queued"
	KindReplicationStatus Kind = "replication status"
)

// Known reports whether k is one of the recognized kinds.
// Matching is exact and case-sensitive.
func (k Kind) Known() bool {
	switch k {
	case KindHarvestRetrieved, KindHarvestSubmitted, KindSyncQueued, KindReplicationStatus:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }
