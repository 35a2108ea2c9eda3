package aggregate

import (
	"reflect"
	"testing"
)

func TestEnsureSyncNode_IsIdempotent(t *testing.T) {
	t.Parallel()

	st := New()
	rec := st.EnsureSyncNode("urn:node:A")
	rec.Retrieved = 5

	again := st.EnsureSyncNode("urn:node:A")
	if again != rec {
		t.Fatal("EnsureSyncNode returned a different record")
	}
	if again.Retrieved != 5 {
		t.Fatalf("Retrieved = %d, want 5", again.Retrieved)
	}
}

func TestEnsureReplicationNode_IsIdempotent(t *testing.T) {
	t.Parallel()

	st := &State{}
	st.EnsureReplicationNode("urn:node:A").Set("REQUESTED", 2)
	st.EnsureReplicationNode("urn:node:A").Invalidated = 1

	rec := st.EnsureReplicationNode("urn:node:A")
	if v, _ := rec.Get("REQUESTED"); v != 2 {
		t.Fatalf("REQUESTED = %d, want 2", v)
	}
	if rec.Invalidated != 1 {
		t.Fatalf("INVALIDATED = %d, want 1", rec.Invalidated)
	}
}

func TestNodes_SortedUnion(t *testing.T) {
	t.Parallel()

	st := New()
	st.EnsureSyncNode("urn:node:C")
	st.EnsureSyncNode(TotalNode)
	st.EnsureReplicationNode("urn:node:A")
	st.EnsureReplicationNode("urn:node:C")

	want := []string{TotalNode, "urn:node:A", "urn:node:C"}
	if got := st.Nodes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Nodes() = %v, want %v", got, want)
	}
}

func TestClone_IsDeep(t *testing.T) {
	t.Parallel()

	st := New()
	st.EnsureSyncNode("urn:node:A").Queued = 1
	st.EnsureReplicationNode("urn:node:A").Set("REQUESTED", 1)

	cp := st.Clone()
	cp.Sync["urn:node:A"].Queued = 99
	cp.Replication["urn:node:A"].Set("REQUESTED", 99)

	if st.Sync["urn:node:A"].Queued != 1 {
		t.Fatal("clone shares sync records")
	}
	if v, _ := st.Replication["urn:node:A"].Get("REQUESTED"); v != 1 {
		t.Fatal("clone shares replication extras")
	}
}

func TestReplicationCounters_EachOrder(t *testing.T) {
	t.Parallel()

	rec := ReplicationCounters{}
	rec.Set("ZETA", 1)
	rec.Set("ALPHA", 2)

	var names []string
	rec.Each(func(name string, _ int64) { names = append(names, name) })

	want := []string{CounterCompleted, CounterFailed, CounterInvalidated, CounterQueued, "ALPHA", "ZETA"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("Each order = %v, want %v", names, want)
	}
}
