package aggregate

import (
	"strconv"
	"strings"

	"github.com/tinytelemetry/procmetrics/internal/event"
)

// Reducer folds one event into the state. Implementations validate every
// field before mutating anything, so a returned error leaves st unchanged.
type Reducer interface {
	Reduce(ev event.Event, st *State) error
}

var routes = map[event.Kind]Reducer{
	event.KindHarvestRetrieved:  harvestReducer{counter: CounterRetrieved},
	event.KindHarvestSubmitted:  harvestReducer{counter: CounterSubmitted},
	event.KindSyncQueued:        queueDepthReducer{},
	event.KindReplicationStatus: replicationReducer{},
}

// Route returns the reducer for kind. Unknown kinds get a no-op reducer
// so new log event types can appear without breaking older aggregators.
func Route(kind event.Kind) Reducer {
	if r, ok := routes[kind]; ok {
		return r
	}
	return noopReducer{}
}

// Apply routes ev and reduces it into st. applied is false for unknown
// kinds and for events that fail validation.
func Apply(st *State, ev event.Event) (applied bool, err error) {
	r := Route(ev.Kind)
	if _, ok := r.(noopReducer); ok {
		return false, nil
	}
	if err := r.Reduce(ev, st); err != nil {
		return false, err
	}
	return true, nil
}

type noopReducer struct{}

func (noopReducer) Reduce(event.Event, *State) error { return nil }

// harvestReducer handles the retrieved/submitted harvest events, whose
// message is a bare integer.
type harvestReducer struct {
	counter string
}

func (r harvestReducer) Reduce(ev event.Event, st *State) error {
	node, err := requireField(ev, event.FieldNodeID)
	if err != nil {
		return err
	}
	logged, err := requireField(ev, event.FieldDateLogged)
	if err != nil {
		return err
	}
	msg, err := requireField(ev, event.FieldMessage)
	if err != nil {
		return err
	}
	v, err := parseCount(ev.Kind, msg)
	if err != nil {
		return err
	}

	st.EnsureSyncNode(node).Set(r.counter, v)
	st.LastLogged = logged
	return nil
}

// queueDepthReducer handles "<label>: <integer>" queue depth messages.
// Without a nodeId the depth belongs to TotalNode.
type queueDepthReducer struct{}

func (queueDepthReducer) Reduce(ev event.Event, st *State) error {
	logged, err := requireField(ev, event.FieldDateLogged)
	if err != nil {
		return err
	}
	msg, err := requireField(ev, event.FieldMessage)
	if err != nil {
		return err
	}
	_, count, ok := strings.Cut(msg, ":")
	if !ok {
		return &MalformedEventError{Kind: ev.Kind, Field: event.FieldMessage, Reason: "expected \"<label>: <count>\""}
	}
	v, err := parseCount(ev.Kind, count)
	if err != nil {
		return err
	}

	node := ev.FieldOr(event.FieldNodeID, TotalNode)

	st.EnsureSyncNode(node).Queued = v
	st.LastLogged = logged
	return nil
}

// replicationReducer handles "<p1> <p2> <TAG>: <integer>" status messages.
type replicationReducer struct{}

func (replicationReducer) Reduce(ev event.Event, st *State) error {
	node, err := requireField(ev, event.FieldNodeID)
	if err != nil {
		return err
	}
	logged, err := requireField(ev, event.FieldDateLogged)
	if err != nil {
		return err
	}
	msg, err := requireField(ev, event.FieldMessage)
	if err != nil {
		return err
	}
	phrase, count, ok := strings.Cut(msg, ":")
	if !ok {
		return &MalformedEventError{Kind: ev.Kind, Field: event.FieldMessage, Reason: "expected \"<phrase> <TAG>: <count>\""}
	}
	words := strings.Fields(phrase)
	if len(words) < 3 {
		return &MalformedEventError{Kind: ev.Kind, Field: event.FieldMessage, Reason: "status phrase has no tag"}
	}
	tag := strings.ToUpper(words[2])
	v, err := parseCount(ev.Kind, count)
	if err != nil {
		return err
	}

	st.EnsureReplicationNode(node).Set(tag, v)
	st.LastLogged = logged
	return nil
}

func requireField(ev event.Event, name string) (string, error) {
	v, ok := ev.Field(name)
	if !ok {
		return "", &MalformedEventError{Kind: ev.Kind, Field: name, Reason: "missing"}
	}
	if strings.TrimSpace(v) == "" {
		return "", &MalformedEventError{Kind: ev.Kind, Field: name, Reason: "empty"}
	}
	return v, nil
}

func parseCount(kind event.Kind, raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &MalformedEventError{Kind: kind, Field: event.FieldMessage, Reason: "count is not an integer", Err: err}
	}
	if v < 0 {
		return 0, &MalformedEventError{Kind: kind, Field: event.FieldMessage, Reason: "count is negative"}
	}
	return v, nil
}
