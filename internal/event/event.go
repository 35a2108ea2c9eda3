package event

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// Field names used by the process metrics log.
const (
	FieldEvent      = "event"
	FieldDateLogged = "dateLogged"
	FieldMessage    = "message"
	FieldNodeID     = "nodeId"
	FieldThreadName = "threadName"
	FieldThreadID   = "threadId"
)

// Event is one decoded log record. The "event" field is lifted into Kind
// and removed from Fields.
type Event struct {
	Kind   Kind
	Fields map[string]string
}

// Field returns the named field and whether it was present.
func (e Event) Field(name string) (string, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// FieldOr returns the named field, or fallback when it is absent or blank.
func (e Event) FieldOr(name, fallback string) string {
	v, ok := e.Fields[name]
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// DecodeError reports a log line that could not be decoded into an Event.
type DecodeError struct {
	Line   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event: decode %q: %s: %v", truncate(e.Line, 80), e.Reason, e.Err)
	}
	return fmt.Sprintf("event: decode %q: %s", truncate(e.Line, 80), e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errNotObject = errors.New("not a JSON object")

// Decode parses one JSON object line. String values are kept as-is, null
// values are dropped, and any other value (number, bool, object, array)
// is kept as its compact JSON text. It never returns a partial Event.
func Decode(line string) (Event, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Event{}, &DecodeError{Line: line, Reason: "empty line"}
	}
	if !utf8.ValidString(trimmed) {
		return Event{}, &DecodeError{Line: line, Reason: "invalid UTF-8"}
	}
	if !strings.HasPrefix(trimmed, "{") {
		return Event{}, &DecodeError{Line: line, Reason: "invalid JSON", Err: errNotObject}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return Event{}, &DecodeError{Line: line, Reason: "invalid JSON", Err: err}
	}

	fields := make(map[string]string, len(raw))
	for name, value := range raw {
		s, ok, err := scalarString(value)
		if err != nil {
			return Event{}, &DecodeError{Line: line, Reason: fmt.Sprintf("field %q", name), Err: err}
		}
		if ok {
			fields[name] = s
		}
	}

	kind, ok := fields[FieldEvent]
	if !ok || strings.TrimSpace(kind) == "" {
		return Event{}, &DecodeError{Line: line, Reason: "missing event field"}
	}
	delete(fields, FieldEvent)

	return Event{Kind: Kind(kind), Fields: fields}, nil
}

func scalarString(value json.RawMessage) (string, bool, error) {
	v := bytes.TrimSpace(value)
	switch {
	case len(v) == 0, bytes.Equal(v, []byte("null")):
		return "", false, nil
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	case v[0] == '{' || v[0] == '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return "", false, err
		}
		return buf.String(), true, nil
	default:
		return string(v), true, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
