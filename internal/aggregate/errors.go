package aggregate

import (
	"fmt"

	"github.com/tinytelemetry/procmetrics/internal/event"
)

// MalformedEventError reports a recognized event that is missing a
// required field or carries an unparseable count. The state is left
// untouched when it is returned.
type MalformedEventError struct {
	Kind   event.Kind
	Field  string
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	msg := fmt.Sprintf("aggregate: malformed %q event: field %s: %s", e.Kind, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// CorruptStateError reports a snapshot file that exists but cannot be
// decoded. Callers must not save over it.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("aggregate: corrupt state file %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }
