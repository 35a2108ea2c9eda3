package aggregate

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/tinytelemetry/procmetrics/internal/atomicfile"
)

var errNotObject = errors.New("top-level value is not an object")

// Load reads the snapshot at path. A missing file yields New(). A file
// that exists but does not decode yields *CorruptStateError; the loaded
// content replaces the defaults wholesale.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("aggregate: read state: %w", err)
	}
	return Decode(path, data)
}

// Decode parses snapshot bytes. path is only used for error reporting.
func Decode(path string, data []byte) (*State, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &CorruptStateError{Path: path, Err: errNotObject}
	}

	st := &State{}
	if err := json.Unmarshal(trimmed, st); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	if err := st.normalize(); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	return st, nil
}

// Encode renders the snapshot document with two-space indentation.
func Encode(st *State) ([]byte, error) {
	compact, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("aggregate: encode state: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("aggregate: indent state: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Save writes the snapshot to path atomically.
func Save(path string, st *State) error {
	if st == nil {
		return errors.New("aggregate: nil state")
	}
	if err := st.normalize(); err != nil {
		return fmt.Errorf("aggregate: refusing to save: %w", err)
	}
	data, err := Encode(st)
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(path, data); err != nil {
		return fmt.Errorf("aggregate: save state: %w", err)
	}
	return nil
}
