package logsource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tinytelemetry/procmetrics/internal/model"
)

// DefaultStdinBuffer is the default channel buffer size for stdin lines.
const DefaultStdinBuffer = 1024

// StdinConfig holds tunable parameters for the stdin source.
type StdinConfig struct {
	BufferSize  int
	MaxLineSize int
}

// StdinSource reads log lines from a pipe until EOF. It has no offset:
// whatever is piped in is one batch.
type StdinSource struct {
	ch     chan model.IngestEnvelope
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// NewStdinSource starts reading r in a background goroutine.
func NewStdinSource(ctx context.Context, r io.Reader, conf ...StdinConfig) *StdinSource {
	bufferSize := DefaultStdinBuffer
	maxLineSize := DefaultMaxLineSize
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &StdinSource{
		ch:     make(chan model.IngestEnvelope, bufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.read(ctx, r, maxLineSize)
	return s
}

func (s *StdinSource) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(s.done)
	defer close(s.ch)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case s.ch <- model.IngestEnvelope{Source: s.Name(), Line: line}:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			s.err = fmt.Errorf("logsource: stdin line exceeded max size (%d bytes): %w", maxLineSize, err)
			return
		}
		s.err = fmt.Errorf("logsource: stdin: %w", err)
	}
}

func (s *StdinSource) Lines() <-chan model.IngestEnvelope { return s.ch }

func (s *StdinSource) Err() error {
	<-s.done
	return s.err
}

// Commit is a no-op; stdin cannot be replayed.
func (s *StdinSource) Commit() error { return nil }

// Stop cancels the read. A reader blocked in Read is left to finish on
// its own, so Stop does not wait.
func (s *StdinSource) Stop() { s.once.Do(s.cancel) }

func (s *StdinSource) Name() string { return "stdin" }
