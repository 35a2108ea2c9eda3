// Package ingest turns raw metrics-log lines into aggregate state updates.
package ingest

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
	"github.com/tinytelemetry/procmetrics/internal/event"
	"github.com/tinytelemetry/procmetrics/internal/model"
)

// Stats counts what a processor has seen.
type Stats struct {
	Lines        int
	Applied      int
	Ignored      int
	DecodeErrors int
	Malformed    int
}

// Skipped is the number of lines that did not change the state.
func (s Stats) Skipped() int { return s.Ignored + s.DecodeErrors + s.Malformed }

// Outcome is the result of one line.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeIgnored
	OutcomeDecodeError
	OutcomeMalformed
)

// Processor decodes lines, routes them to reducers and applies them to
// one aggregate state. It is not safe for concurrent use.
type Processor struct {
	state  *aggregate.State
	logger zerolog.Logger
	stats  Stats
}

// NewProcessor creates a processor that mutates st in place.
func NewProcessor(st *aggregate.State, logger zerolog.Logger) *Processor {
	return &Processor{
		state:  st,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// ProcessLine handles one log line. Bad lines are logged and counted,
// never returned as errors: one bad line must not stop a batch.
func (p *Processor) ProcessLine(line string) Outcome {
	p.stats.Lines++

	ev, err := event.Decode(line)
	if err != nil {
		p.stats.DecodeErrors++
		p.logger.Warn().Err(err).Msg("skipping undecodable line")
		return OutcomeDecodeError
	}

	applied, err := aggregate.Apply(p.state, ev)
	if err != nil {
		var malformed *aggregate.MalformedEventError
		if errors.As(err, &malformed) {
			p.stats.Malformed++
			p.logger.Warn().Err(err).Str("event", ev.Kind.String()).Msg("skipping malformed event")
			return OutcomeMalformed
		}
		// Reducers only return MalformedEventError; treat anything else
		// the same way rather than aborting the batch.
		p.stats.Malformed++
		p.logger.Error().Err(err).Str("event", ev.Kind.String()).Msg("reducer failed")
		return OutcomeMalformed
	}
	if !applied {
		p.stats.Ignored++
		p.logger.Debug().Str("event", ev.Kind.String()).Msg("ignoring unrouted event")
		return OutcomeIgnored
	}
	p.stats.Applied++
	return OutcomeApplied
}

// Drain processes every envelope until lines is closed or ctx is done.
func (p *Processor) Drain(ctx context.Context, lines <-chan model.IngestEnvelope) error {
	for {
		select {
		case env, ok := <-lines:
			if !ok {
				return nil
			}
			p.ProcessLine(env.Line)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats returns the counters accumulated so far.
func (p *Processor) Stats() Stats { return p.stats }

// State returns the state being mutated.
func (p *Processor) State() *aggregate.State { return p.state }
