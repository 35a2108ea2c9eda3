package publish

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/statsd"
	kitlog "github.com/go-kit/log"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/procmetrics/internal/aggregate"
)

// maxPacketSize keeps each datagram under a typical Ethernet MTU.
const maxPacketSize = 1432

// PublishError reports a failed push. The snapshot is unaffected.
type PublishError struct {
	Addr string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: statsd %s: %v", e.Addr, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// StatsdConfig addresses the collector.
type StatsdConfig struct {
	Host        string
	Port        int
	Timeout     time.Duration
	Environment string
}

// Addr returns host:port.
func (c StatsdConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StatsdPublisher pushes every counter as a statsd gauge over UDP.
type StatsdPublisher struct {
	cfg    StatsdConfig
	logger zerolog.Logger
	dialer net.Dialer
}

// NewStatsdPublisher builds a publisher. A zero timeout means 5s.
func NewStatsdPublisher(cfg StatsdConfig, logger zerolog.Logger) *StatsdPublisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &StatsdPublisher{
		cfg:    cfg,
		logger: logger.With().Str("component", "statsd").Logger(),
	}
}

// Publish sends one gauge per counter and returns how many were sent.
// Every failure is a *PublishError.
func (p *StatsdPublisher) Publish(ctx context.Context, st *aggregate.State) (int, error) {
	gauges := Gauges(p.cfg.Environment, st)
	if len(gauges) == 0 {
		return 0, nil
	}

	sink := statsd.New("", kitLogger(p.logger))
	for _, g := range gauges {
		sink.NewGauge(g.Name).Set(float64(g.Value))
	}
	var buf bytes.Buffer
	if _, err := sink.WriteTo(&buf); err != nil {
		return 0, &PublishError{Addr: p.cfg.Addr(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	conn, err := p.dialer.DialContext(ctx, "udp", p.cfg.Addr())
	if err != nil {
		return 0, &PublishError{Addr: p.cfg.Addr(), Err: err}
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}

	for _, packet := range packets(buf.Bytes(), maxPacketSize) {
		if _, err := conn.Write(packet); err != nil {
			return 0, &PublishError{Addr: p.cfg.Addr(), Err: err}
		}
	}
	p.logger.Debug().Int("gauges", len(gauges)).Str("addr", p.cfg.Addr()).Msg("published")
	return len(gauges), nil
}

// packets splits newline-terminated metric lines into datagrams of at
// most size bytes. A single line longer than size gets its own packet.
func packets(data []byte, size int) [][]byte {
	var out [][]byte
	for len(data) > 0 {
		if len(data) <= size {
			out = append(out, data)
			break
		}
		cut := bytes.LastIndexByte(data[:size], '\n')
		if cut < 0 {
			cut = bytes.IndexByte(data, '\n')
			if cut < 0 {
				cut = len(data) - 1
			}
		}
		out = append(out, data[:cut+1])
		data = data[cut+1:]
	}
	return out
}

// kitLogger forwards go-kit log records into zerolog.
func kitLogger(l zerolog.Logger) kitlog.Logger {
	return kitlog.LoggerFunc(func(keyvals ...interface{}) error {
		ev := l.Warn()
		for i := 0; i+1 < len(keyvals); i += 2 {
			ev = ev.Interface(fmt.Sprint(keyvals[i]), keyvals[i+1])
		}
		ev.Msg("statsd sink")
		return nil
	})
}
