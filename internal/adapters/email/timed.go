package email

import (
	"context"
	"time"

	"alphagate/internal/adapters/http/perf"
)

// TimedSender records the latency and outcome of every provider call.
type TimedSender struct {
	next      Sender
	name      string
	collector *perf.Collector
}

// NewTimedSender wraps next so each call is recorded under name.
// PRE: next is non-nil; collector may be nil
func NewTimedSender(next Sender, name string, collector *perf.Collector) *TimedSender {
	return &TimedSender{next: next, name: name, collector: collector}
}

// Send forwards to the wrapped sender and records one entry.
func (t *TimedSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	start := time.Now()
	res, err := t.next.Send(ctx, req)
	t.record(start, err)
	return res, err
}

// SendBatch forwards to the wrapped sender and records one entry.
func (t *TimedSender) SendBatch(ctx context.Context, reqs []SendRequest) ([]SendResult, error) {
	start := time.Now()
	res, err := t.next.SendBatch(ctx, reqs)
	t.record(start, err)
	return res, err
}

func (t *TimedSender) record(start time.Time, err error) {
	t.collector.Record(perf.Entry{
		Kind:       perf.KindSend,
		Path:       t.name,
		Failed:     err != nil,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:  start,
	})
}
