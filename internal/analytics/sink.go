package analytics

import (
	"context"
	"sync"

	"go.uber.org/multierr"
)

// Sink receives flushed event batches.
type Sink interface {
	Send(ctx context.Context, events []Event) error
}

// SinkFunc adapts functions to the Sink interface.
type SinkFunc func(ctx context.Context, events []Event) error

func (fn SinkFunc) Send(ctx context.Context, events []Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, events)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Send(context.Context, []Event) error { return nil }

// maxDeliveredPerSink bounds the per-sink memory of accepted event ids.
const maxDeliveredPerSink = 4096

// MultiSink delivers every batch to each sink. A batch counts as failed if
// any sink failed; when the tracker resends it, sinks that already accepted
// an event are skipped for that event.
type MultiSink struct {
	sinks []Sink

	mu        sync.Mutex
	delivered []map[string]struct{}
}

func (m *MultiSink) Send(ctx context.Context, events []Event) error {
	var (
		err      error
		accepted []int
	)
	for i, sink := range m.sinks {
		pending := m.undelivered(i, events)
		if len(pending) == 0 {
			continue
		}
		if sendErr := sink.Send(ctx, pending); sendErr != nil {
			err = multierr.Append(err, sendErr)
			continue
		}
		accepted = append(accepted, i)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		for _, seen := range m.delivered {
			for _, e := range events {
				delete(seen, e.ID)
			}
		}
		return nil
	}
	for _, i := range accepted {
		if len(m.delivered[i])+len(events) > maxDeliveredPerSink {
			m.delivered[i] = make(map[string]struct{})
		}
		for _, e := range events {
			if e.ID != "" {
				m.delivered[i][e.ID] = struct{}{}
			}
		}
	}
	return err
}

func (m *MultiSink) undelivered(i int, events []Event) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := m.delivered[i]
	if len(seen) == 0 {
		return events
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.ID]; !ok || e.ID == "" {
			out = append(out, e)
		}
	}
	return out
}

// NewMultiSink drops nil sinks and collapses trivial fan-outs.
func NewMultiSink(sinks ...Sink) Sink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	switch len(kept) {
	case 0:
		return NopSink{}
	case 1:
		return kept[0]
	default:
		delivered := make([]map[string]struct{}, len(kept))
		for i := range delivered {
			delivered[i] = make(map[string]struct{})
		}
		return &MultiSink{sinks: kept, delivered: delivered}
	}
}
