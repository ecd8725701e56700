package events

import (
	"context"
	"sync"
)

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// RecordingPublisher keeps every published event in memory. Tests use it to
// assert on emitted events.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []Recorded
}

// Recorded is one event captured by a RecordingPublisher.
type Recorded struct {
	Topic string
	Event any
}

func (r *RecordingPublisher) Publish(ctx context.Context, topic string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Topic: topic, Event: event})
	return nil
}

func (r *RecordingPublisher) Close() error {
	return nil
}

// Topics returns the topics published so far, in order.
func (r *RecordingPublisher) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Topic
	}
	return out
}
