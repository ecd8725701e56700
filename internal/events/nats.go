package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	subscriberBuffer = 64
	closeFlushWait   = 2 * time.Second
)

func connect(url, name string, base, extra []nats.Option) (*nats.Conn, error) {
	opts := append([]nats.Option{nats.Name(name)}, base...)
	nc, err := nats.Connect(url, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes each event as JSON on the subject equal to its
// topic.
type NATSPublisher struct {
	conn *nats.Conn
}

var _ Publisher = (*NATSPublisher)(nil)

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, "vesting-publisher", nil, opts)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}
	if err := p.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Close drains pending publishes for up to two seconds, then disconnects.
func (p *NATSPublisher) Close() error {
	if !p.conn.IsClosed() {
		_ = p.conn.FlushTimeout(closeFlushWait)
		p.conn.Close()
	}
	return nil
}

// NATSSubscriber fans NATS subjects out to buffered channels. It reconnects
// forever; callers may add handlers to observe connection changes.
type NATSSubscriber struct {
	conn    *nats.Conn
	dropped atomic.Uint64
}

var _ Subscriber = (*NATSSubscriber)(nil)

func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, "vesting-subscriber",
		[]nats.Option{nats.MaxReconnects(-1), nats.ReconnectWait(time.Second)}, opts)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Dropped reports how many messages were discarded because a consumer fell
// behind.
func (s *NATSSubscriber) Dropped() uint64 { return s.dropped.Load() }

// subscription couples a NATS subscription with its delivery channel. The
// channel is drained and closed exactly once, after the NATS callback can
// no longer send on it.
type subscription struct {
	owner *NATSSubscriber
	sub   *nats.Subscription
	ch    chan Message

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *subscription) deliver(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- Message{Topic: msg.Subject, Data: msg.Data}:
	default:
		s.owner.dropped.Add(1)
	}
}

func (s *subscription) cancel() {
	s.once.Do(func() {
		if s.sub != nil {
			_ = s.sub.Unsubscribe()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		for drained := false; !drained; {
			select {
			case <-s.ch:
			default:
				drained = true
			}
		}
		close(s.ch)
	})
}

// Subscribe accepts NATS wildcards such as "vesting.>". The subscription is
// registered on the server before Subscribe returns.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	sb := &subscription{owner: s, ch: make(chan Message, subscriberBuffer)}

	sub, err := s.conn.Subscribe(topic, sb.deliver)
	if err != nil {
		sb.cancel()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	sb.sub = sub
	if err := s.conn.Flush(); err != nil {
		sb.cancel()
		return nil, nil, fmt.Errorf("registering subscription to %s: %w", topic, err)
	}
	return sb.ch, sb.cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
