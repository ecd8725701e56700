package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

// bus connects a publisher and a subscriber to a fresh embedded server.
func bus(t *testing.T, subOpts ...nats.Option) (*NATSPublisher, *NATSSubscriber) {
	t.Helper()
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })
	sub, err := NewNATSSubscriber(url, subOpts...)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	t.Cleanup(func() { sub.Close() })
	return pub, sub
}

func publish(t *testing.T, pub *NATSPublisher, topic string, event any) {
	t.Helper()
	if err := pub.Publish(context.Background(), topic, event); err != nil {
		t.Fatalf("publishing %s: %v", topic, err)
	}
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestNATSSubscriber_ReceivesPublishedEvent(t *testing.T) {
	pub, sub := bus(t)
	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	publish(t, pub, TopicTokensReleased, TokensReleased{ScheduleID: 4, Amount: 250})

	msg := receive(t, ch)
	if msg.Topic != TopicTokensReleased {
		t.Errorf("topic = %q, want %q", msg.Topic, TopicTokensReleased)
	}
	var got TokensReleased
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decoding payload %s: %v", msg.Data, err)
	}
	if got.ScheduleID != 4 || got.Amount != 250 {
		t.Errorf("payload = %+v", got)
	}
}

func TestNATSSubscriber_WildcardFiltersTopics(t *testing.T) {
	pub, sub := bus(t)
	ch, cancel, err := sub.Subscribe("vesting.hub.*")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	for _, topic := range []string{TopicScheduleCreated, TopicHubUpdateProposed, TopicTokensReleased, TopicHubUpdated} {
		publish(t, pub, topic, struct{}{})
	}
	for _, want := range []string{TopicHubUpdateProposed, TopicHubUpdated} {
		if msg := receive(t, ch); msg.Topic != want {
			t.Errorf("topic = %q, want %q", msg.Topic, want)
		}
	}
}

func TestNATSSubscriber_CancelClosesChannel(t *testing.T) {
	pub, sub := bus(t)
	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = pub.Publish(context.Background(), TopicTokensReleased, struct{}{})
		}
	}()
	cancel()
	cancel()
	<-done

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_CountsDroppedMessages(t *testing.T) {
	pub, sub := bus(t)
	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	const sent = subscriberBuffer + 10
	for i := 0; i < sent; i++ {
		publish(t, pub, TopicTokensReleased, struct{}{})
	}
	if err := pub.conn.Flush(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(ch)+int(sub.Dropped()) < sent && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
	if got := sub.Dropped(); got != sent-subscriberBuffer {
		t.Errorf("dropped = %d, want %d", got, sent-subscriberBuffer)
	}
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	pub, _ := bus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, TopicTokensReleased, struct{}{}); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestNATSSubscriber_ExtraOptions(t *testing.T) {
	_, sub := bus(t, nats.ReconnectHandler(func(*nats.Conn) {}))
	if !sub.conn.IsConnected() {
		t.Fatal("expected subscriber to be connected")
	}
}
