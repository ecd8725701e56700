package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// sseReplaySize is the number of recent events kept for Last-Event-ID
	// replay.
	sseReplaySize = 1000

	sseKeepaliveInterval = 15 * time.Second

	// sseClientBuffer is the per-client queue depth. Events beyond it are
	// dropped for that client.
	sseClientBuffer = 64
)

// streamEvent is one committed engine event as delivered to SSE clients.
type streamEvent struct {
	Seq        uint64
	Topic      string
	ScheduleID *uint64
	Data       []byte
}

// sseHub fans committed engine events out to connected SSE clients and keeps
// a replay window for reconnects.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	seq     atomic.Uint64

	replayMu sync.RWMutex
	replay   [sseReplaySize]streamEvent
	head     int // next write slot
	size     int // valid entries
}

// sseClient is one connected stream. A nil schedule matches every schedule.
type sseClient struct {
	topics   []string
	schedule *uint64
	ch       chan *streamEvent
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

func (h *sseHub) broadcast(topic string, scheduleID *uint64, payload []byte) {
	evt := &streamEvent{
		Seq:        h.seq.Add(1),
		Topic:      topic,
		ScheduleID: scheduleID,
		Data:       payload,
	}

	h.replayMu.Lock()
	h.replay[h.head] = *evt
	h.head = (h.head + 1) % sseReplaySize
	if h.size < sseReplaySize {
		h.size++
	}
	h.replayMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matches(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			// Slow client; drop rather than stall the engine.
		}
	}
}

func (h *sseHub) subscribe(topics []string, schedule *uint64) *sseClient {
	c := &sseClient{
		topics:   topics,
		schedule: schedule,
		ch:       make(chan *streamEvent, sseClientBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// since returns buffered events with Seq > after, oldest first.
func (h *sseHub) since(after uint64) []*streamEvent {
	h.replayMu.RLock()
	defer h.replayMu.RUnlock()

	var out []*streamEvent
	start := (h.head - h.size + sseReplaySize) % sseReplaySize
	for i := range h.size {
		evt := &h.replay[(start+i)%sseReplaySize]
		if evt.Seq > after {
			out = append(out, evt)
		}
	}
	return out
}

func (c *sseClient) matches(evt *streamEvent) bool {
	if c.schedule != nil && (evt.ScheduleID == nil || *evt.ScheduleID != *c.schedule) {
		return false
	}
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, evt.Topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic against a NATS-style
// pattern: "*" matches one segment, a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	top := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(top)
		}
		if i >= len(top) || (p != "*" && p != top[i]) {
			return false
		}
	}
	return len(pat) == len(top)
}

// handleEventStream handles GET /v1/events/stream?topics=&schedule=.
func (s *VestingServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	q := r.URL.Query()
	var topics []string
	for _, t := range strings.Split(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	var schedule *uint64
	if v := q.Get("schedule"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeErr(w, inputError("invalid schedule id: "+v))
			return
		}
		schedule = &id
	}

	client := s.sseHub.subscribe(topics, schedule)
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if after, err := strconv.ParseUint(last, 10, 64); err == nil {
			for _, evt := range s.sseHub.since(after) {
				if client.matches(evt) {
					writeSSEEvent(w, evt)
				}
			}
			flusher.Flush()
		}
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.Seq, evt.Topic, evt.Data)
}

// broadcastEvent is the engine listener feeding the SSE hub.
func (s *VestingServer) broadcastEvent(topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	var ref struct {
		ScheduleID *uint64 `json:"schedule_id"`
	}
	_ = json.Unmarshal(payload, &ref)
	s.sseHub.broadcast(topic, ref.ScheduleID, payload)
}
