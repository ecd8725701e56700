package model

import (
	"encoding/json"
	"time"
)

// Event is a persisted event record, mirroring what is published to NATS.
// ScheduleID is nil for program-level events.
type Event struct {
	ID         int64           `json:"id"`
	Topic      string          `json:"topic"`
	ScheduleID *uint64         `json:"schedule_id,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}
