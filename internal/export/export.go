// Package export writes periodic JSONL snapshots of program state to S3
// and/or a local file.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store"
)

// snapshotPage is how many schedules are read per listing call.
const snapshotPage = 500

// header is the first JSONL record written by WriteSnapshot.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	SnapshotID    string    `json:"snapshot_id"`
	Timestamp     time.Time `json:"timestamp"`
	ScheduleCount int       `json:"schedule_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// scheduleRecord is a schedule with the live balance of its vault.
type scheduleRecord struct {
	*model.Schedule
	VaultBalance uint64 `json:"vault_balance,string"`
}

// Snapshot is one encoded export, handed to every destination.
type Snapshot struct {
	ID        string
	Taken     time.Time
	Schedules int
	Data      []byte
}

// Take encodes a snapshot of s with WriteSnapshot.
func Take(ctx context.Context, s store.Store, id string, now time.Time) (*Snapshot, error) {
	var buf bytes.Buffer
	n, err := WriteSnapshot(ctx, s, id, now, &buf)
	if err != nil {
		return nil, err
	}
	return &Snapshot{ID: id, Taken: now.UTC(), Schedules: n, Data: buf.Bytes()}, nil
}

// WriteSnapshot writes the program config and every schedule, in id order,
// as JSONL to w and returns the number of schedules written. An
// uninitialized program yields the header alone.
func WriteSnapshot(ctx context.Context, s store.Store, id string, now time.Time, w io.Writer) (int, error) {
	cfg, err := s.GetProgramConfig(ctx)
	if err != nil && !errors.Is(err, model.ErrNotInitialized) {
		return 0, fmt.Errorf("get program config: %w", err)
	}

	var schedules []scheduleRecord
	for offset := 0; ; offset += snapshotPage {
		page, total, err := s.ListSchedules(ctx, model.ScheduleFilter{Limit: snapshotPage, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("list schedules: %w", err)
		}
		for _, sc := range page {
			vault, err := s.GetAccount(ctx, sc.Vault)
			if err != nil {
				return 0, fmt.Errorf("get vault for schedule %d: %w", sc.ID, err)
			}
			schedules = append(schedules, scheduleRecord{Schedule: sc, VaultBalance: vault.Amount})
		}
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		SnapshotID:    id,
		Timestamp:     now.UTC(),
		ScheduleCount: len(schedules),
	}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}
	if cfg != nil {
		if err := enc.Encode(record{Type: "config", Data: cfg}); err != nil {
			return 0, fmt.Errorf("encode config: %w", err)
		}
	}
	for _, sc := range schedules {
		if err := enc.Encode(record{Type: "schedule", Data: sc}); err != nil {
			return 0, fmt.Errorf("encode schedule %d: %w", sc.ID, err)
		}
	}
	return len(schedules), nil
}
