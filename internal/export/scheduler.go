package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/vesting/internal/idgen"
	"github.com/alfredjeanlab/vesting/internal/store"
)

// Destination is a snapshot target.
type Destination interface {
	Write(ctx context.Context, snap *Snapshot) error
}

// Scheduler exports snapshots to its destinations on a fixed interval.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu   sync.Mutex
	last *Snapshot

	stop chan struct{}
	done chan struct{}
}

func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// Start exports once right away and then every interval until ctx is done
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(s.done)
		defer cancel()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if _, err := s.ExportOnce(ctx); err != nil {
				s.logger.Error("snapshot export failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the loop and waits for an export in flight.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

// Last returns the most recent snapshot that reached every destination, or
// nil.
func (s *Scheduler) Last() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ExportOnce takes one snapshot and writes it to every destination. A
// failing destination does not stop the others; their errors are joined.
func (s *Scheduler) ExportOnce(ctx context.Context) (*Snapshot, error) {
	id, err := idgen.SnapshotID()
	if err != nil {
		return nil, err
	}
	snap, err := Take(ctx, s.store, id, s.now())
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, snap); err != nil {
			s.logger.Warn("snapshot destination write failed",
				"snapshot_id", snap.ID, "destination", fmt.Sprint(dest), "error", err)
			errs = append(errs, err)
		}
	}
	s.logger.Info("snapshot exported",
		"snapshot_id", snap.ID,
		"schedules", snap.Schedules,
		"bytes", len(snap.Data),
		"destinations", len(s.destinations),
		"failed", len(errs),
	)
	if len(errs) > 0 {
		return snap, errors.Join(errs...)
	}

	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
	return snap, nil
}
