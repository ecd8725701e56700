// Package vesting implements the custodial vesting engine: schedule
// creation, linear release with a cliff, the permissionless crank, timelocked
// hub governance and schedule closure.
package vesting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/address"
	"github.com/alfredjeanlab/vesting/internal/events"
	"github.com/alfredjeanlab/vesting/internal/ledger"
	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store"
)

// Listener receives every event the engine emits, after it is committed.
type Listener func(topic string, event any)

// Engine runs vesting operations against a store. Each operation is one
// store transaction.
type Engine struct {
	store     store.Store
	deriver   *address.Deriver
	publisher events.Publisher
	logger    *slog.Logger
	clock     func() time.Time
	timelock  time.Duration

	mu        sync.RWMutex
	listeners []Listener
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the event publisher. The default publishes nowhere.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// WithDeriver sets the address deriver. The default derives under
// address.DefaultProgramID.
func WithDeriver(d *address.Deriver) Option {
	return func(e *Engine) { e.deriver = d }
}

// WithTimelock overrides TimelockDuration.
func WithTimelock(d time.Duration) Option {
	return func(e *Engine) { e.timelock = d }
}

// New returns an Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		deriver:   address.NewDeriver(solana.PublicKey{}),
		publisher: &events.NoopPublisher{},
		logger:    slog.Default(),
		clock:     time.Now,
		timelock:  TimelockDuration,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddListener registers fn to receive committed events.
func (e *Engine) AddListener(fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Deriver returns the engine's address deriver.
func (e *Engine) Deriver() *address.Deriver {
	return e.deriver
}

// Now returns the engine clock as unix seconds.
func (e *Engine) Now() int64 {
	return e.now()
}

func (e *Engine) now() int64 {
	return e.clock().Unix()
}

// recordAndPublish persists an event to the store, publishes it to NATS and
// hands it to listeners. All three are best-effort; failures are logged but
// do not fail the operation that already committed.
func (e *Engine) recordAndPublish(ctx context.Context, topic string, scheduleID *uint64, actor solana.PublicKey, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Warn("failed to marshal event", "topic", topic, "error", err)
		return
	}
	rec := &model.Event{Topic: topic, ScheduleID: scheduleID, Payload: payload}
	if !actor.IsZero() {
		rec.Actor = actor.String()
	}
	if err := e.store.RecordEvent(ctx, rec); err != nil {
		e.logger.Warn("failed to record event", "topic", topic, "error", err)
	}
	if err := e.publisher.Publish(ctx, topic, event); err != nil {
		e.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
	e.mu.RLock()
	listeners := e.listeners
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(topic, event)
	}
}

// InitializeConfig creates the program config with admin as its permanent
// admin. A non-zero initialHub becomes the distribution hub immediately;
// every later hub change goes through the timelock.
func (e *Engine) InitializeConfig(ctx context.Context, admin, initialHub solana.PublicKey) (*model.ProgramConfig, error) {
	if admin.IsZero() {
		return nil, fmt.Errorf("initialize: admin is required: %w", model.ErrUnauthorized)
	}
	addr, bump, err := e.deriver.ProgramConfig()
	if err != nil {
		return nil, err
	}
	cfg := &model.ProgramConfig{
		Address:         addr,
		Bump:            bump,
		Admin:           admin,
		DistributionHub: initialHub,
	}
	if err := e.store.CreateProgramConfig(ctx, cfg); err != nil {
		return nil, err
	}

	e.logger.Info("program initialized", "admin", admin, "distribution_hub", initialHub, "config", addr)
	e.recordAndPublish(ctx, events.TopicProgramInitialized, nil, admin, events.ProgramInitialized{
		Admin:           admin,
		DistributionHub: initialHub,
		ConfigAddress:   addr,
	})
	return cfg, nil
}

// Config returns the program config.
func (e *Engine) Config(ctx context.Context) (*model.ProgramConfig, error) {
	return e.store.GetProgramConfig(ctx)
}

// Schedule returns schedule id.
func (e *Engine) Schedule(ctx context.Context, id uint64) (*model.Schedule, error) {
	return e.store.GetSchedule(ctx, id)
}

// Schedules lists schedules matching filter, with the total match count.
func (e *Engine) Schedules(ctx context.Context, filter model.ScheduleFilter) ([]*model.Schedule, int, error) {
	return e.store.ListSchedules(ctx, filter)
}

// Events returns the recorded events of schedule id, oldest first.
func (e *Engine) Events(ctx context.Context, id uint64) ([]*model.Event, error) {
	return e.store.GetEvents(ctx, id)
}

// Release previews schedule id at unix time at. Zero means now.
func (e *Engine) Release(ctx context.Context, id uint64, at int64) (*Release, error) {
	s, err := e.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if at == 0 {
		at = e.now()
	}
	return ReleaseAt(s, at)
}

// Account returns a ledger account.
func (e *Engine) Account(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error) {
	return ledger.New(e.store).Account(ctx, addr)
}

// OpenAccount registers a ledger account and optionally credits an initial
// deposit. Admin only.
func (e *Engine) OpenAccount(ctx context.Context, caller, addr, mint, owner solana.PublicKey, deposit uint64) (*model.TokenAccount, error) {
	var out *model.TokenAccount
	err := e.store.RunInTransaction(ctx, func(tx store.Store) error {
		cfg, err := tx.GetProgramConfig(ctx)
		if err != nil {
			return err
		}
		if !caller.Equals(cfg.Admin) {
			return model.ErrUnauthorized
		}
		book := ledger.New(tx)
		if out, err = book.Open(ctx, addr, mint, owner); err != nil {
			return err
		}
		if deposit > 0 {
			out, err = book.Deposit(ctx, addr, deposit)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("account opened", "address", addr, "mint", mint, "owner", owner, "amount", deposit)
	return out, nil
}
