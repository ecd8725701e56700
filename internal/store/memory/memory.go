// Package memory implements store.Store in process memory. Transactions run
// one at a time against a private copy of the state that replaces the shared
// state on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store"
)

type state struct {
	config      *model.ProgramConfig
	schedules   map[uint64]*model.Schedule
	accounts    map[solana.PublicKey]*model.TokenAccount
	events      []*model.Event
	nextEventID int64
}

func newState() *state {
	return &state{
		schedules:   make(map[uint64]*model.Schedule),
		accounts:    make(map[solana.PublicKey]*model.TokenAccount),
		nextEventID: 1,
	}
}

func (st *state) clone() *state {
	c := &state{
		schedules:   make(map[uint64]*model.Schedule, len(st.schedules)),
		accounts:    make(map[solana.PublicKey]*model.TokenAccount, len(st.accounts)),
		events:      append([]*model.Event(nil), st.events...),
		nextEventID: st.nextEventID,
	}
	if st.config != nil {
		c.config = copyConfig(st.config)
	}
	for k, v := range st.schedules {
		s := *v
		c.schedules[k] = &s
	}
	for k, v := range st.accounts {
		a := *v
		c.accounts[k] = &a
	}
	return c
}

// Store is an in-memory store.Store.
type Store struct {
	mu  sync.Mutex // serializes transactions
	st  *state
	now func() time.Time
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// RunInTransaction runs fn against a copy of the state and installs the copy
// if fn returns nil. Transactions are serialized.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &txStore{st: s.st.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// view runs a single operation as its own transaction.
func (s *Store) view(ctx context.Context, fn func(tx *txStore) error) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return fn(tx.(*txStore))
	})
}

func (s *Store) CreateProgramConfig(ctx context.Context, cfg *model.ProgramConfig) error {
	return s.view(ctx, func(tx *txStore) error { return tx.CreateProgramConfig(ctx, cfg) })
}

func (s *Store) GetProgramConfig(ctx context.Context) (cfg *model.ProgramConfig, err error) {
	err = s.view(ctx, func(tx *txStore) error { cfg, err = tx.GetProgramConfig(ctx); return err })
	return cfg, err
}

func (s *Store) LockProgramConfig(ctx context.Context) (*model.ProgramConfig, error) {
	return s.GetProgramConfig(ctx)
}

func (s *Store) UpdateProgramConfig(ctx context.Context, cfg *model.ProgramConfig) error {
	return s.view(ctx, func(tx *txStore) error { return tx.UpdateProgramConfig(ctx, cfg) })
}

func (s *Store) CreateSchedule(ctx context.Context, sc *model.Schedule) error {
	return s.view(ctx, func(tx *txStore) error { return tx.CreateSchedule(ctx, sc) })
}

func (s *Store) GetSchedule(ctx context.Context, id uint64) (sc *model.Schedule, err error) {
	err = s.view(ctx, func(tx *txStore) error { sc, err = tx.GetSchedule(ctx, id); return err })
	return sc, err
}

func (s *Store) LockSchedule(ctx context.Context, id uint64) (*model.Schedule, error) {
	return s.GetSchedule(ctx, id)
}

func (s *Store) ListSchedules(ctx context.Context, filter model.ScheduleFilter) (out []*model.Schedule, total int, err error) {
	err = s.view(ctx, func(tx *txStore) error { out, total, err = tx.ListSchedules(ctx, filter); return err })
	return out, total, err
}

func (s *Store) AdvanceSchedule(ctx context.Context, id uint64, prev, next uint64) error {
	return s.view(ctx, func(tx *txStore) error { return tx.AdvanceSchedule(ctx, id, prev, next) })
}

func (s *Store) DeleteSchedule(ctx context.Context, id uint64) error {
	return s.view(ctx, func(tx *txStore) error { return tx.DeleteSchedule(ctx, id) })
}

func (s *Store) CreateAccount(ctx context.Context, a *model.TokenAccount) error {
	return s.view(ctx, func(tx *txStore) error { return tx.CreateAccount(ctx, a) })
}

func (s *Store) GetAccount(ctx context.Context, addr solana.PublicKey) (a *model.TokenAccount, err error) {
	err = s.view(ctx, func(tx *txStore) error { a, err = tx.GetAccount(ctx, addr); return err })
	return a, err
}

func (s *Store) LockAccount(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error) {
	return s.GetAccount(ctx, addr)
}

func (s *Store) SetAccountAmount(ctx context.Context, addr solana.PublicKey, amount uint64) error {
	return s.view(ctx, func(tx *txStore) error { return tx.SetAccountAmount(ctx, addr, amount) })
}

func (s *Store) DeleteAccount(ctx context.Context, addr solana.PublicKey) error {
	return s.view(ctx, func(tx *txStore) error { return tx.DeleteAccount(ctx, addr) })
}

func (s *Store) RecordEvent(ctx context.Context, event *model.Event) error {
	return s.view(ctx, func(tx *txStore) error { return tx.RecordEvent(ctx, event) })
}

func (s *Store) GetEvents(ctx context.Context, scheduleID uint64) (out []*model.Event, err error) {
	err = s.view(ctx, func(tx *txStore) error { out, err = tx.GetEvents(ctx, scheduleID); return err })
	return out, err
}

func (s *Store) ListEvents(ctx context.Context, afterID int64, limit int) (out []*model.Event, err error) {
	err = s.view(ctx, func(tx *txStore) error { out, err = tx.ListEvents(ctx, afterID, limit); return err })
	return out, err
}

// txStore operates on a private state copy. Records handed out are copies so
// callers cannot mutate stored state without going through the store.
type txStore struct {
	st  *state
	now func() time.Time
}

var _ store.Store = (*txStore)(nil)

func (t *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *txStore) Close() error { return nil }

func (t *txStore) CreateProgramConfig(_ context.Context, cfg *model.ProgramConfig) error {
	if t.st.config != nil {
		return model.ErrAlreadyInitialized
	}
	now := t.now().UTC()
	cfg.CreatedAt, cfg.UpdatedAt = now, now
	t.st.config = copyConfig(cfg)
	return nil
}

func (t *txStore) GetProgramConfig(_ context.Context) (*model.ProgramConfig, error) {
	if t.st.config == nil {
		return nil, model.ErrNotInitialized
	}
	return copyConfig(t.st.config), nil
}

func (t *txStore) LockProgramConfig(ctx context.Context) (*model.ProgramConfig, error) {
	return t.GetProgramConfig(ctx)
}

func (t *txStore) UpdateProgramConfig(_ context.Context, cfg *model.ProgramConfig) error {
	if t.st.config == nil {
		return model.ErrNotInitialized
	}
	cur := t.st.config
	next := copyConfig(cur)
	next.DistributionHub = cfg.DistributionHub
	next.PendingHub = copyPending(cfg.PendingHub)
	next.TotalSchedules = cfg.TotalSchedules
	next.UpdatedAt = t.now().UTC()
	cfg.UpdatedAt = next.UpdatedAt
	t.st.config = next
	return nil
}

func (t *txStore) CreateSchedule(_ context.Context, s *model.Schedule) error {
	if _, ok := t.st.schedules[s.ID]; ok {
		return fmt.Errorf("schedule %d: %w", s.ID, model.ErrScheduleIDConflict)
	}
	if _, ok := t.st.accounts[s.Vault]; !ok {
		return fmt.Errorf("schedule %d vault %s: %w", s.ID, s.Vault, model.ErrAccountNotFound)
	}
	now := t.now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	c := *s
	t.st.schedules[s.ID] = &c
	return nil
}

func (t *txStore) GetSchedule(_ context.Context, id uint64) (*model.Schedule, error) {
	s, ok := t.st.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %d: %w", id, model.ErrScheduleNotFound)
	}
	c := *s
	return &c, nil
}

func (t *txStore) LockSchedule(ctx context.Context, id uint64) (*model.Schedule, error) {
	return t.GetSchedule(ctx, id)
}

func (t *txStore) ListSchedules(_ context.Context, filter model.ScheduleFilter) ([]*model.Schedule, int, error) {
	ids := make([]uint64, 0, len(t.st.schedules))
	for id, s := range t.st.schedules {
		if matches(s, filter) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := len(ids)
	if filter.Offset > 0 {
		if filter.Offset >= len(ids) {
			ids = nil
		} else {
			ids = ids[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(ids) > filter.Limit {
		ids = ids[:filter.Limit]
	}

	out := make([]*model.Schedule, 0, len(ids))
	for _, id := range ids {
		c := *t.st.schedules[id]
		out = append(out, &c)
	}
	return out, total, nil
}

func matches(s *model.Schedule, f model.ScheduleFilter) bool {
	switch {
	case f.Mint != nil && !s.Mint.Equals(*f.Mint):
		return false
	case f.Routing != "" && s.Routing != f.Routing:
		return false
	case f.Category != "" && s.SourceCategory != f.Category:
		return false
	case f.OpenOnly && s.FullyProcessed():
		return false
	case f.CliffBy != nil && s.CliffTimestamp > *f.CliffBy:
		return false
	}
	return true
}

func (t *txStore) AdvanceSchedule(_ context.Context, id uint64, prev, next uint64) error {
	s, ok := t.st.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %d: %w", id, model.ErrScheduleNotFound)
	}
	if s.AmountTransferred != prev {
		return fmt.Errorf("schedule %d: %w", id, model.ErrConcurrentModification)
	}
	if next > s.TotalAmount {
		return fmt.Errorf("schedule %d: advance to %d exceeds total %d: %w", id, next, s.TotalAmount, model.ErrInvariantViolation)
	}
	s.AmountTransferred = next
	s.UpdatedAt = t.now().UTC()
	return nil
}

func (t *txStore) DeleteSchedule(_ context.Context, id uint64) error {
	if _, ok := t.st.schedules[id]; !ok {
		return fmt.Errorf("schedule %d: %w", id, model.ErrScheduleNotFound)
	}
	delete(t.st.schedules, id)
	return nil
}

func (t *txStore) CreateAccount(_ context.Context, a *model.TokenAccount) error {
	if _, ok := t.st.accounts[a.Address]; ok {
		return fmt.Errorf("account %s: %w", a.Address, model.ErrAccountExists)
	}
	now := t.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	c := *a
	t.st.accounts[a.Address] = &c
	return nil
}

func (t *txStore) GetAccount(_ context.Context, addr solana.PublicKey) (*model.TokenAccount, error) {
	a, ok := t.st.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", addr, model.ErrAccountNotFound)
	}
	c := *a
	return &c, nil
}

func (t *txStore) LockAccount(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error) {
	return t.GetAccount(ctx, addr)
}

func (t *txStore) SetAccountAmount(_ context.Context, addr solana.PublicKey, amount uint64) error {
	a, ok := t.st.accounts[addr]
	if !ok {
		return fmt.Errorf("account %s: %w", addr, model.ErrAccountNotFound)
	}
	a.Amount = amount
	a.UpdatedAt = t.now().UTC()
	return nil
}

func (t *txStore) DeleteAccount(_ context.Context, addr solana.PublicKey) error {
	if _, ok := t.st.accounts[addr]; !ok {
		return fmt.Errorf("account %s: %w", addr, model.ErrAccountNotFound)
	}
	for _, s := range t.st.schedules {
		if s.Vault.Equals(addr) {
			return fmt.Errorf("account %s is the vault of schedule %d: %w", addr, s.ID, model.ErrAccountNotEmpty)
		}
	}
	delete(t.st.accounts, addr)
	return nil
}

func (t *txStore) RecordEvent(_ context.Context, e *model.Event) error {
	e.ID = t.st.nextEventID
	t.st.nextEventID++
	e.CreatedAt = t.now().UTC()
	c := *e
	t.st.events = append(t.st.events, &c)
	return nil
}

func (t *txStore) GetEvents(_ context.Context, scheduleID uint64) ([]*model.Event, error) {
	var out []*model.Event
	for _, e := range t.st.events {
		if e.ScheduleID != nil && *e.ScheduleID == scheduleID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (t *txStore) ListEvents(_ context.Context, afterID int64, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*model.Event
	for _, e := range t.st.events {
		if e.ID <= afterID {
			continue
		}
		c := *e
		out = append(out, &c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func copyConfig(c *model.ProgramConfig) *model.ProgramConfig {
	out := *c
	out.PendingHub = copyPending(c.PendingHub)
	return &out
}

func copyPending(p *model.PendingHubChange) *model.PendingHubChange {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
