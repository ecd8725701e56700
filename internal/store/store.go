// Package store defines the persistence interface for program config,
// vesting schedules, token accounts and the event log.
package store

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/model"
)

// Store defines the persistence interface for the vesting program.
//
// Lookups of missing records return model.ErrNotInitialized,
// model.ErrScheduleNotFound or model.ErrAccountNotFound. Lock* methods read a
// record and hold it for the rest of the enclosing transaction; outside a
// transaction they behave like their Get* counterparts.
type Store interface {
	// Program config
	CreateProgramConfig(ctx context.Context, cfg *model.ProgramConfig) error
	GetProgramConfig(ctx context.Context) (*model.ProgramConfig, error)
	LockProgramConfig(ctx context.Context) (*model.ProgramConfig, error)
	UpdateProgramConfig(ctx context.Context, cfg *model.ProgramConfig) error

	// Schedules
	CreateSchedule(ctx context.Context, s *model.Schedule) error
	GetSchedule(ctx context.Context, id uint64) (*model.Schedule, error)
	LockSchedule(ctx context.Context, id uint64) (*model.Schedule, error)
	ListSchedules(ctx context.Context, filter model.ScheduleFilter) ([]*model.Schedule, int, error) // returns schedules, total count, error
	// AdvanceSchedule sets amount_transferred to next only if it still equals
	// prev. Otherwise it returns model.ErrConcurrentModification.
	AdvanceSchedule(ctx context.Context, id uint64, prev, next uint64) error
	DeleteSchedule(ctx context.Context, id uint64) error

	// Token accounts
	CreateAccount(ctx context.Context, a *model.TokenAccount) error
	GetAccount(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error)
	LockAccount(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error)
	SetAccountAmount(ctx context.Context, addr solana.PublicKey, amount uint64) error
	DeleteAccount(ctx context.Context, addr solana.PublicKey) error

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, scheduleID uint64) ([]*model.Event, error)
	ListEvents(ctx context.Context, afterID int64, limit int) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
