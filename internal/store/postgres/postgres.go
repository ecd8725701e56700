// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateProgramConfig(ctx context.Context, cfg *model.ProgramConfig) error {
	return queryCreateProgramConfig(ctx, s.db, cfg)
}

func (s *PostgresStore) GetProgramConfig(ctx context.Context) (*model.ProgramConfig, error) {
	return queryGetProgramConfig(ctx, s.db, false)
}

func (s *PostgresStore) LockProgramConfig(ctx context.Context) (*model.ProgramConfig, error) {
	return queryGetProgramConfig(ctx, s.db, false)
}

func (s *PostgresStore) UpdateProgramConfig(ctx context.Context, cfg *model.ProgramConfig) error {
	return queryUpdateProgramConfig(ctx, s.db, cfg)
}

func (s *PostgresStore) CreateSchedule(ctx context.Context, sc *model.Schedule) error {
	return queryCreateSchedule(ctx, s.db, sc)
}

func (s *PostgresStore) GetSchedule(ctx context.Context, id uint64) (*model.Schedule, error) {
	return queryGetSchedule(ctx, s.db, id, false)
}

func (s *PostgresStore) LockSchedule(ctx context.Context, id uint64) (*model.Schedule, error) {
	return queryGetSchedule(ctx, s.db, id, false)
}

func (s *PostgresStore) ListSchedules(ctx context.Context, filter model.ScheduleFilter) ([]*model.Schedule, int, error) {
	return queryListSchedules(ctx, s.db, filter)
}

func (s *PostgresStore) AdvanceSchedule(ctx context.Context, id uint64, prev, next uint64) error {
	return queryAdvanceSchedule(ctx, s.db, id, prev, next)
}

func (s *PostgresStore) DeleteSchedule(ctx context.Context, id uint64) error {
	return queryDeleteSchedule(ctx, s.db, id)
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.TokenAccount) error {
	return queryCreateAccount(ctx, s.db, a)
}

func (s *PostgresStore) GetAccount(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error) {
	return queryGetAccount(ctx, s.db, addr, false)
}

func (s *PostgresStore) LockAccount(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error) {
	return queryGetAccount(ctx, s.db, addr, false)
}

func (s *PostgresStore) SetAccountAmount(ctx context.Context, addr solana.PublicKey, amount uint64) error {
	return querySetAccountAmount(ctx, s.db, addr, amount)
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, addr solana.PublicKey) error {
	return queryDeleteAccount(ctx, s.db, addr)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.db, event)
}

func (s *PostgresStore) GetEvents(ctx context.Context, scheduleID uint64) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.db, scheduleID)
}

func (s *PostgresStore) ListEvents(ctx context.Context, afterID int64, limit int) ([]*model.Event, error) {
	return queryListEvents(ctx, s.db, afterID, limit)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx. Lock* methods take row
// locks with SELECT ... FOR UPDATE.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateProgramConfig(ctx context.Context, cfg *model.ProgramConfig) error {
	return queryCreateProgramConfig(ctx, s.tx, cfg)
}

func (s *txStore) GetProgramConfig(ctx context.Context) (*model.ProgramConfig, error) {
	return queryGetProgramConfig(ctx, s.tx, false)
}

func (s *txStore) LockProgramConfig(ctx context.Context) (*model.ProgramConfig, error) {
	return queryGetProgramConfig(ctx, s.tx, true)
}

func (s *txStore) UpdateProgramConfig(ctx context.Context, cfg *model.ProgramConfig) error {
	return queryUpdateProgramConfig(ctx, s.tx, cfg)
}

func (s *txStore) CreateSchedule(ctx context.Context, sc *model.Schedule) error {
	return queryCreateSchedule(ctx, s.tx, sc)
}

func (s *txStore) GetSchedule(ctx context.Context, id uint64) (*model.Schedule, error) {
	return queryGetSchedule(ctx, s.tx, id, false)
}

func (s *txStore) LockSchedule(ctx context.Context, id uint64) (*model.Schedule, error) {
	return queryGetSchedule(ctx, s.tx, id, true)
}

func (s *txStore) ListSchedules(ctx context.Context, filter model.ScheduleFilter) ([]*model.Schedule, int, error) {
	return queryListSchedules(ctx, s.tx, filter)
}

func (s *txStore) AdvanceSchedule(ctx context.Context, id uint64, prev, next uint64) error {
	return queryAdvanceSchedule(ctx, s.tx, id, prev, next)
}

func (s *txStore) DeleteSchedule(ctx context.Context, id uint64) error {
	return queryDeleteSchedule(ctx, s.tx, id)
}

func (s *txStore) CreateAccount(ctx context.Context, a *model.TokenAccount) error {
	return queryCreateAccount(ctx, s.tx, a)
}

func (s *txStore) GetAccount(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error) {
	return queryGetAccount(ctx, s.tx, addr, false)
}

func (s *txStore) LockAccount(ctx context.Context, addr solana.PublicKey) (*model.TokenAccount, error) {
	return queryGetAccount(ctx, s.tx, addr, true)
}

func (s *txStore) SetAccountAmount(ctx context.Context, addr solana.PublicKey, amount uint64) error {
	return querySetAccountAmount(ctx, s.tx, addr, amount)
}

func (s *txStore) DeleteAccount(ctx context.Context, addr solana.PublicKey) error {
	return queryDeleteAccount(ctx, s.tx, addr)
}

func (s *txStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.tx, event)
}

func (s *txStore) GetEvents(ctx context.Context, scheduleID uint64) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.tx, scheduleID)
}

func (s *txStore) ListEvents(ctx context.Context, afterID int64, limit int) ([]*model.Event, error) {
	return queryListEvents(ctx, s.tx, afterID, limit)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
