package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/vesting/internal/model"
)

// configColumns is the column list used for SELECT statements on program_config.
const configColumns = `address, bump, admin, distribution_hub, pending_hub,
	pending_deadline, total_schedules, created_at, updated_at`

// scheduleColumns is the column list used for SELECT statements on vesting_schedules.
const scheduleColumns = `id, address, bump, mint, vault, vault_bump, depositor,
	depositor_account, routing, beneficiary, beneficiary_account, total_amount,
	cliff_timestamp, vesting_start_timestamp, vesting_end_timestamp,
	amount_transferred, source_category, created_at, updated_at`

// accountColumns is the column list used for SELECT statements on token_accounts.
const accountColumns = `address, mint, owner, amount, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func forUpdate(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

func queryCreateProgramConfig(ctx context.Context, db executor, c *model.ProgramConfig) error {
	pendingHub, pendingDeadline := pendingColumns(c.PendingHub)
	err := db.QueryRowContext(ctx, `
		INSERT INTO program_config (
			address, bump, admin, distribution_hub, pending_hub, pending_deadline, total_schedules
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		c.Address.String(),
		int16(c.Bump),
		c.Admin.String(),
		c.DistributionHub.String(),
		pendingHub,
		pendingDeadline,
		u64(c.TotalSchedules),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrAlreadyInitialized
	}
	return err
}

func queryGetProgramConfig(ctx context.Context, db executor, lock bool) (*model.ProgramConfig, error) {
	row := db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM program_config WHERE singleton`+forUpdate(lock))
	c, err := scanProgramConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("get program config: %w", err)
	}
	return c, nil
}

func queryUpdateProgramConfig(ctx context.Context, db executor, c *model.ProgramConfig) error {
	pendingHub, pendingDeadline := pendingColumns(c.PendingHub)
	err := db.QueryRowContext(ctx, `
		UPDATE program_config SET
			distribution_hub = $1,
			pending_hub = $2,
			pending_deadline = $3,
			total_schedules = $4,
			updated_at = NOW()
		WHERE singleton
		RETURNING updated_at`,
		c.DistributionHub.String(),
		pendingHub,
		pendingDeadline,
		u64(c.TotalSchedules),
	).Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotInitialized
	}
	return err
}

func queryCreateSchedule(ctx context.Context, db executor, s *model.Schedule) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO vesting_schedules (
			id, address, bump, mint, vault, vault_bump, depositor,
			depositor_account, routing, beneficiary, beneficiary_account, total_amount,
			cliff_timestamp, vesting_start_timestamp, vesting_end_timestamp,
			amount_transferred, source_category
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17
		)
		RETURNING created_at, updated_at`,
		u64(s.ID),
		s.Address.String(),
		int16(s.Bump),
		s.Mint.String(),
		s.Vault.String(),
		int16(s.VaultBump),
		s.Depositor.String(),
		s.DepositorAccount.String(),
		string(s.Routing),
		s.Beneficiary.String(),
		s.BeneficiaryAccount.String(),
		u64(s.TotalAmount),
		s.CliffTimestamp,
		s.VestingStartTimestamp,
		s.VestingEndTimestamp,
		u64(s.AmountTransferred),
		string(s.SourceCategory),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("schedule %d: %w", s.ID, model.ErrScheduleIDConflict)
	}
	return err
}

func queryGetSchedule(ctx context.Context, db executor, id uint64, lock bool) (*model.Schedule, error) {
	row := db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM vesting_schedules WHERE id = $1`+forUpdate(lock), u64(id))
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d: %w", id, model.ErrScheduleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %d: %w", id, err)
	}
	return s, nil
}

func queryListSchedules(ctx context.Context, db executor, filter model.ScheduleFilter) ([]*model.Schedule, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Mint != nil {
		whereClauses = append(whereClauses, "mint = "+nextArg())
		args = append(args, filter.Mint.String())
	}
	if filter.Routing != "" {
		whereClauses = append(whereClauses, "routing = "+nextArg())
		args = append(args, string(filter.Routing))
	}
	if filter.Category != "" {
		whereClauses = append(whereClauses, "source_category = "+nextArg())
		args = append(args, string(filter.Category))
	}
	if filter.OpenOnly {
		whereClauses = append(whereClauses, "amount_transferred < total_amount")
	}
	if filter.CliffBy != nil {
		whereClauses = append(whereClauses, "cliff_timestamp <= "+nextArg())
		args = append(args, *filter.CliffBy)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + scheduleColumns + " FROM vesting_schedules" + whereSQL + " ORDER BY id ASC"

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*model.Schedule
	var total int
	for rows.Next() {
		s, t, err := scanScheduleWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan schedules: %w", err)
		}
		total = t
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan schedules: %w", err)
	}

	return schedules, total, nil
}

func queryAdvanceSchedule(ctx context.Context, db executor, id uint64, prev, next uint64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE vesting_schedules
		SET amount_transferred = $3, updated_at = NOW()
		WHERE id = $1 AND amount_transferred = $2`,
		u64(id), u64(prev), u64(next),
	)
	if err != nil {
		return fmt.Errorf("advance schedule %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance schedule %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("schedule %d: %w", id, model.ErrConcurrentModification)
	}
	return nil
}

func queryDeleteSchedule(ctx context.Context, db executor, id uint64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM vesting_schedules WHERE id = $1`, u64(id))
	if err != nil {
		return fmt.Errorf("delete schedule %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %d: %w", id, model.ErrScheduleNotFound)
	}
	return nil
}

func queryCreateAccount(ctx context.Context, db executor, a *model.TokenAccount) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO token_accounts (address, mint, owner, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		a.Address.String(), a.Mint.String(), a.Owner.String(), u64(a.Amount),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("account %s: %w", a.Address, model.ErrAccountExists)
	}
	return err
}

func queryGetAccount(ctx context.Context, db executor, addr solana.PublicKey, lock bool) (*model.TokenAccount, error) {
	row := db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM token_accounts WHERE address = $1`+forUpdate(lock), addr.String())
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", addr, model.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", addr, err)
	}
	return a, nil
}

func querySetAccountAmount(ctx context.Context, db executor, addr solana.PublicKey, amount uint64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE token_accounts SET amount = $2, updated_at = NOW()
		WHERE address = $1`,
		addr.String(), u64(amount),
	)
	if err != nil {
		return fmt.Errorf("set account %s amount: %w", addr, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", addr, model.ErrAccountNotFound)
	}
	return nil
}

func queryDeleteAccount(ctx context.Context, db executor, addr solana.PublicKey) error {
	res, err := db.ExecContext(ctx, `DELETE FROM token_accounts WHERE address = $1`, addr.String())
	if err != nil {
		return fmt.Errorf("delete account %s: %w", addr, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", addr, model.ErrAccountNotFound)
	}
	return nil
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	var scheduleID any
	if e.ScheduleID != nil {
		scheduleID = u64(*e.ScheduleID)
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, schedule_id, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, scheduleID, e.Actor, []byte(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, scheduleID uint64) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, schedule_id, actor, payload, created_at
		FROM events
		WHERE schedule_id = $1
		ORDER BY id ASC`,
		u64(scheduleID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryListEvents(ctx context.Context, db executor, afterID int64, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, schedule_id, actor, payload, created_at
		FROM events
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func pendingColumns(p *model.PendingHubChange) (sql.NullString, sql.NullInt64) {
	if p == nil {
		return sql.NullString{}, sql.NullInt64{}
	}
	return sql.NullString{String: p.Target.String(), Valid: true}, sql.NullInt64{Int64: p.Deadline, Valid: true}
}

// u64 renders a uint64 for a NUMERIC(20,0) column.
func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
