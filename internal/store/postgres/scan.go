package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// keyField collects a base58 column and the destination it decodes into.
type keyField struct {
	raw string
	dst *solana.PublicKey
}

func decodeKeys(fields ...*keyField) error {
	for _, f := range fields {
		k, err := solana.PublicKeyFromBase58(f.raw)
		if err != nil {
			return fmt.Errorf("decode key %q: %w", f.raw, err)
		}
		*f.dst = k
	}
	return nil
}

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode numeric %q: %w", s, err)
	}
	return v, nil
}

// scanProgramConfig scans a single row into a model.ProgramConfig.
// The row must contain columns in the order defined by configColumns.
func scanProgramConfig(row scannable) (*model.ProgramConfig, error) {
	var c model.ProgramConfig
	var (
		address         = keyField{dst: &c.Address}
		admin           = keyField{dst: &c.Admin}
		hub             = keyField{dst: &c.DistributionHub}
		bump            int16
		pendingHub      sql.NullString
		pendingDeadline sql.NullInt64
		totalSchedules  string
	)

	err := row.Scan(
		&address.raw,
		&bump,
		&admin.raw,
		&hub.raw,
		&pendingHub,
		&pendingDeadline,
		&totalSchedules,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeKeys(&address, &admin, &hub); err != nil {
		return nil, err
	}
	c.Bump = uint8(bump)
	if c.TotalSchedules, err = parseU64(totalSchedules); err != nil {
		return nil, err
	}
	if pendingHub.Valid && pendingDeadline.Valid {
		p := &model.PendingHubChange{Deadline: pendingDeadline.Int64}
		target := keyField{raw: pendingHub.String, dst: &p.Target}
		if err := decodeKeys(&target); err != nil {
			return nil, err
		}
		c.PendingHub = p
	}
	return &c, nil
}

// scanSchedule scans a single row into a model.Schedule.
// The row must contain columns in the order defined by scheduleColumns.
func scanSchedule(row scannable) (*model.Schedule, error) {
	s, dest, finish := scheduleDest()
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return s, nil
}

// scanScheduleWithTotal scans a row with a leading total_count column.
func scanScheduleWithTotal(row scannable) (*model.Schedule, int, error) {
	var total int
	s, dest, finish := scheduleDest()
	if err := row.Scan(append([]any{&total}, dest...)...); err != nil {
		return nil, 0, err
	}
	if err := finish(); err != nil {
		return nil, 0, err
	}
	return s, total, nil
}

// scheduleDest returns scan destinations for scheduleColumns and a func that
// decodes them into the returned schedule after Scan.
func scheduleDest() (*model.Schedule, []any, func() error) {
	var s model.Schedule
	var (
		id, total, transferred string
		bump, vaultBump        int16
		address                = keyField{dst: &s.Address}
		mint                   = keyField{dst: &s.Mint}
		vault                  = keyField{dst: &s.Vault}
		depositor              = keyField{dst: &s.Depositor}
		depositorAccount       = keyField{dst: &s.DepositorAccount}
		beneficiary            = keyField{dst: &s.Beneficiary}
		beneficiaryAccount     = keyField{dst: &s.BeneficiaryAccount}
	)
	dest := []any{
		&id,
		&address.raw,
		&bump,
		&mint.raw,
		&vault.raw,
		&vaultBump,
		&depositor.raw,
		&depositorAccount.raw,
		&s.Routing,
		&beneficiary.raw,
		&beneficiaryAccount.raw,
		&total,
		&s.CliffTimestamp,
		&s.VestingStartTimestamp,
		&s.VestingEndTimestamp,
		&transferred,
		&s.SourceCategory,
		&s.CreatedAt,
		&s.UpdatedAt,
	}
	finish := func() error {
		if err := decodeKeys(&address, &mint, &vault, &depositor, &depositorAccount, &beneficiary, &beneficiaryAccount); err != nil {
			return err
		}
		var err error
		if s.ID, err = parseU64(id); err != nil {
			return err
		}
		if s.TotalAmount, err = parseU64(total); err != nil {
			return err
		}
		if s.AmountTransferred, err = parseU64(transferred); err != nil {
			return err
		}
		s.Bump = uint8(bump)
		s.VaultBump = uint8(vaultBump)
		return nil
	}
	return &s, dest, finish
}

// scanAccount scans a single row into a model.TokenAccount.
// The row must contain columns in the order defined by accountColumns.
func scanAccount(row scannable) (*model.TokenAccount, error) {
	var a model.TokenAccount
	var (
		address = keyField{dst: &a.Address}
		mint    = keyField{dst: &a.Mint}
		owner   = keyField{dst: &a.Owner}
		amount  string
	)
	if err := row.Scan(&address.raw, &mint.raw, &owner.raw, &amount, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeKeys(&address, &mint, &owner); err != nil {
		return nil, err
	}
	var err error
	if a.Amount, err = parseU64(amount); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		scheduleID sql.NullString
		payload    []byte
	)
	if err := row.Scan(&e.ID, &e.Topic, &scheduleID, &e.Actor, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	if scheduleID.Valid {
		id, err := parseU64(scheduleID.String)
		if err != nil {
			return nil, err
		}
		e.ScheduleID = &id
	}
	e.Payload = json.RawMessage(payload)
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
