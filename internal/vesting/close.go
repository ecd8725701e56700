package vesting

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/events"
	"github.com/alfredjeanlab/vesting/internal/ledger"
	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store"
)

// CloseSchedule removes a fully released schedule and its empty vault. The
// admin or the schedule's depositor may close it. TotalSchedules is left
// untouched, so ids are never reused.
func (e *Engine) CloseSchedule(ctx context.Context, caller solana.PublicKey, id uint64) (*model.Schedule, error) {
	var closed *model.Schedule
	err := e.store.RunInTransaction(ctx, func(tx store.Store) error {
		cfg, err := tx.GetProgramConfig(ctx)
		if err != nil {
			return err
		}
		isAdmin := caller.Equals(cfg.Admin)

		s, err := tx.LockSchedule(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrScheduleNotFound) && !isAdmin {
				return model.ErrUnauthorized
			}
			return err
		}
		if !isAdmin && !caller.Equals(s.Depositor) {
			return model.ErrUnauthorized
		}
		if !s.FullyProcessed() {
			return fmt.Errorf("schedule %d released %d of %d: %w", id, s.AmountTransferred, s.TotalAmount, model.ErrScheduleNotFullyVested)
		}
		vault, err := tx.LockAccount(ctx, s.Vault)
		if err != nil {
			return fmt.Errorf("vault %s: %w", s.Vault, err)
		}
		if vault.Amount != 0 {
			return fmt.Errorf("vault %s still holds %d: %w", vault.Address, vault.Amount, model.ErrScheduleNotFullyVested)
		}

		if err := tx.DeleteSchedule(ctx, id); err != nil {
			return err
		}
		if err := ledger.New(tx).Close(ctx, s.Vault, s.Address); err != nil {
			return fmt.Errorf("close vault: %w", err)
		}
		closed = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("vesting schedule closed", "schedule_id", id, "closed_by", caller)
	e.recordAndPublish(ctx, events.TopicScheduleClosed, &id, caller, events.ScheduleClosed{
		ScheduleID: id,
		ClosedBy:   caller,
	})
	return closed, nil
}
