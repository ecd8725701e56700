package vesting

import (
	"context"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/events"
	"github.com/alfredjeanlab/vesting/internal/ledger"
	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store"
)

// CreateSchedule creates schedule id and moves params.TotalAmount from the
// admin's depositor account into a fresh vault owned by the schedule. id must
// equal the config's TotalSchedules. Admin only.
//
// The config row stays locked for the whole transaction, so concurrent
// creations serialize and each sees the id the previous one left behind.
func (e *Engine) CreateSchedule(ctx context.Context, caller solana.PublicKey, id uint64, params model.ScheduleParams) (*model.Schedule, error) {
	var created *model.Schedule
	err := e.store.RunInTransaction(ctx, func(tx store.Store) error {
		cfg, err := tx.LockProgramConfig(ctx)
		if err != nil {
			return err
		}
		if !caller.Equals(cfg.Admin) {
			return model.ErrUnauthorized
		}
		if id != cfg.TotalSchedules {
			return fmt.Errorf("schedule id %d, next is %d: %w", id, cfg.TotalSchedules, model.ErrScheduleIDConflict)
		}
		if err := model.ValidateScheduleParams(&params); err != nil {
			return err
		}
		if err := checkFunding(ctx, tx, cfg.Admin, &params); err != nil {
			return err
		}

		schedAddr, schedBump, err := e.deriver.Schedule(id)
		if err != nil {
			return fmt.Errorf("derive schedule address: %w", err)
		}
		vaultAddr, vaultBump, err := e.deriver.Vault(id)
		if err != nil {
			return fmt.Errorf("derive vault address: %w", err)
		}

		book := ledger.New(tx)
		if _, err := book.Open(ctx, vaultAddr, params.Mint, schedAddr); err != nil {
			return fmt.Errorf("open vault: %w", err)
		}
		if err := book.Transfer(ctx, params.DepositorAccount, vaultAddr, caller, params.TotalAmount); err != nil {
			return fmt.Errorf("fund vault: %w", err)
		}

		s := &model.Schedule{
			ID:                    id,
			Address:               schedAddr,
			Bump:                  schedBump,
			Mint:                  params.Mint,
			Vault:                 vaultAddr,
			VaultBump:             vaultBump,
			Depositor:             caller,
			DepositorAccount:      params.DepositorAccount,
			Routing:               params.Routing,
			Beneficiary:           params.Beneficiary,
			BeneficiaryAccount:    params.BeneficiaryAccount,
			TotalAmount:           params.TotalAmount,
			CliffTimestamp:        params.CliffTimestamp,
			VestingStartTimestamp: params.VestingStartTimestamp,
			VestingEndTimestamp:   params.VestingEndTimestamp,
			SourceCategory:        params.SourceCategory,
		}
		if err := tx.CreateSchedule(ctx, s); err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}

		if cfg.TotalSchedules == math.MaxUint64 {
			return model.ErrMathOverflow
		}
		cfg.TotalSchedules++
		if err := tx.UpdateProgramConfig(ctx, cfg); err != nil {
			return fmt.Errorf("update program config: %w", err)
		}
		created = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("vesting schedule created",
		"schedule_id", created.ID, "mint", created.Mint, "routing", created.Routing,
		"amount", created.TotalAmount, "category", created.SourceCategory)
	e.recordAndPublish(ctx, events.TopicScheduleCreated, &created.ID, caller, events.ScheduleCreated{
		ScheduleID:            created.ID,
		Address:               created.Address,
		Depositor:             created.Depositor,
		Mint:                  created.Mint,
		Routing:               created.Routing,
		TotalAmount:           created.TotalAmount,
		CliffTimestamp:        created.CliffTimestamp,
		VestingStartTimestamp: created.VestingStartTimestamp,
		VestingEndTimestamp:   created.VestingEndTimestamp,
		SourceCategory:        created.SourceCategory,
	})
	return created, nil
}

// checkFunding verifies the depositor account can fund the schedule and,
// for beneficiary routing, that the receiving account belongs to the
// beneficiary in the schedule's mint.
func checkFunding(ctx context.Context, tx store.Store, admin solana.PublicKey, p *model.ScheduleParams) error {
	dep, err := tx.GetAccount(ctx, p.DepositorAccount)
	if err != nil {
		return fmt.Errorf("depositor account %s: %w", p.DepositorAccount, err)
	}
	if !dep.Owner.Equals(admin) {
		return fmt.Errorf("depositor account %s is not owned by the admin: %w", dep.Address, model.ErrUnauthorized)
	}
	if !dep.Mint.Equals(p.Mint) {
		return fmt.Errorf("depositor account %s: %w", dep.Address, model.ErrMintMismatch)
	}
	if dep.Amount < p.TotalAmount {
		return fmt.Errorf("depositor holds %d, schedule needs %d: %w", dep.Amount, p.TotalAmount, model.ErrInsufficientFunds)
	}

	if p.Routing != model.RoutingBeneficiary {
		return nil
	}
	rcpt, err := tx.GetAccount(ctx, p.BeneficiaryAccount)
	if err != nil {
		return fmt.Errorf("beneficiary account %s: %w", p.BeneficiaryAccount, err)
	}
	if !rcpt.Owner.Equals(p.Beneficiary) {
		return fmt.Errorf("beneficiary account %s: %w", rcpt.Address, model.ErrRecipientAccountMismatch)
	}
	if !rcpt.Mint.Equals(p.Mint) {
		return fmt.Errorf("beneficiary account %s: %w", rcpt.Address, model.ErrRecipientAccountMintMismatch)
	}
	return nil
}
