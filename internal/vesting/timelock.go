package vesting

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/events"
	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store"
)

// HubAction is what a hub governance call did.
type HubAction string

const (
	HubProposed  HubAction = "proposed"
	HubConfirmed HubAction = "confirmed"
)

// HubState is the hub-related slice of the program config. A nil Pending
// means no change is pending.
type HubState struct {
	Current solana.PublicKey
	Pending *model.PendingHubChange
}

// nextHubState computes the transition for a propose-or-confirm call with
// target at unix time now. It never mutates state.
//
//	target == current                    -> ErrHubAddressNotChanged
//	no pending, or pending != target     -> propose {target, now+delay}
//	pending == target, now >= deadline   -> confirm
//	pending == target, now <  deadline   -> ErrTimelockNotExpired
func nextHubState(state HubState, target solana.PublicKey, now int64, delay time.Duration) (HubState, HubAction, error) {
	if target.IsZero() {
		return state, "", model.ErrInvalidHubAddress
	}
	if target.Equals(state.Current) {
		return state, "", model.ErrHubAddressNotChanged
	}
	if state.Pending == nil || !state.Pending.Target.Equals(target) {
		delaySecs := int64(delay / time.Second)
		if now > maxInt64-delaySecs {
			return state, "", model.ErrMathOverflow
		}
		return HubState{
			Current: state.Current,
			Pending: &model.PendingHubChange{Target: target, Deadline: now + delaySecs},
		}, HubProposed, nil
	}
	if now < state.Pending.Deadline {
		return state, "", fmt.Errorf("hub change to %s unlocks at %d: %w", target, state.Pending.Deadline, model.ErrTimelockNotExpired)
	}
	return HubState{Current: target}, HubConfirmed, nil
}

const maxInt64 = int64(^uint64(0) >> 1)

// HubResult reports the outcome of ProposeOrConfirmHub.
type HubResult struct {
	Action HubAction            `json:"action"`
	Config *model.ProgramConfig `json:"config"`
}

// ProposeOrConfirmHub proposes target as the next distribution hub, or
// confirms it when the same target was proposed and its timelock has passed.
// Admin only.
func (e *Engine) ProposeOrConfirmHub(ctx context.Context, caller, target solana.PublicKey) (*HubResult, error) {
	now := e.now()
	var (
		result  *HubResult
		prevHub solana.PublicKey
	)
	err := e.store.RunInTransaction(ctx, func(tx store.Store) error {
		cfg, err := tx.LockProgramConfig(ctx)
		if err != nil {
			return err
		}
		if !caller.Equals(cfg.Admin) {
			return model.ErrUnauthorized
		}
		next, action, err := nextHubState(HubState{Current: cfg.DistributionHub, Pending: cfg.PendingHub}, target, now, e.timelock)
		if err != nil {
			return err
		}
		prevHub = cfg.DistributionHub
		cfg.DistributionHub = next.Current
		cfg.PendingHub = next.Pending
		if err := tx.UpdateProgramConfig(ctx, cfg); err != nil {
			return fmt.Errorf("update program config: %w", err)
		}
		result = &HubResult{Action: action, Config: cfg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch result.Action {
	case HubProposed:
		e.logger.Info("distribution hub change proposed",
			"current_hub", prevHub, "proposed_hub", target, "deadline", result.Config.PendingHub.Deadline)
		e.recordAndPublish(ctx, events.TopicHubUpdateProposed, nil, caller, events.HubUpdateProposed{
			CurrentHub:  prevHub,
			ProposedHub: target,
			Deadline:    result.Config.PendingHub.Deadline,
		})
	case HubConfirmed:
		e.logger.Info("distribution hub updated", "old_hub", prevHub, "new_hub", target)
		e.recordAndPublish(ctx, events.TopicHubUpdated, nil, caller, events.HubUpdated{
			OldHub:    prevHub,
			NewHub:    target,
			Timestamp: now,
		})
	}
	return result, nil
}
