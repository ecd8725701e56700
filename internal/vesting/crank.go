package vesting

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alfredjeanlab/vesting/internal/events"
	"github.com/alfredjeanlab/vesting/internal/idgen"
	"github.com/alfredjeanlab/vesting/internal/ledger"
	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/store"
)

// MaxSchedulesPerCrank caps the pairs one crank call may carry.
const MaxSchedulesPerCrank = 10

// CrankPair names one schedule to process. Recipient is the beneficiary's
// receiving account for beneficiary-routed schedules; zero means the account
// recorded on the schedule. It is ignored for hub routing.
type CrankPair struct {
	ScheduleID uint64           `json:"schedule_id"`
	Vault      solana.PublicKey `json:"vault"`
	Recipient  solana.PublicKey `json:"recipient,omitempty"`
}

// CrankRequest is one permissionless crank call over schedules of Mint.
type CrankRequest struct {
	Mint       solana.PublicKey `json:"mint"`
	HubAccount solana.PublicKey `json:"hub_account,omitempty"`
	Pairs      []CrankPair      `json:"pairs"`
	// MaxSchedules further limits processed pairs. Zero means no extra cap.
	MaxSchedules int `json:"max_schedules,omitempty"`
}

// Outcome is what happened to one pair.
type Outcome string

const (
	OutcomeReleased Outcome = "released"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// CrankResult reports one pair.
type CrankResult struct {
	ScheduleID uint64           `json:"schedule_id"`
	Outcome    Outcome          `json:"outcome"`
	Amount     uint64           `json:"amount,string"`
	Recipient  solana.PublicKey `json:"recipient,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Code       int              `json:"code,omitempty"`

	routing     model.Routing
	transferred uint64
}

// CrankReport summarizes a crank call.
type CrankReport struct {
	RunID         string           `json:"run_id"`
	Mint          solana.PublicKey `json:"mint"`
	At            int64            `json:"at"`
	Results       []CrankResult    `json:"results"`
	Released      int              `json:"released"`
	Skipped       int              `json:"skipped"`
	Failed        int              `json:"failed"`
	TotalReleased uint64           `json:"total_released,string"`
	// Interrupted is set when the context ended before every pair ran.
	Interrupted   bool             `json:"interrupted,omitempty"`
}

func (r *CrankReport) add(res CrankResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeReleased:
		r.Released++
		r.TotalReleased += res.Amount
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}

// errSkip carries a skip reason out of a pair transaction.
type errSkip struct{ err *model.Error }

func (e errSkip) Error() string { return e.err.Message }
func (e errSkip) Unwrap() error { return e.err }

// Crank releases whatever has vested on each pair's schedule. Anyone may
// call it. Batch-level problems reject the whole call; per-pair problems are
// reported in the result and never undo pairs already released.
func (e *Engine) Crank(ctx context.Context, req CrankRequest) (*CrankReport, error) {
	if len(req.Pairs) > MaxSchedulesPerCrank {
		return nil, fmt.Errorf("%d pairs, at most %d: %w", len(req.Pairs), MaxSchedulesPerCrank, model.ErrTooManyAccounts)
	}
	if req.Mint.IsZero() {
		return nil, fmt.Errorf("crank mint is required: %w", model.ErrMintMismatch)
	}

	runID, err := idgen.CrankRunID()
	if err != nil {
		return nil, err
	}
	now := e.now()
	report := &CrankReport{RunID: runID, Mint: req.Mint, At: now, Results: []CrankResult{}}

	pairs := req.Pairs
	if req.MaxSchedules > 0 && req.MaxSchedules < len(pairs) {
		pairs = pairs[:req.MaxSchedules]
	}
	if len(pairs) == 0 {
		return report, nil
	}

	if err := e.checkHub(ctx, req, pairs); err != nil {
		return nil, err
	}

	for _, pair := range pairs {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		res := e.crankPair(ctx, req, pair, now)
		if res.Outcome == OutcomeFailed && ctx.Err() != nil {
			// The pair's transaction did not commit.
			report.Interrupted = true
			break
		}
		report.add(res)
	}
	if report.Interrupted {
		e.logger.Warn("crank interrupted", "run_id", runID, "processed", len(report.Results), "pairs", len(pairs))
	}

	// Committed releases are reported even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)

	for _, res := range report.Results {
		if res.Outcome != OutcomeReleased {
			continue
		}
		id := res.ScheduleID
		e.logger.Info("tokens released", "run_id", runID, "schedule_id", id, "amount", res.Amount, "recipient", res.Recipient)
		e.recordAndPublish(ctx, events.TopicTokensReleased, &id, solana.PublicKey{}, events.TokensReleased{
			ScheduleID:        id,
			Amount:            res.Amount,
			Recipient:         res.Recipient,
			Routing:           res.routing,
			AmountTransferred: res.transferred,
			Timestamp:         now,
		})
	}

	e.logger.Info("crank completed", "run_id", runID, "mint", req.Mint,
		"released", report.Released, "skipped", report.Skipped, "failed", report.Failed, "amount", report.TotalReleased)
	e.recordAndPublish(ctx, events.TopicCrankCompleted, nil, solana.PublicKey{}, events.CrankCompleted{
		RunID:     runID,
		Mint:      req.Mint,
		Released:  report.Released,
		Skipped:   report.Skipped,
		Failed:    report.Failed,
		Amount:    report.TotalReleased,
		Timestamp: now,
	})
	return report, nil
}

// checkHub validates the hub account when any pair's schedule routes to the
// hub, so a bad hub account rejects the call before anything moves. The
// routing read here is outside any transaction and only decides whether the
// check applies; each hub pair validates the hub again under its own lock.
// Pairs whose schedule cannot be read are left to fail individually.
func (e *Engine) checkHub(ctx context.Context, req CrankRequest, pairs []CrankPair) error {
	needsHub := false
	for _, pair := range pairs {
		s, err := e.store.GetSchedule(ctx, pair.ScheduleID)
		if err != nil {
			continue
		}
		if s.Routing == model.RoutingHub {
			needsHub = true
			break
		}
	}
	if !needsHub {
		return nil
	}

	cfg, err := e.store.GetProgramConfig(ctx)
	if err != nil {
		return err
	}
	_, err = hubAccount(ctx, e.store, cfg, req.HubAccount, req.Mint)
	return err
}

// hubAccount loads addr and checks it is the configured hub's account in mint.
func hubAccount(ctx context.Context, s store.Store, cfg *model.ProgramConfig, addr, mint solana.PublicKey) (*model.TokenAccount, error) {
	if !cfg.HubSet() {
		return nil, model.ErrDistributionHubNotSet
	}
	if addr.IsZero() {
		return nil, fmt.Errorf("hub account is required: %w", model.ErrHubAccountOwnerMismatch)
	}
	acct, err := s.GetAccount(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("hub account %s: %w", addr, err)
	}
	if !acct.Owner.Equals(cfg.DistributionHub) {
		return nil, fmt.Errorf("hub account %s: %w", addr, model.ErrHubAccountOwnerMismatch)
	}
	if !acct.Mint.Equals(mint) {
		return nil, fmt.Errorf("hub account %s: %w", addr, model.ErrHubAccountMintMismatch)
	}
	return acct, nil
}

// crankPair processes one pair in its own transaction.
func (e *Engine) crankPair(ctx context.Context, req CrankRequest, pair CrankPair, now int64) CrankResult {
	res := CrankResult{ScheduleID: pair.ScheduleID}
	err := e.store.RunInTransaction(ctx, func(tx store.Store) error {
		s, err := tx.LockSchedule(ctx, pair.ScheduleID)
		if err != nil {
			return err
		}
		res.routing = s.Routing
		if !s.Vault.Equals(pair.Vault) {
			return fmt.Errorf("pair vault %s, schedule vault %s: %w", pair.Vault, s.Vault, model.ErrVaultMismatch)
		}
		vault, err := tx.LockAccount(ctx, s.Vault)
		if err != nil {
			return fmt.Errorf("vault %s: %w", s.Vault, err)
		}
		if !vault.Owner.Equals(s.Address) {
			return fmt.Errorf("vault %s: %w", vault.Address, model.ErrVaultAuthorityMismatch)
		}
		if !vault.Mint.Equals(s.Mint) || !s.Mint.Equals(req.Mint) {
			return fmt.Errorf("schedule %d: %w", s.ID, model.ErrMintMismatch)
		}

		recipient, err := e.recipient(ctx, tx, req, pair, s)
		if err != nil {
			return err
		}
		res.Recipient = recipient

		if s.FullyProcessed() {
			return errSkip{model.ErrScheduleFullyProcessed}
		}
		due, err := TransferableNow(s, now)
		if err != nil {
			return err
		}
		if due == 0 {
			return errSkip{model.ErrNoTransferableAmount}
		}
		if vault.Amount < due {
			return fmt.Errorf("vault %s holds %d, schedule %d owes %d: %w",
				vault.Address, vault.Amount, s.ID, due, model.ErrInvariantViolation)
		}

		if err := ledger.New(tx).Transfer(ctx, s.Vault, recipient, s.Address, due); err != nil {
			return fmt.Errorf("release schedule %d: %w", s.ID, err)
		}
		next := s.AmountTransferred + due
		if err := tx.AdvanceSchedule(ctx, s.ID, s.AmountTransferred, next); err != nil {
			return err
		}
		res.Amount = due
		res.transferred = next
		return nil
	})

	var skip errSkip
	switch {
	case err == nil:
		res.Outcome = OutcomeReleased
	case errors.As(err, &skip):
		res.Outcome = OutcomeSkipped
		res.Reason = skip.err.Message
		res.Code = skip.err.Code
	default:
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		res.Code = model.CodeOf(err)
		res.Amount = 0
		e.logger.Warn("crank pair failed", "schedule_id", pair.ScheduleID, "error", err)
	}
	return res
}

// recipient resolves and checks the account that receives s's release.
func (e *Engine) recipient(ctx context.Context, tx store.Store, req CrankRequest, pair CrankPair, s *model.Schedule) (solana.PublicKey, error) {
	switch s.Routing {
	case model.RoutingHub:
		cfg, err := tx.GetProgramConfig(ctx)
		if err != nil {
			return solana.PublicKey{}, err
		}
		acct, err := hubAccount(ctx, tx, cfg, req.HubAccount, s.Mint)
		if err != nil {
			return solana.PublicKey{}, err
		}
		return acct.Address, nil
	case model.RoutingBeneficiary:
		addr := pair.Recipient
		if addr.IsZero() {
			addr = s.BeneficiaryAccount
		}
		if !addr.Equals(s.BeneficiaryAccount) {
			return solana.PublicKey{}, fmt.Errorf("recipient %s for schedule %d: %w", addr, s.ID, model.ErrRecipientAccountMismatch)
		}
		acct, err := tx.GetAccount(ctx, addr)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("recipient %s: %w", addr, err)
		}
		if !acct.Owner.Equals(s.Beneficiary) {
			return solana.PublicKey{}, fmt.Errorf("recipient %s: %w", addr, model.ErrRecipientAccountMismatch)
		}
		if !acct.Mint.Equals(s.Mint) {
			return solana.PublicKey{}, fmt.Errorf("recipient %s: %w", addr, model.ErrRecipientAccountMintMismatch)
		}
		return addr, nil
	default:
		return solana.PublicKey{}, fmt.Errorf("schedule %d routing %q: %w", s.ID, s.Routing, model.ErrInvalidScheduleData)
	}
}
