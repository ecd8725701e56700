package vesting

import (
	"fmt"
	"math/bits"

	"github.com/alfredjeanlab/vesting/internal/model"
)

// Unlocked returns how much of s has vested at unix time now.
//
// Nothing unlocks before the cliff. At or after the end everything has
// unlocked. A schedule with start == end unlocks in full once the cliff is
// reached. Otherwise the amount grows linearly from start to end.
func Unlocked(s *model.Schedule, now int64) (uint64, error) {
	switch {
	case s.VestingStartTimestamp > s.VestingEndTimestamp:
		return 0, fmt.Errorf("schedule %d: start after end: %w", s.ID, model.ErrInvalidScheduleData)
	case now < s.CliffTimestamp:
		return 0, nil
	case now >= s.VestingEndTimestamp:
		return s.TotalAmount, nil
	case s.VestingStartTimestamp == s.VestingEndTimestamp:
		return s.TotalAmount, nil
	case now < s.VestingStartTimestamp:
		return 0, nil
	}

	// start < now < end, so both differences are positive.
	elapsed := uint64(now - s.VestingStartTimestamp)
	duration := uint64(s.VestingEndTimestamp - s.VestingStartTimestamp)

	hi, lo := bits.Mul64(s.TotalAmount, elapsed)
	if hi >= duration {
		return 0, fmt.Errorf("schedule %d: unlocked amount: %w", s.ID, model.ErrMathOverflow)
	}
	unlocked, _ := bits.Div64(hi, lo, duration)
	return min(unlocked, s.TotalAmount), nil
}

// TransferableNow returns the vested amount not yet released at time now.
// A schedule that has released more than has vested is an invariant
// violation and is reported as such.
func TransferableNow(s *model.Schedule, now int64) (uint64, error) {
	unlocked, err := Unlocked(s, now)
	if err != nil {
		return 0, err
	}
	if s.AmountTransferred > unlocked {
		return 0, fmt.Errorf("schedule %d: transferred %d exceeds unlocked %d: %w",
			s.ID, s.AmountTransferred, unlocked, model.ErrInvariantViolation)
	}
	return unlocked - s.AmountTransferred, nil
}

// Release is a point-in-time view of a schedule's progress.
type Release struct {
	ScheduleID        uint64 `json:"schedule_id"`
	At                int64  `json:"at"`
	TotalAmount       uint64 `json:"total_amount,string"`
	Unlocked          uint64 `json:"unlocked,string"`
	AmountTransferred uint64 `json:"amount_transferred,string"`
	Transferable      uint64 `json:"transferable,string"`
	FullyProcessed    bool   `json:"fully_processed"`
}

// ReleaseAt computes the Release for s at time now.
func ReleaseAt(s *model.Schedule, now int64) (*Release, error) {
	unlocked, err := Unlocked(s, now)
	if err != nil {
		return nil, err
	}
	transferable, err := TransferableNow(s, now)
	if err != nil {
		return nil, err
	}
	return &Release{
		ScheduleID:        s.ID,
		At:                now,
		TotalAmount:       s.TotalAmount,
		Unlocked:          unlocked,
		AmountTransferred: s.AmountTransferred,
		Transferable:      transferable,
		FullyProcessed:    s.FullyProcessed(),
	}, nil
}
