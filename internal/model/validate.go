package model

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field. Err is
// the coded error the failure maps to.
type FieldError struct {
	Field   string
	Message string
	Err     *Error
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Unwrap exposes the coded errors in field order, so errors.As finds the
// first failed check.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Err != nil {
			out = append(out, fe.Err)
		}
	}
	return out
}

// ValidateScheduleParams checks the self-contained rules on new schedule
// parameters. Account ownership and balances are checked against the ledger
// by the caller. Returns a *ValidationError or nil.
func ValidateScheduleParams(p *ScheduleParams) error {
	var ve ValidationError

	if p.TotalAmount == 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "total_amount", Message: "must be greater than zero", Err: ErrInvalidAmount})
	}

	if p.CliffTimestamp > p.VestingStartTimestamp {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "cliff_timestamp",
			Message: fmt.Sprintf("must be at or before vesting start (%d > %d)", p.CliffTimestamp, p.VestingStartTimestamp),
			Err:     ErrInvalidTimestamps,
		})
	}
	if p.VestingStartTimestamp > p.VestingEndTimestamp {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "vesting_start_timestamp",
			Message: fmt.Sprintf("must be at or before vesting end (%d > %d)", p.VestingStartTimestamp, p.VestingEndTimestamp),
			Err:     ErrInvalidTimestamps,
		})
	}

	if !p.SourceCategory.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "source_category",
			Message: fmt.Sprintf("invalid value %q", p.SourceCategory),
			Err:     ErrInvalidSourceCategory,
		})
	}

	if p.Mint.IsZero() {
		ve.Errors = append(ve.Errors, FieldError{Field: "mint", Message: "is required", Err: ErrMintMismatch})
	}

	switch p.Routing {
	case RoutingHub:
		if !p.Beneficiary.IsZero() || !p.BeneficiaryAccount.IsZero() {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "beneficiary",
				Message: "must be empty for hub routing",
				Err:     ErrInvalidRouting,
			})
		}
	case RoutingBeneficiary:
		if p.Beneficiary.IsZero() || p.BeneficiaryAccount.IsZero() {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "beneficiary",
				Message: "beneficiary and beneficiary_account are required for beneficiary routing",
				Err:     ErrRecipientAccountMismatch,
			})
		}
	default:
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "routing",
			Message: fmt.Sprintf("invalid value %q", p.Routing),
			Err:     ErrInvalidRouting,
		})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// CheckSchedule verifies the invariants a persisted schedule must hold.
func CheckSchedule(s *Schedule) error {
	switch {
	case s.TotalAmount == 0:
		return fmt.Errorf("schedule %d: zero total: %w", s.ID, ErrInvalidScheduleData)
	case s.CliffTimestamp > s.VestingStartTimestamp || s.VestingStartTimestamp > s.VestingEndTimestamp:
		return fmt.Errorf("schedule %d: timestamps out of order: %w", s.ID, ErrInvalidScheduleData)
	case s.AmountTransferred > s.TotalAmount:
		return fmt.Errorf("schedule %d: transferred %d exceeds total %d: %w", s.ID, s.AmountTransferred, s.TotalAmount, ErrInvariantViolation)
	}
	return nil
}

// IsValidation reports whether err is a parameter validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
