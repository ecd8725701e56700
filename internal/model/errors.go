package model

import "errors"

// ErrorKind classifies a domain error by how a caller should react to it.
type ErrorKind string

const (
	// KindAuthorization: caller is not allowed to perform the operation.
	KindAuthorization ErrorKind = "authorization"
	// KindValidation: input is malformed; correct it and resubmit.
	KindValidation ErrorKind = "validation"
	// KindTemporal: the same request succeeds later, purely by passage of time.
	KindTemporal ErrorKind = "temporal"
	// KindNoop: the request would not change anything.
	KindNoop ErrorKind = "noop"
	// KindNotFound: a referenced record does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindConflict: a concurrent writer got there first.
	KindConflict ErrorKind = "conflict"
	// KindInvariant: persisted state contradicts an invariant. Never retried.
	KindInvariant ErrorKind = "invariant"
)

// Error is a coded domain error. Two *Error values match under errors.Is when
// their codes are equal, so sentinels survive fmt.Errorf("%w") wrapping.
type Error struct {
	Code    int
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is reports whether target is a *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(code int, kind ErrorKind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

// Codes 6000-6017 keep the numbering of the on-chain program this service
// replaces so operators can match historical logs.
var (
	ErrUnauthorized            = newError(6000, KindAuthorization, "unauthorized: admin privilege required")
	ErrMathOverflow            = newError(6001, KindInvariant, "math operation overflow")
	ErrTimelockNotExpired      = newError(6002, KindTemporal, "timelock for hub update has not expired")
	ErrInvalidTimestamps       = newError(6003, KindValidation, "invalid timestamps: cliff must be at or before vesting start, and vesting start at or before vesting end")
	ErrInvalidAmount           = newError(6004, KindValidation, "invalid amount: must be greater than zero")
	ErrScheduleFullyProcessed  = newError(6005, KindNoop, "schedule is already fully processed")
	ErrNoTransferableAmount    = newError(6006, KindNoop, "no transferable amount at current time")
	ErrDistributionHubNotSet   = newError(6007, KindTemporal, "distribution hub address is not set")
	ErrInvalidScheduleData     = newError(6008, KindInvariant, "vesting schedule data is invalid")
	ErrTooManyAccounts         = newError(6009, KindValidation, "number of schedules to process exceeds the maximum allowed")
	ErrInvalidPair             = newError(6010, KindValidation, "invalid schedule/vault pair")
	ErrMintMismatch            = newError(6011, KindValidation, "mint does not match the schedule's mint")
	ErrVaultMismatch           = newError(6012, KindValidation, "vault does not match the schedule's vault")
	ErrHubAccountMintMismatch  = newError(6013, KindValidation, "distribution hub token account is not for the correct mint")
	ErrHubAccountOwnerMismatch = newError(6014, KindValidation, "distribution hub token account is not owned by the distribution hub")
	ErrHubAddressNotChanged    = newError(6015, KindNoop, "hub address is already active")
	ErrVaultAuthorityMismatch  = newError(6016, KindValidation, "vault authority does not match the schedule address")
	ErrScheduleIDConflict      = newError(6017, KindValidation, "schedule id does not match the next expected id")

	ErrRecipientAccountMismatch     = newError(6018, KindValidation, "recipient account does not belong to the schedule's beneficiary")
	ErrRecipientAccountMintMismatch = newError(6019, KindValidation, "recipient account is not denominated in the schedule's mint")
	ErrScheduleNotFullyVested       = newError(6020, KindTemporal, "schedule is not fully vested and drained")
	ErrScheduleNotFound             = newError(6021, KindNotFound, "vesting schedule not found")
	ErrAlreadyInitialized           = newError(6022, KindValidation, "program config is already initialized")
	ErrNotInitialized               = newError(6023, KindNotFound, "program config is not initialized")
	ErrInvalidHubAddress            = newError(6024, KindValidation, "hub address must not be the zero address")
	ErrInsufficientFunds            = newError(6025, KindValidation, "insufficient funds in source account")
	ErrAccountNotFound              = newError(6026, KindNotFound, "token account not found")
	ErrAccountExists                = newError(6027, KindValidation, "token account already exists")
	ErrInvalidSourceCategory        = newError(6028, KindValidation, "invalid source category")
	ErrInvariantViolation           = newError(6029, KindInvariant, "internal invariant violated")
	ErrConcurrentModification       = newError(6030, KindConflict, "schedule was modified concurrently")
	ErrAuthorityMismatch            = newError(6031, KindAuthorization, "signer is not the account authority")
	ErrAccountNotEmpty              = newError(6032, KindValidation, "token account still holds a balance")
	ErrInvalidRouting               = newError(6033, KindValidation, "invalid routing")
	ErrInvalidAccount               = newError(6034, KindValidation, "token account address, mint and owner are required")
)

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// carries no domain error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
