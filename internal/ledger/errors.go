package ledger

import (
	"errors"
	"fmt"

	"YieldKeeper/internal/custody"
	"YieldKeeper/internal/model"
)

// Error kinds. Every rejected operation returns an *Error whose Kind is one
// of these, so callers can match with errors.Is.
var (
	ErrAccessDenied          = errors.New("access denied")
	ErrServiceDisabled       = errors.New("service disabled")
	ErrMarketLocked          = errors.New("market locked")
	ErrPositionFrozen        = errors.New("position frozen")
	ErrInvalidAssetBinding   = errors.New("invalid asset binding")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidAddress        = errors.New("invalid address")
	ErrNotFound              = errors.New("not found")
	ErrStaleState            = errors.New("stale state")
)

// Sub-kinds refining ErrInsufficientBalance and ErrInsufficientLiquidity.
var (
	ErrDepositSource                   = errors.New("deposit source")
	ErrWithdrawalAmountTooMuch         = errors.New("withdrawal amount too much")
	ErrClaimAmountTooMuch              = errors.New("claim amount too much")
	ErrInsufficientWithdrawalLiquidity = errors.New("insufficient withdrawal liquidity")
)

// Error is a rejected ledger operation.
type Error struct {
	Kind error
	Sub  error
	Op   model.OpType
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("ledger: %s: %v", e.Op, e.Kind)
	if e.Sub != nil {
		msg += fmt.Sprintf(" (%v)", e.Sub)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind || (e.Sub != nil && target == e.Sub)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(op model.OpType, kind error, format string, args ...any) *Error {
	e := &Error{Kind: kind, Op: op}
	if format != "" {
		e.Err = fmt.Errorf(format, args...)
	}
	return e
}

// KindOf returns the kind of err, or nil if err is not a ledger error.
func KindOf(err error) error {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return nil
}

// custodyError classifies a failed custody plan. Shortfalls become
// ErrInsufficientBalance with sub; anything else is an infrastructure error.
func custodyError(op model.OpType, sub error, err error) error {
	if errors.Is(err, custody.ErrInsufficientBalance) {
		return &Error{Kind: ErrInsufficientBalance, Sub: sub, Op: op, Err: err}
	}
	return fmt.Errorf("ledger: %s: custody: %w", op, err)
}
