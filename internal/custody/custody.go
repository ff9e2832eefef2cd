// Package custody moves token value on behalf of the ledger.
package custody

import (
	"context"
	"errors"

	"YieldKeeper/internal/model"
)

// ErrInsufficientBalance is returned when a source account cannot cover a movement.
var ErrInsufficientBalance = errors.New("custody: insufficient balance")

// Custody is the external subsystem holding and moving tokens. Debit pulls
// value from an account into pool custody and Credit pays it back out.
type Custody interface {
	Debit(ctx context.Context, account model.Address, asset model.Asset, amount uint64) error
	Credit(ctx context.Context, account model.Address, asset model.Asset, amount uint64) error
	Mint(ctx context.Context, asset model.Asset, amount uint64, to model.Address) error
	Burn(ctx context.Context, asset model.Asset, amount uint64, from model.Address) error
}
