// Package conversion rescales token amounts between decimal precisions.
//
// Scaling down floors the quotient and drops the remainder; scaling up is
// exact. The rounding is one-directional and always favours the pool, so a
// down-then-up round trip can lose value.
package conversion

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned when a scaled-up amount does not fit in a uint64.
var ErrOverflow = errors.New("conversion: amount overflows uint64")

// maxExponent is the largest n with 10^n < 2^256.
const maxExponent = 77

// Rescale converts amount expressed with from decimals into to decimals.
func Rescale(amount uint64, from, to uint8) (uint64, error) {
	switch {
	case from == to:
		return amount, nil
	case from > to:
		diff := from - to
		if diff > maxExponent {
			return 0, nil
		}
		q := new(uint256.Int).Div(uint256.NewInt(amount), pow10(diff))
		return q.Uint64(), nil
	default:
		if amount == 0 {
			return 0, nil
		}
		diff := to - from
		if diff > maxExponent {
			return 0, ErrOverflow
		}
		p, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amount), pow10(diff))
		if overflow || !p.IsUint64() {
			return 0, ErrOverflow
		}
		return p.Uint64(), nil
	}
}

func pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// Policy binds Rescale to the pool's base asset precision.
type Policy struct {
	BaseDecimals uint8
}

// ToBase converts an asset amount into base-asset units, flooring any remainder.
func (p Policy) ToBase(amount uint64, assetDecimals uint8) (uint64, error) {
	return Rescale(amount, assetDecimals, p.BaseDecimals)
}

// FromBase converts a base-asset amount into asset units.
func (p Policy) FromBase(amount uint64, assetDecimals uint8) (uint64, error) {
	return Rescale(amount, p.BaseDecimals, assetDecimals)
}
