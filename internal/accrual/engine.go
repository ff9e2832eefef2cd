// Package accrual allocates harvested pool reward to individual positions.
//
// A position's share of the pool's accrual base is the product of its stake
// share (principal / total principal) and its time share (time since its last
// refresh / observed lifetime of the pool). Both ratios are fixed-point values
// with Scale precision and the product is taken in 256-bit integers, so small
// stakes and short windows are never truncated to zero by an intermediate
// integer division.
package accrual

import (
	"github.com/holiman/uint256"

	"YieldKeeper/internal/model"
)

// Scale is the fixed-point precision of stake and time shares (1e12 == 1.0).
const Scale = 1_000_000_000_000

var (
	scale   = uint256.NewInt(Scale)
	scaleSq = new(uint256.Int).Mul(scale, scale)
)

// Refresh brings pos.AccruedReward current with pool and returns the amount
// allocated. It never fails: degenerate states allocate nothing. The pool's
// TotalReward is reduced by exactly the amount credited to the position.
func Refresh(pos *model.Position, pool *model.GlobalPool) uint64 {
	if pos.LastAccrualTime == 0 || pool.TotalPrincipal == 0 {
		pos.LastAccrualTime = pool.LastAccrualTime
		return 0
	}

	elapsed := pool.LastAccrualTime - pos.LastAccrualTime
	if elapsed <= 0 {
		// A pool timestamp behind the position's never rewinds the position.
		return 0
	}

	reward := Allocation(pos.Principal, pool.TotalPrincipal, elapsed,
		pool.LastAccrualTime-pool.FirstAccrualTime, pool.AccrualBase)
	if reward > pool.TotalReward {
		reward = pool.TotalReward
	}

	pos.AccruedReward += reward
	pool.TotalReward -= reward
	pos.LastAccrualTime = pool.LastAccrualTime
	return reward
}

// Pending returns what Refresh would allocate without touching either record.
func Pending(pos model.Position, pool model.GlobalPool) uint64 {
	return Refresh(&pos, &pool)
}

// Allocation computes floor(base * stakeShare * timeShare).
func Allocation(principal, totalPrincipal uint64, elapsed, window int64, base uint64) uint64 {
	stake := StakeShare(principal, totalPrincipal)
	tshare := TimeShare(elapsed, window)
	if stake.IsZero() || tshare.IsZero() || base == 0 {
		return 0
	}
	v := new(uint256.Int).Mul(uint256.NewInt(base), stake)
	v.Mul(v, tshare)
	v.Div(v, scaleSq)
	// stake and time shares are both <= 1.0, so v <= base.
	return v.Uint64()
}

// StakeShare returns principal / total in Scale units, clamped to [0, Scale].
func StakeShare(principal, total uint64) *uint256.Int {
	if total == 0 || principal == 0 {
		return new(uint256.Int)
	}
	if principal >= total {
		return new(uint256.Int).Set(scale)
	}
	v := new(uint256.Int).Mul(uint256.NewInt(principal), scale)
	return v.Div(v, uint256.NewInt(total))
}

// TimeShare returns elapsed / window in Scale units, clamped to [0, Scale].
// A zero or negative window has no duration to prorate over and yields zero.
func TimeShare(elapsed, window int64) *uint256.Int {
	if window <= 0 || elapsed <= 0 {
		return new(uint256.Int)
	}
	if elapsed >= window {
		return new(uint256.Int).Set(scale)
	}
	v := new(uint256.Int).Mul(uint256.NewInt(uint64(elapsed)), scale)
	return v.Div(v, uint256.NewInt(uint64(window)))
}
