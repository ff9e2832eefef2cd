package accrual

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"YieldKeeper/internal/model"
)

const (
	t0 int64 = 1_700_000_000
	t1 int64 = t0 + 7*24*3600
)

func startedPool(principal, reward uint64) *model.GlobalPool {
	return &model.GlobalPool{
		TotalPrincipal:   principal,
		TotalReward:      reward,
		AccrualBase:      reward,
		FirstAccrualTime: t0,
		LastAccrualTime:  t1,
	}
}

func TestRefresh_NeverRefreshedOnlySetsBaseline(t *testing.T) {
	pool := startedPool(1000, 100)
	pos := &model.Position{Principal: 1000}

	got := Refresh(pos, pool)

	assert.Zero(t, got)
	assert.Equal(t, t1, pos.LastAccrualTime)
	assert.Zero(t, pos.AccruedReward)
	assert.Equal(t, uint64(100), pool.TotalReward)
}

func TestRefresh_EmptyPoolOnlySetsBaseline(t *testing.T) {
	pool := startedPool(0, 100)
	pos := &model.Position{LastAccrualTime: t0}

	assert.Zero(t, Refresh(pos, pool))
	assert.Equal(t, t1, pos.LastAccrualTime)
	assert.Equal(t, uint64(100), pool.TotalReward)
}

func TestRefresh_SingleDepositorTakesWholeWindow(t *testing.T) {
	pool := startedPool(1000, 100)
	pos := &model.Position{Principal: 1000, LastAccrualTime: t0}

	got := Refresh(pos, pool)

	assert.Equal(t, uint64(100), got)
	assert.Equal(t, uint64(100), pos.AccruedReward)
	assert.Zero(t, pool.TotalReward)
	assert.Equal(t, t1, pos.LastAccrualTime)
}

func TestRefresh_TwoDepositorsSplitProportionally(t *testing.T) {
	pool := startedPool(1000, 100)
	a := &model.Position{Principal: 750, LastAccrualTime: t0}
	b := &model.Position{Principal: 250, LastAccrualTime: t0}

	assert.Equal(t, uint64(75), Refresh(a, pool))
	assert.Equal(t, uint64(25), Refresh(b, pool))
	assert.Equal(t, uint64(100), a.AccruedReward+b.AccruedReward)
	assert.Zero(t, pool.TotalReward)
}

func TestRefresh_IdempotentAtSameTimestamp(t *testing.T) {
	pool := startedPool(1000, 100)
	pos := &model.Position{Principal: 400, LastAccrualTime: t0}

	first := Refresh(pos, pool)
	require.Equal(t, uint64(40), first)

	for i := 0; i < 5; i++ {
		assert.Zero(t, Refresh(pos, pool))
	}
	assert.Equal(t, uint64(40), pos.AccruedReward)
	assert.Equal(t, uint64(60), pool.TotalReward)
}

func TestRefresh_PartialWindow(t *testing.T) {
	pool := startedPool(1000, 1000)
	mid := t0 + (t1-t0)/2
	pos := &model.Position{Principal: 1000, LastAccrualTime: mid}

	assert.Equal(t, uint64(500), Refresh(pos, pool))
}

func TestRefresh_SmallStakeIsNotTruncatedToZero(t *testing.T) {
	pool := startedPool(1_000_000, 1_000_000_000)
	pos := &model.Position{Principal: 1, LastAccrualTime: t0}

	// A plain integer ratio 1/1_000_000 would be zero.
	assert.Equal(t, uint64(1000), Refresh(pos, pool))
}

func TestRefresh_NeverAllocatesMoreThanPoolHolds(t *testing.T) {
	pool := startedPool(1000, 100)
	pool.TotalReward = 10 // base snapshot larger than what is left
	pos := &model.Position{Principal: 1000, LastAccrualTime: t0}

	assert.Equal(t, uint64(10), Refresh(pos, pool))
	assert.Zero(t, pool.TotalReward)
}

func TestRefresh_PoolBehindPositionDoesNotRewind(t *testing.T) {
	pool := startedPool(1000, 100)
	pos := &model.Position{Principal: 1000, LastAccrualTime: t1 + 60}

	assert.Zero(t, Refresh(pos, pool))
	assert.Equal(t, t1+60, pos.LastAccrualTime)
	assert.Equal(t, uint64(100), pool.TotalReward)
}

func TestRefresh_ZeroWindowAllocatesNothing(t *testing.T) {
	pool := startedPool(1000, 100)
	pool.FirstAccrualTime = t1
	pos := &model.Position{Principal: 1000, LastAccrualTime: t0}

	assert.Zero(t, Refresh(pos, pool))
	assert.Equal(t, t1, pos.LastAccrualTime)
}

func TestRefresh_LargeValuesDoNotOverflow(t *testing.T) {
	pool := startedPool(math.MaxUint64, math.MaxUint64)
	pos := &model.Position{Principal: math.MaxUint64, LastAccrualTime: t0}

	assert.Equal(t, uint64(math.MaxUint64), Refresh(pos, pool))
	assert.Zero(t, pool.TotalReward)
}

func TestPending_DoesNotMutate(t *testing.T) {
	pool := startedPool(1000, 100)
	pos := model.Position{Principal: 750, LastAccrualTime: t0}

	assert.Equal(t, uint64(75), Pending(pos, *pool))
	assert.Zero(t, pos.AccruedReward)
	assert.Equal(t, uint64(100), pool.TotalReward)
}

func TestShares(t *testing.T) {
	assert.Equal(t, uint64(Scale/4), StakeShare(250, 1000).Uint64())
	assert.Equal(t, uint64(Scale), StakeShare(2000, 1000).Uint64())
	assert.True(t, StakeShare(1, 0).IsZero())

	assert.Equal(t, uint64(Scale/2), TimeShare(5, 10).Uint64())
	assert.Equal(t, uint64(Scale), TimeShare(20, 10).Uint64())
	assert.True(t, TimeShare(-1, 10).IsZero())
	assert.True(t, TimeShare(5, 0).IsZero())
	assert.True(t, TimeShare(5, -3).IsZero())
}
