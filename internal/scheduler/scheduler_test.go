package scheduler

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"YieldKeeper/internal/custody"
	"YieldKeeper/internal/ledger"
	"YieldKeeper/internal/metrics"
	"YieldKeeper/internal/model"
	"YieldKeeper/internal/store"
	"YieldKeeper/internal/venue"
)

const admin model.Address = "admin"

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingNotifier) SendWithRetry(_ context.Context, text string, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func newTestScheduler(t *testing.T, targets ...Target) (*Scheduler, *ledger.Manager, *recordingNotifier) {
	t.Helper()
	ctx := context.Background()
	now := int64(1_700_000_000)
	m, err := ledger.NewManager(ctx, store.NewMemoryStore(), custody.NewMemory("custodian"), ledger.Genesis{
		ID: "pool", Admin: admin, BaseAsset: "1USD", BaseDecimals: 6,
	}, ledger.WithClock(ledger.ClockFunc(func() int64 { now += 60; return now })))
	require.NoError(t, err)
	_, err = m.CreateMarket(ctx, admin, "USDC", 6)
	require.NoError(t, err)

	n := &recordingNotifier{}
	s := NewScheduler(ctx, m, admin, targets, n, metrics.New("test"), zap.NewNop())
	return s, m, n
}

func TestHarvest_InjectsTotalAndFundsLiquidity(t *testing.T) {
	s, m, n := newTestScheduler(t,
		Target{Venue: &venue.StaticVenue{VenueName: "saber", Yield: 30}, Market: "USDC"},
		Target{Venue: &venue.StaticVenue{VenueName: "quarry", Yield: 12}},
		Target{Venue: &venue.StaticVenue{VenueName: "port", Err: errors.New("paused")}},
	)

	results := s.RunHarvestNow()
	require.Len(t, results, 3)
	assert.Error(t, results[2].Err)

	pool := m.Pool()
	assert.Equal(t, uint64(42), pool.TotalReward)
	assert.Equal(t, uint64(42), pool.AccrualBase)
	mk, ok := m.Market("USDC")
	require.True(t, ok)
	assert.Equal(t, uint64(30), mk.WithdrawalLiquidity)

	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "port: paused")
}

func TestHarvest_NothingHarvested(t *testing.T) {
	s, m, n := newTestScheduler(t, Target{Venue: &venue.StaticVenue{VenueName: "idle"}})
	s.RunHarvestNow()
	assert.Zero(t, m.Pool().TotalReward)
	assert.Len(t, n.sent, 1)
}

func TestHarvest_SkippedInEmergency(t *testing.T) {
	ctx := context.Background()
	saber := &venue.StaticVenue{VenueName: "saber", Yield: 5}
	s, m, n := newTestScheduler(t, Target{Venue: saber, Market: "USDC"})
	require.NoError(t, m.SetEmergency(ctx, admin, true))

	assert.Empty(t, s.RunHarvestNow())
	held, err := saber.Holdings(ctx)
	require.NoError(t, err)
	assert.Zero(t, held, "venue must not be harvested during emergency")
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "Harvest skipped")

	require.NoError(t, m.SetEmergency(ctx, admin, false))
	s.RunHarvestNow()
	held, err = saber.Holdings(ctx)
	require.NoError(t, err)
	assert.Equal(t, held, m.Pool().TotalReward)
}

// rejectingLedger fails InjectReward while err is set.
type rejectingLedger struct {
	Ledger
	err error
}

func (l *rejectingLedger) InjectReward(ctx context.Context, caller model.Address, amount uint64) (model.GlobalPool, error) {
	if l.err != nil {
		return model.GlobalPool{}, l.err
	}
	return l.Ledger.InjectReward(ctx, caller, amount)
}

func TestHarvest_RejectedInjectionIsCarried(t *testing.T) {
	saber := &venue.StaticVenue{VenueName: "saber", Yield: 5}
	s, m, n := newTestScheduler(t, Target{Venue: saber, Market: "USDC"})
	rl := &rejectingLedger{Ledger: m, err: errors.New("stale state")}
	s.Ledger = rl

	s.RunHarvestNow()
	assert.Zero(t, m.Pool().TotalReward)
	mk, _ := m.Market("USDC")
	assert.Zero(t, mk.WithdrawalLiquidity, "liquidity waits for the reward injection")
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "Reward injection failed")

	rl.err = nil
	s.RunHarvestNow()
	held, err := saber.Holdings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), held)
	assert.Equal(t, held, m.Pool().TotalReward)
	mk, _ = m.Market("USDC")
	assert.Equal(t, held, mk.WithdrawalLiquidity)
	assert.Zero(t, s.rewardCarry)
	assert.Empty(t, s.liquidityCarry)
}

func TestHarvest_CarryOverflowReported(t *testing.T) {
	s, m, _ := newTestScheduler(t, Target{Venue: &venue.StaticVenue{VenueName: "saber", Yield: 1}})
	s.Ledger = &rejectingLedger{Ledger: m, err: errors.New("unavailable")}
	s.rewardCarry = math.MaxUint64

	results := s.RunHarvestNow()
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrCarryOverflow)
	assert.Equal(t, uint64(math.MaxUint64), s.rewardCarry)
}

func TestHarvest_ReportsHoldings(t *testing.T) {
	s, _, n := newTestScheduler(t, Target{Venue: &venue.StaticVenue{VenueName: "saber", Yield: 2_000_000}})
	s.RunHarvestNow()
	results := s.RunHarvestNow()
	require.Len(t, results, 1)
	assert.Equal(t, uint64(4_000_000), results[0].Holdings)
	assert.Contains(t, n.sent[1], "saber: 2 (holds 4)")
}

func TestSweepTask(t *testing.T) {
	s, m, _ := newTestScheduler(t)
	before := m.Pool().LastAccrualTime
	s.sweepTask()
	assert.Greater(t, m.Pool().LastAccrualTime, before)
}

func TestRegisterAll(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	require.NoError(t, s.RegisterAll("0 0 * * * *", "", "0 0 9 * * 1"))
	assert.Len(t, s.Cron.Entries(), 2)
	assert.Error(t, s.RegisterAll("not a spec", "", ""))
}

func TestHandleCommand(t *testing.T) {
	s, m, _ := newTestScheduler(t)
	ctx := context.Background()
	_, err := m.CreatePosition(ctx, "alice")
	require.NoError(t, err)

	assert.Contains(t, s.HandleCommand("/pool"), "Pool pool")
	assert.Contains(t, s.HandleCommand("/position alice"), "alice")
	assert.Contains(t, s.HandleCommand("/position bob"), "no position for bob")
	assert.Contains(t, s.HandleCommand("/position"), "usage")
	assert.Contains(t, s.HandleCommand("/help"), "Commands")
	assert.Empty(t, s.HandleCommand("  "))
}
