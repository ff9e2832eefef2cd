package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"YieldKeeper/internal/model"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "keeper.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func genesis() model.GlobalPool {
	return model.GlobalPool{
		ID:           "pool",
		Admin:        "admin",
		BaseAsset:    "1USD",
		BaseDecimals: 6,
		Version:      1,
	}
}

func TestStore_LoadBeforeInit(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background())
			assert.ErrorIs(t, err, ErrNotInitialized)
		})
	}
}

func TestStore_CommitAndLoad(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Commit(ctx, 0, Change{Pool: genesis()}))

			pool := genesis()
			pool.Version = 2
			pool.TotalPrincipal = math.MaxUint64
			pool.TotalReward = 40
			pool.AccrualBase = 40
			pool.FirstAccrualTime = 1_700_000_000
			pool.LastAccrualTime = 1_700_000_100
			pool.EmergencyFlag = true
			pos := model.Position{ID: "res", Owner: "alice", Principal: math.MaxUint64, AccruedReward: 7, LastAccrualTime: 1_700_000_000, Frozen: true}
			mkt := model.Market{Asset: "USDC", Decimals: 6, Vault: "vault", WithdrawalLiquidity: 500, Locked: true}
			require.NoError(t, s.Commit(ctx, 1, Change{
				Pool:      pool,
				Positions: []model.Position{pos},
				Markets:   []model.Market{mkt},
			}))

			st, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, pool, st.Pool)
			assert.Equal(t, pos, st.Positions["alice"])
			assert.Equal(t, mkt, st.Markets["USDC"])
		})
	}
}

func TestStore_StaleVersionRejected(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Commit(ctx, 0, Change{Pool: genesis()}))

			// Creating twice is stale.
			err := s.Commit(ctx, 0, Change{Pool: genesis()})
			assert.ErrorIs(t, err, ErrStaleState)

			next := genesis()
			next.Version = 6
			next.TotalReward = 99
			err = s.Commit(ctx, 5, Change{
				Pool:      next,
				Positions: []model.Position{{ID: "res", Owner: "bob", Principal: 1}},
			})
			assert.ErrorIs(t, err, ErrStaleState)

			st, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), st.Pool.Version)
			assert.Zero(t, st.Pool.TotalReward)
			assert.Empty(t, st.Positions)
		})
	}
}

func TestStore_EventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0).UTC()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Commit(ctx, 0, Change{
				Pool:   genesis(),
				Events: []model.Event{{Op: model.OpCreatePosition, Caller: "alice", CreatedAt: at}},
			}))
			next := genesis()
			next.Version = 2
			require.NoError(t, s.Commit(ctx, 1, Change{
				Pool: next,
				Events: []model.Event{{
					Op: model.OpDeposit, Caller: "alice", Asset: "1USD",
					Amount: 100, Allocated: 3, CreatedAt: at.Add(time.Minute),
				}},
			}))

			events, err := s.Events(ctx, 10)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, model.OpDeposit, events[0].Op)
			assert.Equal(t, uint64(100), events[0].Amount)
			assert.Equal(t, uint64(3), events[0].Allocated)
			assert.Equal(t, at.Add(time.Minute), events[0].CreatedAt)
			assert.NotEmpty(t, events[0].ID)
			assert.Equal(t, model.OpCreatePosition, events[1].Op)

			events, err = s.Events(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, events, 1)
		})
	}
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Commit(ctx, 0, Change{
		Pool:      genesis(),
		Positions: []model.Position{{Owner: "alice", Principal: 10}},
	}))

	st, err := s.Load(ctx)
	require.NoError(t, err)
	st.Positions["alice"] = model.Position{Owner: "alice", Principal: 999}

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), again.Positions["alice"].Principal)
}
