package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"YieldKeeper/internal/model"
)

func TestCollector_ObservePool(t *testing.T) {
	c := New("test")
	c.ObservePool(model.GlobalPool{TotalPrincipal: 300, TotalReward: 40, AccrualBase: 100, EmergencyFlag: true}, 2)

	assert.Equal(t, 300.0, testutil.ToFloat64(c.totalPrincipal))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.totalReward))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.accrualBase))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.emergency))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.positions))

	c.ObservePool(model.GlobalPool{}, 2)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.emergency))
}

func TestCollector_Operations(t *testing.T) {
	c := New("test")
	c.ObserveOperation(model.OpDeposit, "ok", time.Millisecond)
	c.ObserveOperation(model.OpDeposit, "ok", time.Millisecond)
	c.ObserveOperation(model.OpWithdraw, "", time.Millisecond)
	c.AddAllocated(25)
	c.AddAllocated(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("DEPOSIT", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("WITHDRAW", "unknown")))
	assert.Equal(t, 25.0, testutil.ToFloat64(c.allocated))
}

func TestCollector_Harvest(t *testing.T) {
	c := New("test")
	c.ObserveHarvest("saber", 10, nil)
	c.ObserveHarvest("saber", 0, errors.New("timeout"))
	c.ObserveMarket(model.Market{Asset: "USDC", WithdrawalLiquidity: 7})
	c.ObserveHoldings("saber", 900)
	c.ObserveHoldings("saber", 1200)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.harvests.WithLabelValues("saber", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.harvests.WithLabelValues("saber", "error")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.harvestedTotal.WithLabelValues("saber")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.liquidity.WithLabelValues("USDC")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(c.holdings.WithLabelValues("saber")))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	c.ObservePool(model.GlobalPool{}, 0)
	c.ObserveOperation(model.OpClaim, "ok", 0)
	c.AddAllocated(1)
	c.ObserveHarvest("x", 1, nil)
	c.ObserveHoldings("x", 1)
	assert.Nil(t, c.Registry())
}

func TestCollector_Handler(t *testing.T) {
	c := New("test")
	c.ObservePool(model.GlobalPool{TotalPrincipal: 5}, 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_pool_total_principal 5")
}
