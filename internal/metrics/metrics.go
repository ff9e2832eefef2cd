// Package metrics exposes pool totals and operation outcomes to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"YieldKeeper/internal/model"
)

// Collector holds every keeper metric on a private registry. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	totalPrincipal prometheus.Gauge
	totalReward    prometheus.Gauge
	accrualBase    prometheus.Gauge
	emergency      prometheus.Gauge
	positions      prometheus.Gauge
	liquidity      *prometheus.GaugeVec

	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	allocated        prometheus.Counter

	harvests       *prometheus.CounterVec
	harvestedTotal *prometheus.CounterVec
	holdings       *prometheus.GaugeVec
}

// New creates a collector under namespace ("yieldkeeper" when empty).
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = "yieldkeeper"
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.totalPrincipal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "total_principal",
		Help:      "Sum of every position's principal in base units.",
	})
	c.totalReward = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "total_reward",
		Help:      "Harvested reward not yet allocated to a position.",
	})
	c.accrualBase = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "accrual_base",
		Help:      "Reward snapshot the current accrual window is paid from.",
	})
	c.emergency = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "emergency",
		Help:      "1 while the pool is in emergency state.",
	})
	c.positions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "positions",
		Help:      "Number of positions.",
	})
	c.liquidity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "market",
		Name:      "withdrawal_liquidity",
		Help:      "Base-asset liquidity available for redemption per market.",
	}, []string{"asset"})

	c.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Ledger operations by type and result.",
	}, []string{"op", "result"})
	c.operationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "operation_duration_seconds",
		Help:      "Ledger operation latency including custody and persistence.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
	c.allocated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "reward_allocated_total",
		Help:      "Reward moved from the pool into positions by accrual.",
	})

	c.harvests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "venue",
		Name:      "harvests_total",
		Help:      "Venue harvest attempts by venue and result.",
	}, []string{"venue", "result"})
	c.harvestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "venue",
		Name:      "harvested_total",
		Help:      "Yield harvested per venue in base units.",
	}, []string{"venue"})
	c.holdings = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "venue",
		Name:      "holdings",
		Help:      "Value held by each venue in base units, as last reported.",
	}, []string{"venue"})

	c.registry.MustRegister(
		c.totalPrincipal, c.totalReward, c.accrualBase, c.emergency, c.positions, c.liquidity,
		c.operations, c.operationLatency, c.allocated,
		c.harvests, c.harvestedTotal, c.holdings,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObservePool publishes the pool totals.
func (c *Collector) ObservePool(p model.GlobalPool, positions int) {
	if c == nil {
		return
	}
	c.totalPrincipal.Set(float64(p.TotalPrincipal))
	c.totalReward.Set(float64(p.TotalReward))
	c.accrualBase.Set(float64(p.AccrualBase))
	if p.EmergencyFlag {
		c.emergency.Set(1)
	} else {
		c.emergency.Set(0)
	}
	c.positions.Set(float64(positions))
}

func (c *Collector) ObserveMarket(m model.Market) {
	if c == nil {
		return
	}
	c.liquidity.WithLabelValues(string(m.Asset)).Set(float64(m.WithdrawalLiquidity))
}

// ObserveOperation counts one operation. result is "ok" or an error kind.
func (c *Collector) ObserveOperation(op model.OpType, result string, took time.Duration) {
	if c == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	c.operations.WithLabelValues(string(op), result).Inc()
	c.operationLatency.WithLabelValues(string(op)).Observe(took.Seconds())
}

func (c *Collector) AddAllocated(amount uint64) {
	if c == nil || amount == 0 {
		return
	}
	c.allocated.Add(float64(amount))
}

func (c *Collector) ObserveHarvest(venue string, amount uint64, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.harvests.WithLabelValues(venue, "error").Inc()
		return
	}
	c.harvests.WithLabelValues(venue, "ok").Inc()
	c.harvestedTotal.WithLabelValues(venue).Add(float64(amount))
}

// ObserveHoldings records the value a venue reports holding.
func (c *Collector) ObserveHoldings(venue string, amount uint64) {
	if c == nil {
		return
	}
	c.holdings.WithLabelValues(venue).Set(float64(amount))
}
