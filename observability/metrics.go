package observability

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics tracks settlement activity and accrued pool balances.
type MarketMetrics struct {
	operations *prometheus.CounterVec
	pools      *prometheus.GaugeVec
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics
)

// Market returns the lazily-initialised metrics registry used to record
// settlement activity.
func Market() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "double",
				Subsystem: "market",
				Name:      "operations_total",
				Help:      "Count of market operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			pools: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "double",
				Subsystem: "market",
				Name:      "pool_balance",
				Help:      "Accrued-but-unclaimed pool balances segmented by pool and currency.",
			}, []string{"pool", "currency"}),
		}
		prometheus.MustRegister(marketRegistry.operations, marketRegistry.pools)
	})
	return marketRegistry
}

// ObserveSettlement records the outcome of a market operation.
func (m *MarketMetrics) ObserveSettlement(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// SetPoolBalance publishes the current balance of a fee or royalty pool.
// Values beyond the float range clamp to +Inf rather than wrapping.
func (m *MarketMetrics) SetPoolBalance(pool, currency string, balance *big.Int) {
	if m == nil {
		return
	}
	value := math.Inf(1)
	if balance == nil {
		value = 0
	} else if f, _ := new(big.Float).SetInt(balance).Float64(); !math.IsInf(f, 0) {
		value = f
	}
	m.pools.WithLabelValues(pool, currency).Set(value)
}
