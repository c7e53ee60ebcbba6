package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks batch settlement activity.
type SettlementMetrics struct {
	settlements *prometheus.CounterVec
	batches     prometheus.Counter
	seizures    prometheus.Counter
	feesSkipped prometheus.Counter
	rewards     prometheus.Counter
}

var (
	settlementOnce sync.Once
	settlementReg  *SettlementMetrics
)

// Settlement returns the lazily-initialised settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementReg = &SettlementMetrics{
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settlement_requests_total",
				Help: "Count of settlement requests by outcome.",
			}, []string{"outcome"}),
			batches: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "settlement_batches_total",
				Help: "Count of settled batches.",
			}),
			seizures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "settlement_seizures_total",
				Help: "Count of balances seized to the treasury.",
			}),
			feesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "settlement_fees_skipped_total",
				Help: "Count of settled requests that could not surrender their fee.",
			}),
			rewards: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "settlement_referral_rewards_total",
				Help: "Count of referral reward payouts.",
			}),
		}
		prometheus.MustRegister(
			settlementReg.settlements,
			settlementReg.batches,
			settlementReg.seizures,
			settlementReg.feesSkipped,
			settlementReg.rewards,
		)
	})
	return settlementReg
}

func (m *SettlementMetrics) ObserveSettlement(ok bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "completed"
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *SettlementMetrics) ObserveBatch() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

func (m *SettlementMetrics) ObserveSeizure() {
	if m == nil {
		return
	}
	m.seizures.Inc()
}

func (m *SettlementMetrics) ObserveFeeSkipped() {
	if m == nil {
		return
	}
	m.feesSkipped.Inc()
}

func (m *SettlementMetrics) ObserveReward() {
	if m == nil {
		return
	}
	m.rewards.Inc()
}
