package swap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Entry point labels
const (
	EntrySwap       = "swap"
	EntrySwapSimple = "swap_simple"
)

// Metrics holds the engine's Prometheus collectors
type Metrics struct {
	Settlements        *prometheus.CounterVec
	Cancellations      prometheus.Counter
	Authorizations     *prometheus.CounterVec
	SettlementDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg when non-nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swap_settlements_total",
				Help: "Settlement attempts by entry point and result code",
			},
			[]string{"entry", "result"},
		),
		Cancellations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swap_cancellations_total",
				Help: "Order ids moved to canceled",
			},
		),
		Authorizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swap_authorizations_total",
				Help: "Delegation grants and revocations",
			},
			[]string{"action"},
		),
		SettlementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swap_settlement_duration_seconds",
				Help:    "Duration of settlement attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entry"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Settlements, m.Cancellations, m.Authorizations, m.SettlementDuration)
	}
	return m
}

func (m *Metrics) observeSettlement(entry string, started time.Time, err error) {
	m.Settlements.WithLabelValues(entry, ErrorCode(err)).Inc()
	m.SettlementDuration.WithLabelValues(entry).Observe(time.Since(started).Seconds())
}
