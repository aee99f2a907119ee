// Package metrics exposes executor counters and gauges for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tokenexecutor"

type Metrics struct {
	Buys           *prometheus.CounterVec
	Sells          *prometheus.CounterVec
	OpenPositions  prometheus.Gauge
	MonitorCycles  prometheus.Counter
	MonitorSeconds prometheus.Histogram
	PriceErrors    prometheus.Counter
	Reconciled     *prometheus.CounterVec
	RealizedPnL    prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Buys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buys_total",
			Help:      "Buy attempts by outcome",
		}, []string{"outcome"}),
		Sells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sells_total",
			Help:      "Sell attempts by reason and outcome",
		}, []string{"reason", "outcome"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Open positions seen by the last monitor cycle",
		}),
		MonitorCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_cycles_total",
			Help:      "Completed price monitor cycles",
		}),
		MonitorSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monitor_cycle_seconds",
			Help:      "Price monitor cycle duration",
			Buckets:   prometheus.DefBuckets,
		}),
		PriceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_errors_total",
			Help:      "Price lookups that failed",
		}),
		Reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_positions_total",
			Help:      "Positions imported or force-closed by reconciliation",
		}, []string{"action"}),
		RealizedPnL: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_profit_quote_total",
			Help:      "Sum of positive realized P&L in SOL",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Buys, m.Sells, m.OpenPositions, m.MonitorCycles, m.MonitorSeconds, m.PriceErrors, m.Reconciled, m.RealizedPnL)
	}
	return m
}

// Nop returns unregistered collectors for tests and one-shot CLI commands.
func Nop() *Metrics {
	return New(nil)
}

func (m *Metrics) Buy(outcome string) {
	m.Buys.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Sell(reason, outcome string) {
	m.Sells.WithLabelValues(reason, outcome).Inc()
}

func (m *Metrics) Realized(pnl float64) {
	if pnl > 0 {
		m.RealizedPnL.Add(pnl)
	}
}
