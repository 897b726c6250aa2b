// Package metrics exposes engine activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/phessophissy/POSVault/internal/models"
)

const namespace = "posvault"

// Metrics holds the engine collectors.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	events     *prometheus.CounterVec
	commitSeq  prometheus.Gauge

	totalLocked   prometheus.Gauge
	depositors    prometheus.Gauge
	rewardRateBps prometheus.Gauge
	paused        prometheus.Gauge
}

// New registers the engine collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "engine operations by name and outcome code",
			},
			[]string{"operation", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "engine operation latency including persistence",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"operation"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "committed events by type",
			},
			[]string{"type"},
		),
		commitSeq: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "commit_sequence",
			Help:      "last committed state sequence",
		}),
		totalLocked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vault_total_locked",
			Help:      "base asset locked in live deposits",
		}),
		depositors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vault_depositors",
			Help:      "number of live deposits",
		}),
		rewardRateBps: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vault_reward_rate_bps",
			Help:      "reward per cycle in basis points",
		}),
		paused: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vault_paused",
			Help:      "1 while the vault is paused",
		}),
	}
}

// Operation records one finished engine operation. outcome is "ok" or the
// failure code.
func (m *Metrics) Operation(name, outcome string, elapsed time.Duration) {
	m.operations.WithLabelValues(name, outcome).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// VaultState publishes the vault singleton.
func (m *Metrics) VaultState(vs *models.VaultState) {
	m.totalLocked.Set(float64(vs.TotalLocked))
	m.depositors.Set(float64(vs.DepositorCount))
	m.rewardRateBps.Set(float64(vs.RewardRateBps))
	if vs.Paused {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}
}

// Commit counts the events of a committed transaction. It has the shape of
// a state commit hook.
func (m *Metrics) Commit(seq uint64, events []models.Event) {
	m.commitSeq.Set(float64(seq))
	for _, ev := range events {
		m.events.WithLabelValues(ev.Type).Inc()
	}
}
