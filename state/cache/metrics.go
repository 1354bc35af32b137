package cache

import (
	"github.com/crytic/cachestate/state/types"
	"github.com/prometheus/client_golang/prometheus"
)

// metricsNamespace prefixes every metric exported by the cache.
const metricsNamespace = "cachestate"

// Metrics holds the prometheus collectors updated by a CacheState. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// transitions counts emitted transitions by the status the account moved to.
	transitions *prometheus.CounterVec

	// skipped counts execution results which were not touched and therefore ignored.
	skipped prometheus.Counter

	// batches counts applied execution batches.
	batches prometheus.Counter

	// accounts tracks the number of cache entries.
	accounts prometheus.Gauge

	// contracts tracks the number of stored contracts.
	contracts prometheus.Gauge
}

// NewMetrics creates the cache collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transitions_total",
			Help:      "Account transitions emitted, by resulting account status.",
		}, []string{"status"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "untouched_accounts_total",
			Help:      "Execution results skipped because the account was not touched.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batches_total",
			Help:      "Execution batches applied to the cache.",
		}),
		accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cached_accounts",
			Help:      "Accounts present in the cache.",
		}),
		contracts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cached_contracts",
			Help:      "Contracts present in the contract store.",
		}),
	}

	for _, c := range []prometheus.Collector{m.transitions, m.skipped, m.batches, m.accounts, m.contracts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeTransition(status types.AccountStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status.String()).Inc()
}

func (m *Metrics) observeSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func (m *Metrics) observeBatch() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

func (m *Metrics) observeAccountInserted() {
	if m == nil {
		return
	}
	m.accounts.Inc()
}

func (m *Metrics) observeContractInserted() {
	if m == nil {
		return
	}
	m.contracts.Inc()
}
