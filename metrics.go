package stash

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus instruments for the orchestrator. A nil
// *metrics is valid and records nothing, so the hot path never branches on
// whether metrics were configured.
type metrics struct {
	reads                *prometheus.CounterVec
	revalidations        prometheus.Counter
	revalidationFailures prometheus.Counter
	revalidationSkips    prometheus.Counter
	optimisticUpdates    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, prefix string) (*metrics, error) {
	m := &metrics{
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_cache_reads_total",
			Help: "Cache reads by outcome (fresh, stale, miss, forced).",
		}, []string{"outcome"}),
		revalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_cache_revalidations_total",
			Help: "Background revalidations spawned.",
		}),
		revalidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_cache_revalidation_failures_total",
			Help: "Background revalidations whose fetch failed (swallowed).",
		}),
		revalidationSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_cache_revalidation_skips_total",
			Help: "Revalidation writes skipped because the entry was patched mid-flight.",
		}),
		optimisticUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_cache_optimistic_updates_total",
			Help: "Optimistic payload patches applied.",
		}),
	}
	for _, col := range []prometheus.Collector{
		m.reads, m.revalidations, m.revalidationFailures, m.revalidationSkips, m.optimisticUpdates,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) read(outcome string) {
	if m == nil {
		return
	}
	m.reads.WithLabelValues(outcome).Inc()
}

func (m *metrics) revalidationSpawned() {
	if m == nil {
		return
	}
	m.revalidations.Inc()
}

func (m *metrics) revalidationFailed() {
	if m == nil {
		return
	}
	m.revalidationFailures.Inc()
}

func (m *metrics) revalidationSkipped() {
	if m == nil {
		return
	}
	m.revalidationSkips.Inc()
}

func (m *metrics) optimisticApplied() {
	if m == nil {
		return
	}
	m.optimisticUpdates.Inc()
}
