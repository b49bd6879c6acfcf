package resilience

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// BreakerState is the current state per upstream: 0=closed, 1=open, 2=half-open.
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts state changes per upstream.
	BreakerTransitions *prometheus.CounterVec
	// BreakerOpenedTotal counts transitions into the open state per upstream.
	BreakerOpenedTotal *prometheus.CounterVec
)

// MustRegisterMetrics initialises the breaker collectors under namespace.
// Breakers record nothing until this has been called.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_state",
			Help:      "Current upstream breaker state: 0=closed,1=open,2=half-open",
		}, []string{"target"})
		transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_transition_total",
			Help:      "Count of upstream breaker state transitions",
		}, []string{"target", "from", "to"})
		opened := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_open_total",
			Help:      "Number of times an upstream breaker transitioned into open state",
		}, []string{"target"})
		for _, c := range []prometheus.Collector{state, transitions, opened} {
			if err := reg.Register(c); err != nil {
				panic(fmt.Errorf("register breaker metric: %w", err))
			}
		}
		BreakerState, BreakerTransitions, BreakerOpenedTotal = state, transitions, opened
	})
}
