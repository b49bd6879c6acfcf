package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// RateSourceRequests counts rate source outcomes by source name.
	RateSourceRequests *prometheus.CounterVec
	// RateRefreshTotal counts completed rate refreshes by result (live or fallback).
	RateRefreshTotal *prometheus.CounterVec
	// RateTableFallback is 1 while the served table is the static fallback.
	RateTableFallback prometheus.Gauge
	// RateTableResolvedAt is the unix time of the served table's resolution.
	RateTableResolvedAt prometheus.Gauge
	// CartMutationsTotal counts cart operations by kind and outcome.
	CartMutationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		RateSourceRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_source_requests_total",
			Help:      "Count of exchange rate source outcomes.",
		}, []string{"source", "result"})
		RateRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_refresh_total",
			Help:      "Count of completed rate table refreshes by result.",
		}, []string{"result"})
		RateTableFallback = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_table_fallback",
			Help:      "1 when the served rate table is built from static defaults.",
		})
		RateTableResolvedAt = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_table_resolved_timestamp_seconds",
			Help:      "Unix timestamp of the served rate table resolution.",
		})
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation and outcome.",
		}, []string{"op", "result"})

		mustRegisterCollector(reg, RateSourceRequests, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RateSourceRequests = v
			}
		})
		mustRegisterCollector(reg, RateRefreshTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RateRefreshTotal = v
			}
		})
		mustRegisterCollector(reg, RateTableFallback, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				RateTableFallback = v
			}
		})
		mustRegisterCollector(reg, RateTableResolvedAt, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				RateTableResolvedAt = v
			}
		})
		mustRegisterCollector(reg, CartMutationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartMutationsTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
