// Package metrics exposes Prometheus collectors for the compositor
// engine's runtime state: active producers, buffers emitted, segment
// cache pressure, and registry maintenance activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CompositorProducersActive is the current count of live producer
	// goroutines across all compositions and sample rates.
	CompositorProducersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "radmix",
		Subsystem: "compositor",
		Name:      "producers_active",
		Help:      "Number of currently active compositor producer goroutines.",
	})

	// CompositorBuffersProduced counts buffer nodes appended to any
	// stream, across all producers, since process start.
	CompositorBuffersProduced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "radmix",
		Subsystem: "compositor",
		Name:      "buffers_produced_total",
		Help:      "Total buffer nodes produced across all compositor producers.",
	})

	// CompositorReapedTotal counts producers reaped for falling below
	// the active-reference threshold.
	CompositorReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "radmix",
		Subsystem: "compositor",
		Name:      "producers_reaped_total",
		Help:      "Total compositor producers reaped due to no attached consumers.",
	})

	// SegStoreCacheBytes tracks the segment store's current evictable
	// cache occupancy.
	SegStoreCacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "radmix",
		Subsystem: "segstore",
		Name:      "cache_bytes",
		Help:      "Current evictable segment cache occupancy in bytes.",
	})

	// SegStoreEvictionsTotal counts segments evicted to satisfy the
	// cache byte limit.
	SegStoreEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "radmix",
		Subsystem: "segstore",
		Name:      "evictions_total",
		Help:      "Total segments evicted from the segment store cache.",
	})

	// MixUnderrunsTotal counts resampled placement reads that contributed
	// silence because one or both interpolation neighbors had no sample.
	MixUnderrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "radmix",
		Subsystem: "mix",
		Name:      "underruns_total",
		Help:      "Total placements that contributed silence due to a missing sample.",
	})

	// HealthCPUPercent reports the process's most recently sampled CPU
	// utilization percentage.
	HealthCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "radmix",
		Subsystem: "health",
		Name:      "cpu_percent",
		Help:      "Most recently sampled process CPU utilization percentage.",
	})

	// HealthRSSBytes reports the process's most recently sampled
	// resident set size.
	HealthRSSBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "radmix",
		Subsystem: "health",
		Name:      "rss_bytes",
		Help:      "Most recently sampled process resident set size in bytes.",
	})
)

// Handler returns the Prometheus scrape handler for wiring into an
// http.ServeMux by the entrypoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
