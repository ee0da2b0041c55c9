// Package metrics exports arena statistics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/pavanmanishd/bufarena"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder turns arena snapshots into Prometheus series. It is safe for
// concurrent use; hook ObserveArena into Recycler.OnRelease.
type Recorder struct {
	gatherer prometheus.Gatherer

	released    prometheus.Counter
	smallAllocs prometheus.Counter
	largeAllocs prometheus.Counter
	misses      prometheus.Counter
	linkReuses  prometheus.Counter

	blocks      prometheus.Histogram
	reserved    prometheus.Histogram
	utilization prometheus.Histogram
	liveLarge   prometheus.Gauge
}

// NewRecorder registers the arena series on reg under namespace.
func NewRecorder(reg *prometheus.Registry, namespace string) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		released: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arena_released_total",
			Help:      "Total number of arenas returned after use",
		}),
		smallAllocs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arena_small_allocs_total",
			Help:      "Total number of allocations served from arena blocks",
		}),
		largeAllocs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arena_large_allocs_total",
			Help:      "Total number of allocations served by the large path",
		}),
		misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arena_block_misses_total",
			Help:      "Total number of block misses that led to a new block",
		}),
		linkReuses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arena_link_reuses_total",
			Help:      "Total number of chain links taken from a free list",
		}),
		blocks: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "arena_blocks",
			Help:      "Blocks held by an arena when it was released",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),
		reserved: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "arena_reserved_bytes",
			Help:      "Bytes reserved by an arena when it was released",
			Buckets:   prometheus.ExponentialBuckets(4096, 2, 10),
		}),
		utilization: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "arena_utilization_ratio",
			Help:      "Ratio of used to total block capacity at release",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		liveLarge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arena_last_large_bytes",
			Help:      "Bytes held by large allocations in the most recently released arena",
		}),
	}
}

// ObserveArena records one released arena.
func (r *Recorder) ObserveArena(m bufarena.ArenaMetrics) {
	r.released.Inc()
	r.smallAllocs.Add(float64(m.SmallTotal))
	r.largeAllocs.Add(float64(m.LargeTotal))
	r.misses.Add(float64(m.Misses))
	r.linkReuses.Add(float64(m.LinkReuses))
	r.blocks.Observe(float64(m.NumBlocks))
	r.reserved.Observe(float64(m.Reserved))
	r.utilization.Observe(m.Utilization)
	r.liveLarge.Set(float64(m.LargeBytes))
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
