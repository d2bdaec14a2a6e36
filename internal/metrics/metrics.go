// Package metrics holds the Prometheus instrumentation for the ingest
// pipeline: per-station fetch counters, queue depth gauges, and
// decode/storage error counts.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and gauges for the ingest pipeline. The
// scheduler is the only package that updates them.
type Metrics struct {
	FramesFetched   *prometheus.CounterVec // labels: station
	FramesFailed    *prometheus.CounterVec // labels: station
	RemoteFetchErrs *prometheus.CounterVec // labels: station
	StorageErrors   *prometheus.CounterVec // labels: station, product

	DiscoveryQueueDepth prometheus.Gauge
	ActiveScans         prometheus.Gauge
	BufferPoolInUse     prometheus.Gauge

	FetchDuration prometheus.Histogram
}

// New creates and registers pipeline metrics on reg. Pass a private
// registry in tests to avoid "already registered" panics across
// parallel test runs.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "levelii_ingest",
			Name:      "frames_fetched_total",
			Help:      "Total archive frames successfully fetched and decoded, by station.",
		}, []string{"station"}),
		FramesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "levelii_ingest",
			Name:      "frames_failed_total",
			Help:      "Total archive frames that failed to fetch, decompress, or decode, by station.",
		}, []string{"station"}),
		RemoteFetchErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "levelii_ingest",
			Name:      "remote_fetch_errors_total",
			Help:      "Object-store fetch failures, by station.",
		}, []string{"station"}),
		StorageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "levelii_ingest",
			Name:      "storage_errors_total",
			Help:      "Artifact write failures, by station and product.",
		}, []string{"station", "product"}),
		DiscoveryQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "levelii_ingest",
			Name:      "discovery_queue_depth",
			Help:      "Number of discovery batches currently queued for fetch.",
		}),
		ActiveScans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "levelii_ingest",
			Name:      "active_scans",
			Help:      "Number of stations with an in-flight discovery scan.",
		}),
		BufferPoolInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "levelii_ingest",
			Name:      "buffer_pool_in_use",
			Help:      "Number of buffers currently checked out of the buffer pool.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "levelii_ingest",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one object fetch plus decode plus store cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	reg.MustRegister(
		m.FramesFetched,
		m.FramesFailed,
		m.RemoteFetchErrs,
		m.StorageErrors,
		m.DiscoveryQueueDepth,
		m.ActiveScans,
		m.BufferPoolInUse,
		m.FetchDuration,
	)

	return m
}

// NewForTesting creates Metrics on a fresh private registry.
func NewForTesting() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return New(reg), reg
}
