// Package metrics exposes sync and read activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements syncer.Observer on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	syncs        *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	syncRecords  *prometheus.GaugeVec
	dangling     *prometheus.CounterVec
	hookDrops    *prometheus.CounterVec
	contentReads *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notacms_syncs_total",
			Help: "Total number of syncs by source and result",
		}, []string{"source", "result"}),
		syncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notacms_sync_duration_seconds",
			Help:    "Duration of syncs",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"source"}),
		syncRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "notacms_sync_records",
			Help: "Records stored by the last successful sync",
		}, []string{"source"}),
		dangling: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notacms_dangling_references_total",
			Help: "Relations whose target was not found",
		}, []string{"stage"}),
		hookDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notacms_hook_dropped_records_total",
			Help: "Records dropped by a hook",
		}, []string{"hook"}),
		contentReads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notacms_content_reads_total",
			Help: "Content reads by cache outcome",
		}, []string{"cache"}),
	}
}

// SyncFinished records one sync attempt.
func (m *Metrics) SyncFinished(source string, records int, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.syncs.WithLabelValues(source, result).Inc()
	m.syncDuration.WithLabelValues(source).Observe(d.Seconds())
	if err == nil {
		m.syncRecords.WithLabelValues(source).Set(float64(records))
	}
}

func (m *Metrics) DanglingReferences(stage string, n int) {
	m.dangling.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) HookDropped(hook string) {
	m.hookDrops.WithLabelValues(hook).Inc()
}

func (m *Metrics) ContentRead(cached bool) {
	outcome := "miss"
	if cached {
		outcome = "hit"
	}
	m.contentReads.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
