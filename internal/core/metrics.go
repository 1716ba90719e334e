package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records ingestion counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	ingestions      *prometheus.CounterVec
	duration        prometheus.Histogram
	rowsDropped     prometheus.Counter
	assets          *prometheus.CounterVec
	promoteFailures prometheus.Counter
}

// NewMetrics registers ingestion metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ingestions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitecatalog",
			Name:      "ingestions_total",
			Help:      "Catalog ingestions by result.",
		}, []string{"result"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sitecatalog",
			Name:      "ingestion_duration_seconds",
			Help:      "Wall time of completed ingestions.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		rowsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sitecatalog",
			Name:      "manifest_rows_dropped_total",
			Help:      "Manifest lines excluded from catalogs.",
		}),
		assets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitecatalog",
			Name:      "assets_total",
			Help:      "Uploaded images by outcome.",
		}, []string{"outcome"}),
		promoteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sitecatalog",
			Name:      "asset_promote_failures_total",
			Help:      "Committed ingestions whose staged images could not be promoted.",
		}),
	}
}

func (m *Metrics) observeResult(result string, start time.Time) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(result).Inc()
	if result == "success" {
		m.duration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) observeManifest(dropped int) {
	if m == nil || dropped == 0 {
		return
	}
	m.rowsDropped.Add(float64(dropped))
}

func (m *Metrics) observeAssets(assets []IngestedAsset) {
	if m == nil {
		return
	}
	for _, a := range assets {
		m.assets.WithLabelValues(string(a.Outcome)).Inc()
	}
}

func (m *Metrics) observePromoteFailure() {
	if m == nil {
		return
	}
	m.promoteFailures.Inc()
}
