package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LayoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedcal_layout_duration_seconds",
		Help:    "Time spent building a calendar grid",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	LayoutDays = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedcal_layout_days",
		Help:    "Number of days resolved per render",
		Buckets: []float64{1, 7, 35, 42},
	})

	MalformedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedcal_malformed_events_total",
		Help: "Events rejected at layout ingestion, by reason",
	}, []string{"reason"})

	FetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedcal_fetch_failures_total",
		Help: "Event source fetches that returned an error",
	})

	SupersededFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedcal_superseded_fetches_total",
		Help: "Fetch results discarded because a newer navigation happened first",
	})

	SyncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedcal_ics_sync_errors_total",
		Help: "ICS synchronisation failures, by source",
	}, []string{"source"})

	SyncedEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "schedcal_ics_synced_events",
		Help: "Events stored by the last successful sync, by source",
	}, []string{"source"})
)
