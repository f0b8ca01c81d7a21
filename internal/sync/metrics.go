package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors updated by the engine and poller.
type Metrics struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	records       *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	sinkErrors    *prometheus.CounterVec
	stageErrors   *prometheus.CounterVec
	pages         prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_sync_cycles_total",
			Help: "Total number of completed sync cycles",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_sync_cycle_duration_seconds",
			Help:    "Wall time of a sync cycle",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
		}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sync_records_emitted_total",
			Help: "Records handed to the sinks, by record type",
		}, []string{"type"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sync_records_skipped_total",
			Help: "Entities dropped by normalization, by record type",
		}, []string{"type"}),
		sinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sync_sink_errors_total",
			Help: "Records a sink failed to accept, by record type",
		}, []string{"type"}),
		stageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sync_stage_errors_total",
			Help: "Upstream fetch failures, by stage",
		}, []string{"stage"}),
		pages: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_sync_ticket_pages_total",
			Help: "Incremental export pages fetched",
		}),
	}
}
