package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the Prometheus collectors for the fetch/aggregate pipeline.
//
// Metrics:
//   - leadboard_pages_fetched_total{kind}
//   - leadboard_records_fetched_total{kind}
//   - leadboard_source_failures_total{kind,stage}
//   - leadboard_pipeline_runs_total{op,outcome}
//   - leadboard_pipeline_duration_seconds{op}
//   - leadboard_http_requests_total{method,route,status}
type Metrics struct {
	PagesFetched     *prometheus.CounterVec
	RecordsFetched   *prometheus.CounterVec
	SourceFailures   *prometheus.CounterVec
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
}

// New returns the process-wide collectors, registering them on first use.
func New() *Metrics {
	once.Do(func() {
		global = &Metrics{
			PagesFetched: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadboard_pages_fetched_total",
					Help: "Upstream pages fetched successfully",
				},
				[]string{"kind"},
			),
			RecordsFetched: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadboard_records_fetched_total",
					Help: "Raw records received from upstream pages",
				},
				[]string{"kind"},
			),
			SourceFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadboard_source_failures_total",
					Help: "Sources that failed, by the page they failed on (first or later)",
				},
				[]string{"kind", "stage"},
			),
			PipelineRuns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadboard_pipeline_runs_total",
					Help: "Pipeline runs by operation and outcome",
				},
				[]string{"op", "outcome"},
			),
			PipelineDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "leadboard_pipeline_duration_seconds",
					Help:    "Wall time of a full fetch, aggregate and filter run",
					Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"op"},
			),
			HTTPRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadboard_http_requests_total",
					Help: "Dashboard API requests by route and status code",
				},
				[]string{"method", "route", "status"},
			),
		}
	})
	return global
}
