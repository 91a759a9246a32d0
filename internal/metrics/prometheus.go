package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	jwksFetchesTotal  *prometheus.CounterVec
	scoresTotal       *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors with reg
// (prometheus.DefaultRegisterer when nil).
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusRecorder{
		operationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lti_operations_total",
				Help: "Total number of LTI operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lti_operation_duration_seconds",
				Help:    "Duration of LTI operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		jwksFetchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lti_jwks_fetches_total",
				Help: "Total number of platform JWKS fetches by status",
			},
			[]string{"status"},
		),
		scoresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lti_score_publications_total",
				Help: "Total number of AGS score publications by status",
			},
			[]string{"status"},
		),
	}
}

func (p *PrometheusRecorder) ObserveOperation(operation, status string, d time.Duration) {
	p.operationsTotal.WithLabelValues(operation, status).Inc()
	p.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJWKSFetch(status string) {
	p.jwksFetchesTotal.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncScorePublication(status string) {
	p.scoresTotal.WithLabelValues(status).Inc()
}
