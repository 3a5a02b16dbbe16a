package bulk

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	jobsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pdns_bulk_jobs_active",
		Help: "Number of bulk jobs currently running.",
	})
	jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pdns_bulk_jobs_total",
		Help: "Number of bulk jobs that reached a terminal state.",
	}, []string{"state"})
	jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pdns_bulk_job_duration_seconds",
		Help:    "Wall time of started bulk jobs.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	metrics.Registry.MustRegister(jobsActive, jobsTotal, jobDuration)
}
