package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		relayJobsTotal,
		relayStageSeconds,
		relayBytesTotal,
		relayActiveWorkers,
		relayPendingJobs,
		relayUploadAttempts,
	)
}

var (
	relayJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_jobs_total",
			Help: "Relay jobs finished, labeled by input kind and outcome.",
		},
		[]string{"kind", "status"}, // status: 'completed', 'failed', 'cancelled'
	)

	relayStageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_stage_seconds",
			Help:    "Duration of the fetch and upload stages.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage", "success"},
	)

	relayBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_bytes_total",
			Help: "Bytes moved through the relay by direction.",
		},
		[]string{"direction"}, // 'fetch', 'upload'
	)

	relayActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_workers",
			Help: "Requesters that currently have a running worker.",
		},
	)

	relayPendingJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_pending_jobs",
			Help: "Jobs waiting across all requester queues.",
		},
	)

	relayUploadAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_upload_attempts_total",
			Help: "Upload attempts per backend, labeled by result.",
		},
		[]string{"backend", "result"},
	)
)

func IncJob(kind, status string) {
	relayJobsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func AddCancelledJobs(n int) {
	relayJobsTotal.WithLabelValues("queued", "cancelled").Add(float64(n))
}

func ObserveStage(stage string, d time.Duration, success bool) {
	relayStageSeconds.WithLabelValues(norm(stage), strconv.FormatBool(success)).Observe(d.Seconds())
}

func AddBytes(direction string, n int) {
	if n <= 0 {
		return
	}
	relayBytesTotal.WithLabelValues(norm(direction)).Add(float64(n))
}

func SetActiveWorkers(n int) {
	relayActiveWorkers.Set(float64(n))
}

func SetPendingJobs(n int) {
	relayPendingJobs.Set(float64(n))
}

func IncUploadAttempt(backend, result string) {
	relayUploadAttempts.WithLabelValues(norm(backend), norm(result)).Inc()
}
