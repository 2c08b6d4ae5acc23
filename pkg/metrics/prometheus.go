package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	leader      prometheus.Gauge
	snapshots   *prometheus.CounterVec
	retries     *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	upstream    *prometheus.HistogramVec
	subscribers prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		leader: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalhub_leader",
				Help: "1 while this process holds the producer lease",
			},
		),
		snapshots: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_snapshots_published_total",
				Help: "Snapshots published, by outcome",
			},
			[]string{"outcome"},
		),
		retries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_upstream_retries_total",
				Help: "Upstream retry attempts, by operation",
			},
			[]string{"operation"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		upstream: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalhub_upstream_duration_seconds",
				Help:    "Duration of upstream calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		subscribers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalhub_stream_subscribers",
				Help: "Currently connected stream clients",
			},
		),
	}
}

// SetLeader records whether this process is the active producer.
func (r *Recorder) SetLeader(isLeader bool) {
	if isLeader {
		r.leader.Set(1)
		return
	}
	r.leader.Set(0)
}

// RecordSnapshotPublished counts a published snapshot.
func (r *Recorder) RecordSnapshotPublished(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.snapshots.WithLabelValues(outcome).Inc()
}

// RecordUpstreamCall records an upstream call duration.
func (r *Recorder) RecordUpstreamCall(op string, seconds float64) {
	r.upstream.WithLabelValues(op).Observe(seconds)
}

// RecordUpstreamRetry counts a retry for an upstream operation.
func (r *Recorder) RecordUpstreamRetry(op string) {
	r.retries.WithLabelValues(op).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// IncSubscribers counts a new stream client.
func (r *Recorder) IncSubscribers() { r.subscribers.Inc() }

// DecSubscribers counts a departed stream client.
func (r *Recorder) DecSubscribers() { r.subscribers.Dec() }
