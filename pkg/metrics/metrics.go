package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	samplesTotal  *prometheus.CounterVec
	signalsTotal  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	sinkRetries   *prometheus.CounterVec
	trackedTokens prometheus.Gauge
	flushDuration prometheus.Histogram
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		samplesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openta_samples_total",
				Help: "Total number of samples ingested from the feed",
			},
			[]string{"exchange"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openta_signals_total",
				Help: "Total number of signals emitted",
			},
			[]string{"underlying", "strength", "type"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openta_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		sinkRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openta_sink_retries_total",
				Help: "Total number of retried sink writes",
			},
			[]string{"sink"},
		),
		trackedTokens: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "openta_tracked_tokens",
				Help: "Number of tokens currently tracked by the engine",
			},
		),
		flushDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "openta_flush_duration_seconds",
				Help:    "Duration of window flushes in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordSample records a sample ingested from the feed.
func (r *Recorder) RecordSample(exchange string) {
	r.samplesTotal.WithLabelValues(exchange).Inc()
}

// RecordSignal records an emitted signal.
func (r *Recorder) RecordSignal(underlying, strength, signalType string) {
	r.signalsTotal.WithLabelValues(underlying, strength, signalType).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordFlushDuration records one window flush.
func (r *Recorder) RecordFlushDuration(seconds float64) {
	r.flushDuration.Observe(seconds)
}

// RecordTrackedTokens records the current universe size.
func (r *Recorder) RecordTrackedTokens(n int) {
	r.trackedTokens.Set(float64(n))
}

// RecordSinkRetry records a retried sink write.
func (r *Recorder) RecordSinkRetry(sink string) {
	r.sinkRetries.WithLabelValues(sink).Inc()
}
