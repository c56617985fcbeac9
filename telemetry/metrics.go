// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles       prometheus.Counter
	PollErrors       *prometheus.CounterVec
	MatchesDetected  *prometheus.CounterVec
	ClipsRequested   prometheus.Counter
	ClipsReady       prometheus.Counter
	ClipsFailed      prometheus.Counter
	DeliveriesSent   *prometheus.CounterVec
	DeliveriesFailed prometheus.Counter
	DeliveriesQuiet  prometheus.Counter
	WebhookEvents    *prometheus.CounterVec
	JobsDead         *prometheus.CounterVec

	// Histograms (seconds)
	PollDuration     prometheus.Observer
	DeliveryDuration prometheus.Observer

	// Gauges
	queueDepth *prometheus.GaugeVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "clipvault_poll_cycles_total", Help: "Number of detection sweep cycles"})
		PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clipvault_poll_errors_total", Help: "Upstream poll errors per platform"}, []string{"platform"})
		MatchesDetected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clipvault_matches_detected_total", Help: "New matches detected per platform"}, []string{"platform"})
		ClipsRequested = promauto.NewCounter(prometheus.CounterOpts{Name: "clipvault_clips_requested_total", Help: "Clips requested from the clip API"})
		ClipsReady = promauto.NewCounter(prometheus.CounterOpts{Name: "clipvault_clips_ready_total", Help: "Clips that reached ready"})
		ClipsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "clipvault_clips_failed_total", Help: "Clips that failed or expired upstream"})
		DeliveriesSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clipvault_deliveries_sent_total", Help: "Successful clip deliveries per method"}, []string{"method"})
		DeliveriesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "clipvault_deliveries_failed_total", Help: "Failed clip delivery attempts"})
		DeliveriesQuiet = promauto.NewCounter(prometheus.CounterOpts{Name: "clipvault_deliveries_quiet_deferred_total", Help: "Deliveries deferred by quiet hours"})
		WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clipvault_webhook_events_total", Help: "Clip API webhook events per type"}, []string{"event"})
		JobsDead = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clipvault_jobs_dead_total", Help: "Jobs dead-lettered after exhausting attempts"}, []string{"queue"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clipvault_poll_duration_seconds", Help: "Detection sweep duration seconds", Buckets: prometheus.DefBuckets})
		DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clipvault_delivery_duration_seconds", Help: "Delivery dispatch duration seconds", Buckets: prometheus.DefBuckets})
		queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "clipvault_queue_depth", Help: "Pending jobs per queue"}, []string{"queue"})
	})
}

// SetQueueDepth records the pending job count for a queue.
func SetQueueDepth(queue string, n int) {
	if queueDepth != nil {
		queueDepth.WithLabelValues(queue).Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// ObserveSince records the elapsed time since start in observer if non-nil.
func ObserveSince(obs prometheus.Observer, start time.Time) {
	if obs != nil {
		obs.Observe(time.Since(start).Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
