package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInitMetrics(t *testing.T) {
	Init()

	if PollCycles == nil {
		t.Error("PollCycles counter not initialized")
	}
	if MatchesDetected == nil {
		t.Error("MatchesDetected counter not initialized")
	}
	if DeliveriesSent == nil {
		t.Error("DeliveriesSent counter not initialized")
	}
	if PollDuration == nil {
		t.Error("PollDuration histogram not initialized")
	}

	// Init is idempotent, a second call must not panic with
	// duplicate registration.
	Init()
}

func TestCounterIncrements(t *testing.T) {
	Init()

	PollCycles.Inc()
	PollErrors.WithLabelValues("steam").Inc()
	MatchesDetected.WithLabelValues("riot").Add(3)
	ClipsRequested.Inc()
	ClipsReady.Inc()
	ClipsFailed.Inc()
	DeliveriesSent.WithLabelValues("dm").Inc()
	DeliveriesFailed.Inc()
	DeliveriesQuiet.Inc()
	WebhookEvents.WithLabelValues("clip.ready").Inc()
	JobsDead.WithLabelValues("clip_monitor").Inc()
}

func TestQueueDepthGauge(t *testing.T) {
	Init()

	for _, depth := range []int{0, 10, 50, 0} {
		SetQueueDepth("clip_request", depth)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	Init()

	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || *metric.Histogram.SampleCount == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestObserveSince(t *testing.T) {
	Init()

	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_since_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	ObserveSince(testHistogram, time.Now().Add(-50*time.Millisecond))

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if *metric.Histogram.SampleCount != 1 {
		t.Errorf("sample count = %d, want 1", *metric.Histogram.SampleCount)
	}
	if *metric.Histogram.SampleSum < 0.05 {
		t.Errorf("sample sum = %f, want >= 0.05", *metric.Histogram.SampleSum)
	}
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()

	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty ctx) = %q, want empty", got)
	}

	ctx = WithCorrelation(ctx, "corr-42")
	if got := GetCorrelation(ctx); got != "corr-42" {
		t.Errorf("GetCorrelation() = %q, want corr-42", got)
	}

	if logger := LoggerWithCorr(ctx); logger == nil {
		t.Error("LoggerWithCorr returned nil")
	}
	if logger := LoggerWithCorr(context.Background()); logger == nil {
		t.Error("LoggerWithCorr without correlation returned nil")
	}
}
