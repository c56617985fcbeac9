package queue

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/NebulaLumino/ClipVault/telemetry"
)

// Handler processes one claimed job. A nil return completes the job; an
// error reschedules it with backoff unless the error is fatal or the job
// is out of attempts, in which case it is dead-lettered.
type Handler func(ctx context.Context, job *Job) error

// Backoff computes retry delays: base * multiplier^(attempt-1), capped,
// with +/-20% jitter so synchronized failures spread out.
type Backoff struct {
	Base       time.Duration
	Cap        time.Duration
	Multiplier float64
}

// Delay returns the wait before retrying the given attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := float64(b.Base) * math.Pow(mult, float64(attempt-1))
	if b.Cap > 0 && d > float64(b.Cap) {
		d = float64(b.Cap)
	}
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(d * jitter)
}

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps an error so the worker dead-letters the job instead of
// retrying. Use it for errors that cannot succeed on retry, like a missing
// row or a rejected payload.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was wrapped by Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

type retryAfterError struct {
	after time.Duration
	err   error
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

// RetryAfter wraps an error so the worker reschedules the job after an
// explicit delay instead of the backoff schedule. Used when the handler
// knows when the work becomes viable, like the end of a quiet-hours
// window.
func RetryAfter(d time.Duration, err error) error {
	if err == nil {
		return nil
	}
	return &retryAfterError{after: d, err: err}
}

// RetryDelayOf extracts the explicit delay from an error wrapped by
// RetryAfter.
func RetryDelayOf(err error) (time.Duration, bool) {
	var ra *retryAfterError
	if errors.As(err, &ra) {
		return ra.after, true
	}
	return 0, false
}

const (
	claimPollInterval   = time.Second
	depthReportInterval = 15 * time.Second
)

// RunWorkers starts n workers consuming the named queue until ctx is
// cancelled. It blocks until all workers have stopped.
func (q *Queue) RunWorkers(ctx context.Context, queue string, n int, backoff Backoff, h Handler) {
	logger := slog.With(slog.String("component", "queue"), slog.String("queue", queue))
	logger.Info("starting workers", slog.Int("count", n))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.reportDepth(ctx, queue)
	}()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.workLoop(ctx, queue, backoff, h, logger)
		}()
	}
	wg.Wait()
	logger.Info("workers stopped")
}

func (q *Queue) workLoop(ctx context.Context, queue string, backoff Backoff, h Handler, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := q.Claim(ctx, queue)
		if err != nil {
			logger.Error("claim failed", slog.Any("err", err))
			sleepCtx(ctx, claimPollInterval)
			continue
		}
		if job == nil {
			sleepCtx(ctx, claimPollInterval)
			continue
		}
		q.runJob(ctx, job, backoff, h, logger)
	}
}

func (q *Queue) runJob(ctx context.Context, job *Job, backoff Backoff, h Handler, logger *slog.Logger) {
	err := h(ctx, job)
	if err == nil {
		if cerr := q.Complete(ctx, job.ID); cerr != nil {
			logger.Error("complete failed", slog.Int64("job_id", job.ID), slog.Any("err", cerr))
		}
		return
	}
	if d, ok := RetryDelayOf(err); ok {
		// Deferred, not failed: the job keeps its attempt budget so a
		// string of quiet-hours windows can never dead-letter it.
		logger.Info("job deferred",
			slog.Int64("job_id", job.ID),
			slog.String("key", job.Key),
			slog.Duration("delay", d),
			slog.Any("err", err))
		if derr := q.Defer(ctx, job.ID, d, err); derr != nil {
			logger.Error("defer failed", slog.Int64("job_id", job.ID), slog.Any("err", derr))
		}
		return
	}
	if IsFatal(err) || job.Attempts >= job.MaxAttempts {
		logger.Error("job dead-lettered",
			slog.Int64("job_id", job.ID),
			slog.String("key", job.Key),
			slog.Int("attempts", job.Attempts),
			slog.Any("err", err))
		if derr := q.Dead(ctx, job.ID, job.Queue, err); derr != nil {
			logger.Error("dead-letter failed", slog.Int64("job_id", job.ID), slog.Any("err", derr))
		}
		return
	}
	delay := backoff.Delay(job.Attempts)
	logger.Warn("job failed, retrying",
		slog.Int64("job_id", job.ID),
		slog.String("key", job.Key),
		slog.Int("attempt", job.Attempts),
		slog.Duration("delay", delay),
		slog.Any("err", err))
	if rerr := q.Retry(ctx, job.ID, delay, err); rerr != nil {
		logger.Error("retry failed", slog.Int64("job_id", job.ID), slog.Any("err", rerr))
	}
}

func (q *Queue) reportDepth(ctx context.Context, queue string) {
	ticker := time.NewTicker(depthReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.Depth(ctx, queue)
			if err != nil {
				continue
			}
			telemetry.SetQueueDepth(queue, n)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
