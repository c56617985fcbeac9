package clip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
	"github.com/NebulaLumino/ClipVault/queue"
	"github.com/NebulaLumino/ClipVault/telemetry"
)

// ErrClipNotFound marks a clip row that has vanished; jobs referencing it
// are dead-lettered rather than retried.
var ErrClipNotFound = errors.New("clip not found")

// ErrMatchNotFound is returned when a pushed match id has no local row.
var ErrMatchNotFound = errors.New("match not found")

// errStillProcessing is the retry signal for monitor jobs: not a failure,
// the clip just is not ready yet.
var errStillProcessing = errors.New("clip still processing upstream")

// orchestratorStore is the persistence surface the orchestrator needs on
// top of its sub-services.
type orchestratorStore interface {
	GetMatch(ctx context.Context, id string) (*db.Match, error)
	AdvanceMatchStatus(ctx context.Context, id string, next db.MatchStatus) error
	ListMatchesByStatus(ctx context.Context, status db.MatchStatus, limit int) ([]db.Match, error)
	GetClip(ctx context.Context, id string) (*db.Clip, error)
	ListClipsByStatus(ctx context.Context, limit int, statuses ...db.ClipStatus) ([]db.Clip, error)
	CountClipsByMatch(ctx context.Context, matchID string) (int, error)
	CountClipsByStatusAll(ctx context.Context) (map[db.ClipStatus]int, error)
}

// Deliverer dispatches one ready clip. false with a nil error means the
// clip was not in a deliverable state.
type Deliverer interface {
	DeliverClip(ctx context.Context, clipID, userID string) (bool, error)
}

// Orchestrator sequences a match across the clip stages. Its Handle
// methods are the queue worker entry points; each re-derives its outcome
// from persistent state so at-least-once execution stays idempotent.
type Orchestrator struct {
	Store     orchestratorStore
	Filter    *Filter
	Requester *Requester
	Monitor   *Monitor
	Delivery  Deliverer
	Queue     Enqueuer
}

// HandleClipRequest advances a detected match: apply the filter, request
// clips, and complete the match. Filter rejections complete the match
// without clips; upstream failures leave it processing for the retry.
func (o *Orchestrator) HandleClipRequest(ctx context.Context, job *queue.Job) error {
	var payload queue.ClipRequestPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Fatal(fmt.Errorf("decode clip request payload: %w", err))
	}
	ctx = telemetry.WithCorrelation(ctx, payload.CorrelationID)
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "orchestrator"),
		slog.String("match_id", payload.MatchID))

	match, err := o.Store.GetMatch(ctx, payload.MatchID)
	if err != nil {
		return fmt.Errorf("load match: %w", err)
	}
	if match == nil {
		return queue.Fatal(fmt.Errorf("match %s not found", payload.MatchID))
	}
	if match.Status.Terminal() {
		return nil
	}
	if match.Status == db.MatchDetected {
		if err := o.Store.AdvanceMatchStatus(ctx, match.ID, db.MatchProcessing); err != nil {
			return fmt.Errorf("advance match to processing: %w", err)
		}
	}

	ok, reason, err := o.Filter.ShouldRequest(ctx, o.Store, match)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("match filtered out", slog.String("reason", reason))
		return o.completeMatch(ctx, match.ID)
	}
	if _, err := o.Requester.RequestForMatch(ctx, match); err != nil {
		return err
	}
	return o.completeMatch(ctx, match.ID)
}

func (o *Orchestrator) completeMatch(ctx context.Context, matchID string) error {
	if err := o.Store.AdvanceMatchStatus(ctx, matchID, db.MatchCompleted); err != nil {
		return fmt.Errorf("complete match: %w", err)
	}
	return nil
}

// HandleClipMonitor checks one clip's upstream status. Pending clips are
// rescheduled with backoff; a clip that never settles before the job's
// attempts run out is marked expired.
func (o *Orchestrator) HandleClipMonitor(ctx context.Context, job *queue.Job) error {
	var payload queue.ClipMonitorPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Fatal(fmt.Errorf("decode clip monitor payload: %w", err))
	}
	ctx = telemetry.WithCorrelation(ctx, payload.CorrelationID)

	outcome, err := o.Monitor.CheckClip(ctx, payload.ClipID)
	if errors.Is(err, ErrClipNotFound) {
		return queue.Fatal(err)
	}
	if err != nil {
		return err
	}
	if outcome != OutcomePending {
		return nil
	}
	if job.Attempts >= job.MaxAttempts {
		// Out of patience: the upstream job is stuck. Expire the clip so
		// the dead-lettered job leaves consistent state behind.
		if aerr := o.Monitor.Store.AdvanceClipStatus(ctx, payload.ClipID, db.ClipExpired, db.ClipUpdate{}); aerr != nil {
			return aerr
		}
		telemetry.ClipsFailed.Inc()
		return queue.Fatal(errStillProcessing)
	}
	return errStillProcessing
}

// HandleClipDelivery dispatches one ready clip through the delivery
// engine.
func (o *Orchestrator) HandleClipDelivery(ctx context.Context, job *queue.Job) error {
	var payload queue.ClipDeliveryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Fatal(fmt.Errorf("decode clip delivery payload: %w", err))
	}
	ctx = telemetry.WithCorrelation(ctx, payload.CorrelationID)

	ok, err := o.Delivery.DeliverClip(ctx, payload.ClipID, payload.UserID)
	if errors.Is(err, ErrClipNotFound) {
		return queue.Fatal(err)
	}
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// Not deliverable right now. Terminal clips are dropped; anything else
	// gets another look later.
	clip, gerr := o.Store.GetClip(ctx, payload.ClipID)
	if gerr != nil {
		return gerr
	}
	if clip == nil || clip.Status == db.ClipDelivered || clip.Status == db.ClipFailed || clip.Status == db.ClipExpired {
		return nil
	}
	return fmt.Errorf("clip %s not deliverable in status %s", payload.ClipID, clip.Status)
}

// ProcessDetectedMatches backstops the detection stage: any match still
// sitting in detected (a lost or never-enqueued request job) gets a fresh
// clip-request job.
func (o *Orchestrator) ProcessDetectedMatches(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	matches, err := o.Store.ListMatchesByStatus(ctx, db.MatchDetected, limit)
	if err != nil {
		return 0, fmt.Errorf("list detected matches: %w", err)
	}
	enqueued := 0
	for _, m := range matches {
		payload := queue.ClipRequestPayload{MatchID: m.ID, UserID: m.UserID}
		ok, err := o.Queue.Enqueue(ctx, queue.QueueClipRequest, m.ID, payload)
		if err != nil {
			return enqueued, err
		}
		if ok {
			enqueued++
		}
	}
	return enqueued, nil
}

// RetryFailedClips requests replacement clips for matches whose clips
// failed. Failed clips themselves stay failed; the per-match cap bounds
// how many replacements a match can accumulate.
func (o *Orchestrator) RetryFailedClips(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 20
	}
	failed, err := o.Store.ListClipsByStatus(ctx, limit, db.ClipFailed)
	if err != nil {
		return 0, fmt.Errorf("list failed clips: %w", err)
	}
	retried := 0
	for _, c := range failed {
		payload := queue.ClipRequestPayload{MatchID: c.MatchID, UserID: c.UserID}
		ok, err := o.Queue.Enqueue(ctx, queue.QueueClipRequest, c.MatchID, payload)
		if err != nil {
			return retried, err
		}
		if ok {
			retried++
		}
	}
	return retried, nil
}

// EnqueueMatch pushes one recorded match into the clip stage, bypassing
// the detection sweep. Used by the match webhook. Returns false when a
// request job for the match is already queued.
func (o *Orchestrator) EnqueueMatch(ctx context.Context, matchID string) (bool, error) {
	m, err := o.Store.GetMatch(ctx, matchID)
	if err != nil {
		return false, fmt.Errorf("load match: %w", err)
	}
	if m == nil {
		return false, ErrMatchNotFound
	}
	payload := queue.ClipRequestPayload{MatchID: m.ID, UserID: m.UserID}
	return o.Queue.Enqueue(ctx, queue.QueueClipRequest, m.ID, payload)
}

// Stats summarizes clip counts per status for the status endpoint.
func (o *Orchestrator) Stats(ctx context.Context) (map[db.ClipStatus]int, error) {
	return o.Store.CountClipsByStatusAll(ctx)
}

// StartMonitorSweepJob periodically sweeps outstanding clips as a backstop
// for lost monitor jobs.
func StartMonitorSweepJob(ctx context.Context, m *Monitor, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	slog.Info("clip monitor sweep job starting", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("clip monitor sweep job stopped")
			return
		case <-ticker.C:
			if n, err := m.PollReadyClips(ctx); err != nil {
				slog.Warn("clip monitor sweep", slog.Any("err", err))
			} else if n > 0 {
				slog.Info("clip monitor sweep found ready clips", slog.Int("count", n))
			}
		}
	}
}

// StartReconcileJob periodically re-enqueues work the queues lost track of:
// matches stuck in detected and failed clips eligible for a replacement
// request.
func StartReconcileJob(ctx context.Context, o *Orchestrator, interval time.Duration, limit int) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	slog.Info("clip reconcile job starting", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("clip reconcile job stopped")
			return
		case <-ticker.C:
			if n, err := o.ProcessDetectedMatches(ctx, limit); err != nil {
				slog.Warn("reconcile detected matches", slog.Any("err", err))
			} else if n > 0 {
				slog.Info("re-enqueued detected matches", slog.Int("count", n))
			}
			if n, err := o.RetryFailedClips(ctx, limit); err != nil {
				slog.Warn("reconcile failed clips", slog.Any("err", err))
			} else if n > 0 {
				slog.Info("requested replacements for failed clips", slog.Int("count", n))
			}
		}
	}
}
