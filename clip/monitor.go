package clip

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/NebulaLumino/ClipVault/allstarapi"
	"github.com/NebulaLumino/ClipVault/db"
	"github.com/NebulaLumino/ClipVault/queue"
	"github.com/NebulaLumino/ClipVault/telemetry"
)

// MapAllstarStatus translates the Allstar status vocabulary onto the local
// clip status. Unknown values leave the status unchanged.
func MapAllstarStatus(upstream string, current db.ClipStatus) db.ClipStatus {
	switch strings.ToLower(upstream) {
	case "ready", "completed":
		return db.ClipReady
	case "processing", "pending":
		return db.ClipProcessing
	case "failed":
		return db.ClipFailed
	case "expired":
		return db.ClipExpired
	default:
		return current
	}
}

// monitorStore is the persistence surface the monitor needs.
type monitorStore interface {
	GetClip(ctx context.Context, id string) (*db.Clip, error)
	FindClipByAllstarID(ctx context.Context, allstarClipID string) (*db.Clip, error)
	ListClipsByStatus(ctx context.Context, limit int, statuses ...db.ClipStatus) ([]db.Clip, error)
	AdvanceClipStatus(ctx context.Context, id string, next db.ClipStatus, upd db.ClipUpdate) error
}

// ClipStatusAPI reads a clip's processing state upstream.
type ClipStatusAPI interface {
	GetClip(ctx context.Context, clipID string) (*allstarapi.Clip, error)
}

// Monitor polls the Allstar API for status transitions on outstanding
// clips and hands ready clips to the delivery queue.
type Monitor struct {
	Store     monitorStore
	API       ClipStatusAPI
	Queue     Enqueuer
	BatchSize int
}

// Outcome of one status check.
type Outcome int

const (
	// OutcomePending means the clip is still processing upstream.
	OutcomePending Outcome = iota
	// OutcomeReady means the clip reached ready and delivery was enqueued.
	OutcomeReady
	// OutcomeTerminal means the clip failed or expired, or was already past
	// ready; no further checks are needed.
	OutcomeTerminal
)

// CheckClip refreshes one clip from upstream and applies the mapped status.
func (m *Monitor) CheckClip(ctx context.Context, clipID string) (Outcome, error) {
	clip, err := m.Store.GetClip(ctx, clipID)
	if err != nil {
		return OutcomePending, fmt.Errorf("load clip: %w", err)
	}
	if clip == nil {
		return OutcomeTerminal, fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}
	switch clip.Status {
	case db.ClipReady:
		// Already ready; make sure a delivery job exists and stop polling.
		if err := m.enqueueDelivery(ctx, clip); err != nil {
			return OutcomePending, err
		}
		return OutcomeReady, nil
	case db.ClipDelivered, db.ClipFailed, db.ClipExpired:
		return OutcomeTerminal, nil
	}

	upstream, err := m.API.GetClip(ctx, clip.AllstarClipID)
	if err != nil {
		return OutcomePending, fmt.Errorf("fetch clip status: %w", err)
	}
	if upstream == nil {
		// Gone upstream: unrecoverable for this clip.
		if err := m.Store.AdvanceClipStatus(ctx, clip.ID, db.ClipFailed, db.ClipUpdate{}); err != nil {
			return OutcomePending, err
		}
		telemetry.ClipsFailed.Inc()
		return OutcomeTerminal, nil
	}

	next := MapAllstarStatus(upstream.Status, clip.Status)
	upd := db.ClipUpdate{
		Title:        upstream.Title,
		ThumbnailURL: upstream.ThumbnailURL,
		VideoURL:     upstream.VideoURL,
		Duration:     int(upstream.Duration.Seconds()),
	}
	if next == clip.Status {
		return OutcomePending, nil
	}
	if err := m.Store.AdvanceClipStatus(ctx, clip.ID, next, upd); err != nil {
		return OutcomePending, fmt.Errorf("advance clip status: %w", err)
	}
	switch next {
	case db.ClipReady:
		telemetry.ClipsReady.Inc()
		if err := m.enqueueDelivery(ctx, clip); err != nil {
			return OutcomePending, err
		}
		return OutcomeReady, nil
	case db.ClipFailed, db.ClipExpired:
		telemetry.ClipsFailed.Inc()
		return OutcomeTerminal, nil
	default:
		return OutcomePending, nil
	}
}

func (m *Monitor) enqueueDelivery(ctx context.Context, clip *db.Clip) error {
	payload := queue.ClipDeliveryPayload{
		ClipID:        clip.ID,
		UserID:        clip.UserID,
		CorrelationID: telemetry.GetCorrelation(ctx),
	}
	if _, err := m.Queue.Enqueue(ctx, queue.QueueClipDelivery, clip.ID, payload); err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}

// ApplyStatusEvent applies a pushed status update (the Allstar webhook) to
// the clip identified by its Allstar id, using the same status mapping as
// polling. A ready transition enqueues delivery exactly like a poll would.
func (m *Monitor) ApplyStatusEvent(ctx context.Context, allstarClipID, status string, upd db.ClipUpdate) (Outcome, error) {
	clip, err := m.Store.FindClipByAllstarID(ctx, allstarClipID)
	if err != nil {
		return OutcomePending, fmt.Errorf("find clip by allstar id: %w", err)
	}
	if clip == nil {
		return OutcomeTerminal, fmt.Errorf("%w: allstar id %s", ErrClipNotFound, allstarClipID)
	}
	switch clip.Status {
	case db.ClipDelivered, db.ClipFailed, db.ClipExpired:
		return OutcomeTerminal, nil
	}
	next := MapAllstarStatus(status, clip.Status)
	if next == clip.Status {
		return OutcomePending, nil
	}
	if err := m.Store.AdvanceClipStatus(ctx, clip.ID, next, upd); err != nil {
		return OutcomePending, fmt.Errorf("advance clip status: %w", err)
	}
	switch next {
	case db.ClipReady:
		telemetry.ClipsReady.Inc()
		if err := m.enqueueDelivery(ctx, clip); err != nil {
			return OutcomePending, err
		}
		return OutcomeReady, nil
	case db.ClipFailed, db.ClipExpired:
		telemetry.ClipsFailed.Inc()
		return OutcomeTerminal, nil
	default:
		return OutcomePending, nil
	}
}

// PollReadyClips sweeps outstanding clips up to the batch limit and checks
// each against upstream. It backstops the per-clip monitor jobs: if a job
// is ever lost, the sweep still moves the clip forward. Returns how many
// clips reached ready.
func (m *Monitor) PollReadyClips(ctx context.Context) (int, error) {
	limit := m.BatchSize
	if limit <= 0 {
		limit = 50
	}
	clips, err := m.Store.ListClipsByStatus(ctx, limit, db.ClipRequested, db.ClipProcessing)
	if err != nil {
		return 0, fmt.Errorf("list outstanding clips: %w", err)
	}
	ready := 0
	for _, c := range clips {
		outcome, err := m.CheckClip(ctx, c.ID)
		if err != nil {
			slog.Warn("clip status check failed",
				slog.String("component", "clip"),
				slog.String("clip_id", c.ID),
				slog.Any("err", err))
			continue
		}
		if outcome == OutcomeReady {
			ready++
		}
	}
	return ready, nil
}
