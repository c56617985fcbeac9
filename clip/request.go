package clip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NebulaLumino/ClipVault/allstarapi"
	"github.com/NebulaLumino/ClipVault/db"
	"github.com/NebulaLumino/ClipVault/queue"
	"github.com/NebulaLumino/ClipVault/telemetry"
)

// Enqueuer hands work to the next pipeline stage.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, key string, payload any) (bool, error)
	EnqueueAfter(ctx context.Context, queueName, key string, payload any, delay time.Duration) (bool, error)
}

type requestStore interface {
	CreateClip(ctx context.Context, c *db.Clip) (bool, error)
	FindClipByAllstarID(ctx context.Context, allstarClipID string) (*db.Clip, error)
}

// ClipRequestAPI submits clip generation requests.
type ClipRequestAPI interface {
	RequestClips(ctx context.Context, req allstarapi.ClipRequest) (*allstarapi.ClipBatch, error)
}

// Requester calls the Allstar API for a match and persists the returned
// clip stubs. Creation is idempotent on the Allstar clip id, so a retried
// request job never duplicates rows.
type Requester struct {
	Store requestStore
	API   ClipRequestAPI
	Queue Enqueuer

	// MonitorDelay is the wait before the first status check; upstream
	// processing takes minutes at best.
	MonitorDelay time.Duration
}

// RequestForMatch requests clips for a match and returns how many clip
// records were created.
func (r *Requester) RequestForMatch(ctx context.Context, m *db.Match) (int, error) {
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "clip"),
		slog.String("match_id", m.ID))

	batch, err := r.API.RequestClips(ctx, allstarapi.ClipRequest{
		Platform:        string(m.Platform),
		GameTitle:       string(m.GameTitle),
		PlatformMatchID: m.PlatformMatchID,
		MatchID:         m.ID,
	})
	if errors.Is(err, allstarapi.ErrNotConfigured) {
		logger.Debug("clip api not configured, skipping request")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("request clips: %w", err)
	}
	if len(batch.Clips) == 0 {
		logger.Warn("no clips returned", slog.String("request_id", batch.RequestID))
		return 0, nil
	}

	created := 0
	for _, stub := range batch.Clips {
		rec := &db.Clip{
			MatchID:       m.ID,
			UserID:        m.UserID,
			AllstarClipID: stub.ID,
			Type:          stub.Type,
			Title:         stub.Title,
			ThumbnailURL:  stub.ThumbnailURL,
			VideoURL:      stub.VideoURL,
			Duration:      int(stub.Duration.Seconds()),
			Status:        db.ClipRequested,
		}
		ok, err := r.Store.CreateClip(ctx, rec)
		if err != nil {
			return created, fmt.Errorf("create clip %s: %w", stub.ID, err)
		}
		if ok {
			created++
			telemetry.ClipsRequested.Inc()
		} else {
			// A retried request job hit the idempotency key; monitor the
			// row the first attempt created.
			existing, err := r.Store.FindClipByAllstarID(ctx, stub.ID)
			if err != nil {
				return created, fmt.Errorf("find clip %s: %w", stub.ID, err)
			}
			if existing == nil {
				continue
			}
			rec = existing
		}
		payload := queue.ClipMonitorPayload{
			ClipID:        rec.ID,
			CorrelationID: telemetry.GetCorrelation(ctx),
		}
		if _, err := r.Queue.EnqueueAfter(ctx, queue.QueueClipMonitor, rec.ID, payload, r.MonitorDelay); err != nil {
			logger.Error("enqueue clip monitor failed",
				slog.String("clip_id", rec.ID),
				slog.Any("err", err))
		}
	}
	logger.Info("clips requested",
		slog.String("request_id", batch.RequestID),
		slog.Int("created", created))
	return created, nil
}
