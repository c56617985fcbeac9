// Package delivery resolves a user's notification preferences and
// dispatches ready clips through the chat platform, recording every
// attempt.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NebulaLumino/ClipVault/db"
	"github.com/NebulaLumino/ClipVault/queue"
	"github.com/NebulaLumino/ClipVault/telemetry"
)

// ErrQuietHours signals a delivery deferred by the user's quiet window.
var ErrQuietHours = errors.New("delivery deferred by quiet hours")

// Store is the persistence surface the engine needs.
type Store interface {
	GetClip(ctx context.Context, id string) (*db.Clip, error)
	AdvanceClipStatus(ctx context.Context, id string, next db.ClipStatus, upd db.ClipUpdate) error
	GetPreferences(ctx context.Context, userID string) (db.Preferences, error)
	CreateDelivery(ctx context.Context, d *db.Delivery) error
	MarkDeliverySent(ctx context.Context, id string) error
	MarkDeliveryFailed(ctx context.Context, id, errText string) error
	ListDeliveriesByStatus(ctx context.Context, status db.DeliveryStatus, limit int) ([]db.Delivery, error)
}

// Messenger dispatches content to a recipient over the chat platform.
type Messenger interface {
	SendDirectMessage(ctx context.Context, userID, content string) error
	PostToChannel(ctx context.Context, channelID, content string) error
}

// Engine delivers ready clips according to user preferences.
type Engine struct {
	Store     Store
	Messenger Messenger

	// Now is swappable for the quiet-hours tests.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// DeliverClip dispatches one clip to its user. Returns false without side
// effects when the clip is not ready; a clip in any other status is simply
// not deliverable yet (or anymore), which is the caller's cue to requeue
// or drop. A quiet-hours deferral returns ErrQuietHours wrapped with the
// time until the window ends.
func (e *Engine) DeliverClip(ctx context.Context, clipID, userID string) (bool, error) {
	start := e.now()
	defer telemetry.ObserveSince(telemetry.DeliveryDuration, start)

	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "delivery"),
		slog.String("clip_id", clipID))

	clip, err := e.Store.GetClip(ctx, clipID)
	if err != nil {
		return false, fmt.Errorf("load clip: %w", err)
	}
	if clip == nil {
		logger.Warn("clip not found for delivery")
		return false, nil
	}
	if clip.Status != db.ClipReady {
		logger.Warn("clip not ready for delivery", slog.String("status", string(clip.Status)))
		return false, nil
	}

	prefs, err := e.Store.GetPreferences(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load preferences: %w", err)
	}
	if remaining := QuietHoursRemaining(prefs, e.now()); remaining > 0 {
		telemetry.DeliveriesQuiet.Inc()
		logger.Info("delivery deferred by quiet hours", slog.Duration("remaining", remaining))
		return false, queue.RetryAfter(remaining, ErrQuietHours)
	}

	method := prefs.DeliveryMethod
	recipient := userID
	if method == db.DeliverChannel {
		if prefs.ChannelID != "" {
			recipient = prefs.ChannelID
		} else {
			// Channel delivery without a configured channel falls back to DM.
			method = db.DeliverDM
		}
	}

	rec := &db.Delivery{
		ClipID:      clipID,
		UserID:      userID,
		RecipientID: recipient,
		Method:      method,
		Status:      db.DeliveryPending,
	}
	if err := e.Store.CreateDelivery(ctx, rec); err != nil {
		return false, fmt.Errorf("create delivery record: %w", err)
	}

	content := FormatClipMessage(clip)
	var sendErr error
	switch method {
	case db.DeliverChannel:
		sendErr = e.Messenger.PostToChannel(ctx, recipient, content)
	default:
		sendErr = e.Messenger.SendDirectMessage(ctx, recipient, content)
	}

	if sendErr != nil {
		telemetry.DeliveriesFailed.Inc()
		if merr := e.Store.MarkDeliveryFailed(ctx, rec.ID, sendErr.Error()); merr != nil {
			logger.Error("mark delivery failed", slog.Any("err", merr))
		}
		logger.Error("delivery failed",
			slog.String("delivery_id", rec.ID),
			slog.String("method", string(method)),
			slog.Any("err", sendErr))
		// Clip stays ready so a retry remains possible.
		return false, fmt.Errorf("dispatch %s: %w", method, sendErr)
	}

	if err := e.Store.MarkDeliverySent(ctx, rec.ID); err != nil {
		return false, fmt.Errorf("mark delivery sent: %w", err)
	}
	if err := e.Store.AdvanceClipStatus(ctx, clipID, db.ClipDelivered, db.ClipUpdate{}); err != nil {
		return false, fmt.Errorf("mark clip delivered: %w", err)
	}
	telemetry.DeliveriesSent.WithLabelValues(string(method)).Inc()
	logger.Info("clip delivered",
		slog.String("delivery_id", rec.ID),
		slog.String("method", string(method)))
	return true, nil
}

// RetryFailedDeliveries re-dispatches clips whose last delivery attempt
// failed but that are still ready. Each retry creates a fresh delivery
// record, preserving the audit trail of attempts.
func (e *Engine) RetryFailedDeliveries(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 20
	}
	failed, err := e.Store.ListDeliveriesByStatus(ctx, db.DeliveryFailed, limit)
	if err != nil {
		return 0, fmt.Errorf("list failed deliveries: %w", err)
	}
	retried := 0
	for _, d := range failed {
		clip, err := e.Store.GetClip(ctx, d.ClipID)
		if err != nil {
			return retried, err
		}
		if clip == nil || clip.Status != db.ClipReady {
			continue
		}
		ok, err := e.DeliverClip(ctx, d.ClipID, d.UserID)
		if err != nil {
			slog.Warn("delivery retry failed",
				slog.String("component", "delivery"),
				slog.String("clip_id", d.ClipID),
				slog.Any("err", err))
			continue
		}
		if ok {
			retried++
		}
	}
	return retried, nil
}

// StartRetryJob periodically retries failed deliveries until ctx is
// cancelled.
func StartRetryJob(ctx context.Context, e *Engine, interval time.Duration, limit int) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	slog.Info("delivery retry job starting", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("delivery retry job stopped")
			return
		case <-ticker.C:
			if n, err := e.RetryFailedDeliveries(ctx, limit); err != nil {
				slog.Warn("delivery retry sweep", slog.Any("err", err))
			} else if n > 0 {
				slog.Info("retried failed deliveries", slog.Int("count", n))
			}
		}
	}
}
