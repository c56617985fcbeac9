package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/NebulaLumino/ClipVault/clip"
	"github.com/NebulaLumino/ClipVault/db"
	"github.com/NebulaLumino/ClipVault/telemetry"
)

type allstarWebhookEvent struct {
	Event        string  `json:"event"`
	ClipID       string  `json:"clipId"`
	Status       string  `json:"status"`
	Title        string  `json:"title"`
	VideoURL     string  `json:"videoUrl"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	Duration     float64 `json:"duration"`
}

// statusFromEvent maps the provider's event vocabulary onto clip statuses.
// The status field is informational; the event name is authoritative.
// Unknown events fall back to the status field.
func statusFromEvent(event, status string) string {
	switch event {
	case "clip.ready":
		return "ready"
	case "clip.processing":
		return "processing"
	case "clip.failed":
		return "failed"
	}
	return status
}

// HandleAllstarWebhook ingests pushed clip status updates. Events are
// applied through the same status mapping as the polling path, so a
// webhook and a poll racing on the same clip converge on one state.
func (h *Handlers) HandleAllstarWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	logger := telemetry.LoggerWithCorr(ctx)

	var ev allstarWebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if ev.ClipID == "" {
		http.Error(w, "missing clipId", http.StatusBadRequest)
		return
	}
	telemetry.WebhookEvents.WithLabelValues(ev.Event).Inc()

	status := statusFromEvent(ev.Event, ev.Status)
	if status == "" {
		logger.Debug("ignoring webhook event without status",
			"event", ev.Event, "clip_id", ev.ClipID)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	upd := db.ClipUpdate{
		Title:        ev.Title,
		VideoURL:     ev.VideoURL,
		ThumbnailURL: ev.ThumbnailURL,
		Duration:     int(ev.Duration),
	}
	_, err := h.applier.ApplyStatusEvent(ctx, ev.ClipID, status, upd)
	if err != nil {
		if errors.Is(err, clip.ErrClipNotFound) {
			http.Error(w, "unknown clip", http.StatusNotFound)
			return
		}
		logger.Error("webhook: apply status event", "clip_id", ev.ClipID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logger.Info("webhook event applied",
		"event", ev.Event, "clip_id", ev.ClipID, "status", status)
	w.WriteHeader(http.StatusAccepted)
}

type matchWebhookEvent struct {
	Platform string `json:"platform"`
	MatchID  string `json:"matchId"`
	UserID   string `json:"userId"`
}

// HandleMatchWebhook pushes an already-recorded completed match into the
// clip stage, for callers that learn about matches outside the detection
// sweep.
func (h *Handlers) HandleMatchWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	logger := telemetry.LoggerWithCorr(ctx)

	var ev matchWebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if ev.Platform == "" || ev.MatchID == "" || ev.UserID == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	enqueued, err := h.pipeline.EnqueueMatch(ctx, ev.MatchID)
	if err != nil {
		if errors.Is(err, clip.ErrMatchNotFound) {
			http.Error(w, "unknown match", http.StatusNotFound)
			return
		}
		logger.Error("webhook: enqueue match", "match_id", ev.MatchID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logger.Info("match webhook accepted",
		"match_id", ev.MatchID, "platform", ev.Platform, "enqueued", enqueued)
	w.WriteHeader(http.StatusAccepted)
}
