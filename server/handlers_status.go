package server

import (
	"encoding/json"
	"net/http"

	"github.com/NebulaLumino/ClipVault/queue"
	"github.com/NebulaLumino/ClipVault/telemetry"
)

// HandleStatus reports pipeline state: clip counts per status and pending
// job depth per queue.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := telemetry.LoggerWithCorr(ctx)

	clips, err := h.pipeline.Stats(ctx)
	if err != nil {
		logger.Error("status: count clips", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	clipCounts := make(map[string]int, len(clips))
	for status, n := range clips {
		clipCounts[string(status)] = n
	}

	depths := make(map[string]int, 3)
	for _, q := range []string{queue.QueueClipRequest, queue.QueueClipMonitor, queue.QueueClipDelivery} {
		n, err := h.queues.Depth(ctx, q)
		if err != nil {
			logger.Error("status: queue depth", "queue", q, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		depths[q] = n
	}

	accounts, err := h.store.ListPollableAccounts(ctx)
	if err != nil {
		logger.Error("status: list accounts", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"clips":             clipCounts,
		"queues":            depths,
		"pollable_accounts": len(accounts),
	})
}
