package server

import (
	"context"
	"database/sql"

	"github.com/NebulaLumino/ClipVault/clip"
	"github.com/NebulaLumino/ClipVault/db"
)

// StatusApplier applies pushed clip status updates; satisfied by
// *clip.Monitor.
type StatusApplier interface {
	ApplyStatusEvent(ctx context.Context, allstarClipID, status string, upd db.ClipUpdate) (clip.Outcome, error)
}

// QueueDepths reports pending job counts; satisfied by *queue.Queue.
type QueueDepths interface {
	Depth(ctx context.Context, queueName string) (int, error)
}

// ClipPipeline is the orchestrator surface the HTTP API uses; satisfied by
// *clip.Orchestrator.
type ClipPipeline interface {
	Stats(ctx context.Context) (map[db.ClipStatus]int, error)
	EnqueueMatch(ctx context.Context, matchID string) (bool, error)
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	db       *sql.DB
	store    *db.Store
	applier  StatusApplier
	queues   QueueDepths
	pipeline ClipPipeline
}

func NewHandlers(dbc *sql.DB, store *db.Store, applier StatusApplier, queues QueueDepths, pipeline ClipPipeline) *Handlers {
	return &Handlers{db: dbc, store: store, applier: applier, queues: queues, pipeline: pipeline}
}
