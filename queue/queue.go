// Package queue implements a durable Postgres-backed job queue.
//
// Jobs are rows in the jobs table. Producers enqueue typed payloads with a
// natural key; a partial unique index on (queue, key) for pending/running
// rows makes enqueues idempotent while a job is in flight. Consumers claim
// jobs with FOR UPDATE SKIP LOCKED so multiple workers never double-process.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NebulaLumino/ClipVault/telemetry"
)

// Queue names. One queue per pipeline stage.
const (
	QueueClipRequest  = "clip_request"
	QueueClipMonitor  = "clip_monitor"
	QueueClipDelivery = "clip_delivery"
)

// Job statuses.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusDead    = "dead"
)

// Job is one claimed unit of work.
type Job struct {
	ID          int64
	Queue       string
	Key         string
	Payload     []byte
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
}

// Queue provides enqueue and claim operations over a jobs table.
type Queue struct {
	DB *sql.DB
}

func New(db *sql.DB) *Queue {
	return &Queue{DB: db}
}

// Enqueue inserts a job runnable immediately. Returns false when an
// equivalent job (same queue and key) is already pending or running.
func (q *Queue) Enqueue(ctx context.Context, queue, key string, payload any) (bool, error) {
	return q.EnqueueAfter(ctx, queue, key, payload, 0)
}

// EnqueueAfter inserts a job that becomes runnable after the given delay.
func (q *Queue) EnqueueAfter(ctx context.Context, queue, key string, payload any, delay time.Duration) (bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}
	res, err := q.DB.ExecContext(ctx, `
        INSERT INTO jobs (queue, key, payload, run_at)
        VALUES ($1, $2, $3, NOW() + $4 * INTERVAL '1 second')
        ON CONFLICT (queue, key) WHERE status IN ('pending', 'running') DO NOTHING`,
		queue, key, body, delay.Seconds())
	if err != nil {
		return false, fmt.Errorf("enqueue %s/%s: %w", queue, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Claim atomically marks one runnable job as running and returns it.
// Returns nil when no job is due.
func (q *Queue) Claim(ctx context.Context, queue string) (*Job, error) {
	row := q.DB.QueryRowContext(ctx, `
        UPDATE jobs SET status = 'running', attempts = attempts + 1, updated_at = NOW()
        WHERE id = (
            SELECT id FROM jobs
            WHERE queue = $1 AND status = 'pending' AND run_at <= NOW()
            ORDER BY run_at
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, queue, key, payload, attempts, max_attempts, run_at`, queue)
	var j Job
	if err := row.Scan(&j.ID, &j.Queue, &j.Key, &j.Payload, &j.Attempts, &j.MaxAttempts, &j.RunAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim from %s: %w", queue, err)
	}
	return &j, nil
}

// Complete marks a job done.
func (q *Queue) Complete(ctx context.Context, id int64) error {
	_, err := q.DB.ExecContext(ctx,
		`UPDATE jobs SET status = 'done', updated_at = NOW() WHERE id = $1`, id)
	return err
}

// Retry reschedules a failed job after the given delay, recording the error.
func (q *Queue) Retry(ctx context.Context, id int64, delay time.Duration, cause error) error {
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	_, err := q.DB.ExecContext(ctx, `
        UPDATE jobs SET status = 'pending', run_at = NOW() + $2 * INTERVAL '1 second',
            last_error = $3, updated_at = NOW()
        WHERE id = $1`, id, delay.Seconds(), errText)
	return err
}

// Defer reschedules a job and gives back the attempt charged at claim
// time, for handlers that declined the work rather than failed it.
func (q *Queue) Defer(ctx context.Context, id int64, delay time.Duration, cause error) error {
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	_, err := q.DB.ExecContext(ctx, `
        UPDATE jobs SET status = 'pending', run_at = NOW() + $2 * INTERVAL '1 second',
            attempts = GREATEST(attempts - 1, 0), last_error = $3, updated_at = NOW()
        WHERE id = $1`, id, delay.Seconds(), errText)
	return err
}

// Dead marks a job permanently failed. Dead jobs stay in the table for
// inspection and are never claimed again.
func (q *Queue) Dead(ctx context.Context, id int64, queue string, cause error) error {
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	_, err := q.DB.ExecContext(ctx,
		`UPDATE jobs SET status = 'dead', last_error = $2, updated_at = NOW() WHERE id = $1`,
		id, errText)
	if err == nil {
		telemetry.JobsDead.WithLabelValues(queue).Inc()
	}
	return err
}

// Depth reports the number of pending jobs in a queue.
func (q *Queue) Depth(ctx context.Context, queue string) (int, error) {
	var n int
	err := q.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE queue = $1 AND status = 'pending'`, queue).Scan(&n)
	return n, err
}

// ReapStuck returns running jobs older than the given age to pending so a
// crashed worker's claims are eventually retried.
func (q *Queue) ReapStuck(ctx context.Context, age time.Duration) (int64, error) {
	res, err := q.DB.ExecContext(ctx, `
        UPDATE jobs SET status = 'pending', updated_at = NOW()
        WHERE status = 'running' AND updated_at < NOW() - $1 * INTERVAL '1 second'`,
		age.Seconds())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
