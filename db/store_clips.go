package db

import (
	"context"
	"database/sql"
	"fmt"
)

// ClipUpdate carries the media fields a status poll or webhook may fill in.
// Empty/zero fields leave the stored value unchanged.
type ClipUpdate struct {
	Title        string
	ThumbnailURL string
	VideoURL     string
	Duration     int
}

// CreateClip inserts a clip keyed on allstar_clip_id. Re-running a request
// job that already created the clip is a no-op (created=false).
func (s *Store) CreateClip(ctx context.Context, c *Clip) (created bool, err error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.Status == "" {
		c.Status = ClipRequested
	}
	if c.Type == "" {
		c.Type = "highlight"
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO clips (id, match_id, user_id, allstar_clip_id, type, title, thumbnail_url, video_url, duration_seconds, status, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		 ON CONFLICT (allstar_clip_id) DO NOTHING`,
		c.ID, c.MatchID, c.UserID, c.AllstarClipID, c.Type, nullStr(c.Title),
		nullStr(c.ThumbnailURL), nullStr(c.VideoURL), c.Duration, string(c.Status))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetClip returns the clip by id, or nil when absent.
func (s *Store) GetClip(ctx context.Context, id string) (*Clip, error) {
	return s.scanClip(s.DB.QueryRowContext(ctx, selectClip+` WHERE id=$1`, id))
}

// FindClipByAllstarID looks up a clip by the upstream id, or nil. The webhook
// handler resolves incoming events through this.
func (s *Store) FindClipByAllstarID(ctx context.Context, allstarClipID string) (*Clip, error) {
	return s.scanClip(s.DB.QueryRowContext(ctx, selectClip+` WHERE allstar_clip_id=$1`, allstarClipID))
}

// CountClipsByMatch returns how many clips exist for a match, for the
// per-match cap check.
func (s *Store) CountClipsByMatch(ctx context.Context, matchID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM clips WHERE match_id=$1`, matchID).Scan(&n)
	return n, err
}

// ListClipsByStatus returns up to limit clips in any of the given statuses,
// oldest request first.
func (s *Store) ListClipsByStatus(ctx context.Context, limit int, statuses ...ClipStatus) ([]Clip, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	ss := make([]string, len(statuses))
	for i, st := range statuses {
		ss[i] = string(st)
	}
	rows, err := s.DB.QueryContext(ctx,
		selectClip+` WHERE status = ANY($1) ORDER BY requested_at ASC LIMIT $2`, ss, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Clip
	for rows.Next() {
		c, err := s.scanClipRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// AdvanceClipStatus moves a clip forward, applying any media fields the
// upstream reported. A regression or a transition out of a terminal state is
// rejected; re-applying the current status only merges the media fields.
// ready_at/delivered_at are stamped on first entry into those states.
func (s *Store) AdvanceClipStatus(ctx context.Context, id string, next ClipStatus, upd ClipUpdate) error {
	c, err := s.GetClip(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("clip %s not found", id)
	}
	if !c.Status.CanTransitionTo(next) {
		return fmt.Errorf("clip %s: illegal transition %s -> %s", id, c.Status, next)
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE clips SET status=$1,
		   title=COALESCE(NULLIF($2,''), title),
		   thumbnail_url=COALESCE(NULLIF($3,''), thumbnail_url),
		   video_url=COALESCE(NULLIF($4,''), video_url),
		   duration_seconds=CASE WHEN $5 > 0 THEN $5 ELSE duration_seconds END,
		   ready_at=CASE WHEN $1='ready' AND ready_at IS NULL THEN NOW() ELSE ready_at END,
		   delivered_at=CASE WHEN $1='delivered' AND delivered_at IS NULL THEN NOW() ELSE delivered_at END,
		   updated_at=NOW()
		 WHERE id=$6 AND status=$7`,
		string(next), upd.Title, upd.ThumbnailURL, upd.VideoURL, upd.Duration, id, string(c.Status))
	return err
}

// CountClipsByStatusAll aggregates clip counts per status for /status.
func (s *Store) CountClipsByStatusAll(ctx context.Context) (map[ClipStatus]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(1) FROM clips GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[ClipStatus]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[ClipStatus(st)] = n
	}
	return out, rows.Err()
}

const selectClip = `SELECT id, match_id, user_id, allstar_clip_id, type, title, thumbnail_url, video_url, duration_seconds, status, requested_at, ready_at, delivered_at FROM clips`

func (s *Store) scanClip(row rowScanner) (*Clip, error) {
	c, err := s.scanClipRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *Store) scanClipRows(row rowScanner) (*Clip, error) {
	var (
		c                      Clip
		title, thumb, video    sql.NullString
		duration               sql.NullInt64
		requested, ready, delv sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.MatchID, &c.UserID, &c.AllstarClipID, &c.Type,
		&title, &thumb, &video, &duration, &c.Status, &requested, &ready, &delv); err != nil {
		return nil, err
	}
	c.Title = title.String
	c.ThumbnailURL = thumb.String
	c.VideoURL = video.String
	c.Duration = int(duration.Int64)
	c.RequestedAt = requested.Time
	c.ReadyAt = ready.Time
	c.DeliveredAt = delv.Time
	return &c, nil
}
