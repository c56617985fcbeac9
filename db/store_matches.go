package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// CreateMatch inserts a match keyed on (platform, platform_match_id).
// A second insert for the same key is a no-op and reports created=false,
// making retried detection cycles idempotent.
func (s *Store) CreateMatch(ctx context.Context, m *Match) (created bool, err error) {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Status == "" {
		m.Status = MatchDetected
	}
	var meta []byte
	if m.Metadata != nil {
		if meta, err = json.Marshal(m.Metadata); err != nil {
			return false, fmt.Errorf("marshal match metadata: %w", err)
		}
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO matches (id, user_id, platform, game_title, platform_match_id, status, started_at, ended_at, metadata, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
		 ON CONFLICT (platform, platform_match_id) DO NOTHING`,
		m.ID, m.UserID, string(m.Platform), string(m.GameTitle), m.PlatformMatchID,
		string(m.Status), nullTime(m.StartedAt), nullTime(m.EndedAt), meta)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetMatch returns the match by id, or nil when absent.
func (s *Store) GetMatch(ctx context.Context, id string) (*Match, error) {
	return s.scanMatch(s.DB.QueryRowContext(ctx, selectMatch+` WHERE id=$1`, id))
}

// FindMatchByPlatformID looks up a match by its dedupe key, or nil.
func (s *Store) FindMatchByPlatformID(ctx context.Context, platform Platform, platformMatchID string) (*Match, error) {
	return s.scanMatch(s.DB.QueryRowContext(ctx,
		selectMatch+` WHERE platform=$1 AND platform_match_id=$2`, string(platform), platformMatchID))
}

// ListMatchesByStatus returns up to limit matches in the given status,
// oldest first so the backlog drains in order.
func (s *Store) ListMatchesByStatus(ctx context.Context, status MatchStatus, limit int) ([]Match, error) {
	rows, err := s.DB.QueryContext(ctx,
		selectMatch+` WHERE status=$1 ORDER BY created_at ASC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		m, err := s.scanMatchRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// AdvanceMatchStatus moves a match forward through its lifecycle. Regressions
// and transitions out of a terminal state are rejected; re-applying the
// current status is a no-op so retried workers stay idempotent.
func (s *Store) AdvanceMatchStatus(ctx context.Context, id string, next MatchStatus) error {
	m, err := s.GetMatch(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("match %s not found", id)
	}
	if !m.Status.CanTransitionTo(next) {
		return fmt.Errorf("match %s: illegal transition %s -> %s", id, m.Status, next)
	}
	if m.Status == next {
		return nil
	}
	// Guard on the observed status so a concurrent advance can't regress.
	_, err = s.DB.ExecContext(ctx,
		`UPDATE matches SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`,
		string(next), id, string(m.Status))
	return err
}

const selectMatch = `SELECT id, user_id, platform, game_title, platform_match_id, status, started_at, ended_at, metadata FROM matches`

func (s *Store) scanMatch(row rowScanner) (*Match, error) {
	m, err := s.scanMatchRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (s *Store) scanMatchRows(row rowScanner) (*Match, error) {
	var (
		m            Match
		started, end sql.NullTime
		meta         []byte
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.Platform, &m.GameTitle,
		&m.PlatformMatchID, &m.Status, &started, &end, &meta); err != nil {
		return nil, err
	}
	m.StartedAt = started.Time
	m.EndedAt = end.Time
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal match metadata: %w", err)
		}
	}
	return &m, nil
}
