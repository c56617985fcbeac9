package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the concrete repository layer over Postgres. The pipeline services
// consume it through narrow per-service interfaces, so tests can substitute
// in-memory fakes without a database.
type Store struct {
	DB *sql.DB
}

func NewStore(dbc *sql.DB) *Store { return &Store{DB: dbc} }

// nullStr maps empty strings to NULL for optional text columns.
func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime maps zero times to NULL.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func newID() string { return uuid.New().String() }

// GetPreferences returns the user's delivery preferences, applying defaults
// for a missing row or unset columns. A missing user is not an error.
func (s *Store) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	prefs := DefaultPreferences(userID)
	var (
		method, channelID, start, end, types sql.NullString
		quietEnabled                         sql.NullBool
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT delivery_method, channel_id, quiet_hours_enabled, quiet_hours_start, quiet_hours_end, preferred_clip_types
		 FROM users WHERE id=$1`, userID).
		Scan(&method, &channelID, &quietEnabled, &start, &end, &types)
	if err == sql.ErrNoRows {
		return prefs, nil
	}
	if err != nil {
		return prefs, err
	}
	if method.Valid && method.String != "" {
		prefs.DeliveryMethod = DeliveryMethod(method.String)
	}
	prefs.ChannelID = channelID.String
	prefs.QuietHoursEnabled = quietEnabled.Valid && quietEnabled.Bool
	prefs.QuietHoursStart = start.String
	prefs.QuietHoursEnd = end.String
	if types.Valid && types.String != "" {
		prefs.PreferredClipTypes = strings.Split(types.String, ",")
	}
	return prefs, nil
}

// UpsertPreferences stores the user's delivery preferences, creating the user
// row if needed.
func (s *Store) UpsertPreferences(ctx context.Context, p Preferences) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, delivery_method, channel_id, quiet_hours_enabled, quiet_hours_start, quiet_hours_end, preferred_clip_types, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   delivery_method=EXCLUDED.delivery_method,
		   channel_id=EXCLUDED.channel_id,
		   quiet_hours_enabled=EXCLUDED.quiet_hours_enabled,
		   quiet_hours_start=EXCLUDED.quiet_hours_start,
		   quiet_hours_end=EXCLUDED.quiet_hours_end,
		   preferred_clip_types=EXCLUDED.preferred_clip_types,
		   updated_at=NOW()`,
		p.UserID, string(p.DeliveryMethod), nullStr(p.ChannelID), p.QuietHoursEnabled,
		nullStr(p.QuietHoursStart), nullStr(p.QuietHoursEnd), strings.Join(p.PreferredClipTypes, ","))
	return err
}
