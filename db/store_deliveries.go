package db

import (
	"context"
	"database/sql"
)

// CreateDelivery records a pending dispatch attempt. Each retry creates a new
// row so the attempt history stays auditable.
func (s *Store) CreateDelivery(ctx context.Context, d *Delivery) error {
	if d.ID == "" {
		d.ID = newID()
	}
	if d.Status == "" {
		d.Status = DeliveryPending
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO deliveries (id, clip_id, user_id, recipient_id, method, status)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		d.ID, d.ClipID, d.UserID, d.RecipientID, string(d.Method), string(d.Status))
	return err
}

// MarkDeliverySent finalizes a successful attempt.
func (s *Store) MarkDeliverySent(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE deliveries SET status=$1, sent_at=NOW() WHERE id=$2`, string(DeliverySent), id)
	return err
}

// MarkDeliveryFailed records the failure reason; the clip stays ready so a
// later attempt can succeed.
func (s *Store) MarkDeliveryFailed(ctx context.Context, id, errText string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE deliveries SET status=$1, error=$2 WHERE id=$3`, string(DeliveryFailed), errText, id)
	return err
}

// ListDeliveriesByStatus returns up to limit attempts in the given status,
// oldest first.
func (s *Store) ListDeliveriesByStatus(ctx context.Context, status DeliveryStatus, limit int) ([]Delivery, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, clip_id, user_id, recipient_id, method, status, sent_at, error FROM deliveries
		 WHERE status=$1 ORDER BY created_at ASC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Delivery
	for rows.Next() {
		var (
			d       Delivery
			sentAt  sql.NullTime
			errText sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.ClipID, &d.UserID, &d.RecipientID, &d.Method, &d.Status, &sentAt, &errText); err != nil {
			return nil, err
		}
		d.SentAt = sentAt.Time
		d.Error = errText.String
		out = append(out, d)
	}
	return out, rows.Err()
}
