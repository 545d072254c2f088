package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateNotification(ctx context.Context, n Notification) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (id, tenant_id, user_id, type, title, body, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, n.ID, n.TenantID, n.UserID, n.Type, n.Title, n.Body, n.CreatedAt)
	return err
}

// UserEmail reads the address from the employee record linked to the user.
func (s *Store) UserEmail(ctx context.Context, tenantID, userID string) (string, error) {
	var email string
	err := s.DB.QueryRow(ctx, `
    SELECT email FROM employees WHERE tenant_id = $1 AND user_id::text = $2
  `, tenantID, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return email, err
}

func (s *Store) ListNotifications(ctx context.Context, tenantID, userID string, limit, offset int) ([]Notification, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, type, title, body, read_at, created_at
    FROM notifications
    WHERE tenant_id = $1 AND user_id::text = $2
    ORDER BY created_at DESC
    LIMIT $3 OFFSET $4
  `, tenantID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n := Notification{TenantID: tenantID, UserID: userID}
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountNotifications(ctx context.Context, tenantID, userID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM notifications WHERE tenant_id = $1 AND user_id::text = $2", tenantID, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkRead(ctx context.Context, tenantID, userID, notificationID string, at time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = COALESCE(read_at, $4)
    WHERE tenant_id = $1 AND user_id::text = $2 AND id::text = $3
  `, tenantID, userID, notificationID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
