package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"neon/internal/domain/notifications"
)

var _ notifications.StoreAPI = (*Store)(nil)

func (s *Store) CreateNotification(ctx context.Context, n notifications.Notification) error {
	_, err := s.DB.ExecContext(ctx, `
    INSERT INTO notifications (id, tenant_id, user_id, type, title, body, created_at)
    VALUES (?,?,?,?,?,?,?)
  `, n.ID, n.TenantID, n.UserID, n.Type, n.Title, n.Body, formatTS(n.CreatedAt))
	return err
}

func (s *Store) UserEmail(ctx context.Context, tenantID, userID string) (string, error) {
	var email string
	err := s.DB.GetContext(ctx, &email, `SELECT email FROM employees WHERE tenant_id = ? AND user_id = ?`, tenantID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return email, err
}

func (s *Store) ListNotifications(ctx context.Context, tenantID, userID string, limit, offset int) ([]notifications.Notification, error) {
	var rows []struct {
		ID        string         `db:"id"`
		Type      string         `db:"type"`
		Title     string         `db:"title"`
		Body      string         `db:"body"`
		ReadAt    sql.NullString `db:"read_at"`
		CreatedAt string         `db:"created_at"`
	}
	if err := s.DB.SelectContext(ctx, &rows, `
    SELECT id, type, title, body, read_at, created_at
    FROM notifications
    WHERE tenant_id = ? AND user_id = ?
    ORDER BY created_at DESC
    LIMIT ? OFFSET ?
  `, tenantID, userID, limit, offset); err != nil {
		return nil, err
	}
	out := make([]notifications.Notification, 0, len(rows))
	for _, row := range rows {
		n := notifications.Notification{ID: row.ID, TenantID: tenantID, UserID: userID, Type: row.Type, Title: row.Title, Body: row.Body}
		var err error
		if n.CreatedAt, err = parseTS(row.CreatedAt); err != nil {
			return nil, err
		}
		if n.ReadAt, err = parseNullTS(row.ReadAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) CountNotifications(ctx context.Context, tenantID, userID string) (int, error) {
	var total int
	err := s.DB.GetContext(ctx, &total, `SELECT COUNT(1) FROM notifications WHERE tenant_id = ? AND user_id = ?`, tenantID, userID)
	return total, err
}

func (s *Store) MarkRead(ctx context.Context, tenantID, userID, notificationID string, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
    UPDATE notifications SET read_at = COALESCE(read_at, ?)
    WHERE tenant_id = ? AND user_id = ? AND id = ?
  `, formatTS(at), tenantID, userID, notificationID)
	return expectRow(res, err, notifications.ErrNotFound)
}
