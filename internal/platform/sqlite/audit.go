package sqlite

import (
	"context"
	"database/sql"

	"neon/internal/domain/audit"
)

var _ audit.Sink = (*Store)(nil)

func (s *Store) InsertEvent(ctx context.Context, evt audit.Event) error {
	_, err := s.DB.ExecContext(ctx, `
    INSERT INTO audit_events (id, tenant_id, actor_user_id, action, entity_type, entity_id, before_json, after_json, request_id, ip, created_at)
    VALUES (?,?,?,?,?,?,?,?,?,?,?)
  `, evt.ID, evt.TenantID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID,
		nullJSON(evt.Before), nullJSON(evt.After), evt.RequestID, evt.IP, formatTS(evt.CreatedAt))
	return err
}

func (s *Store) ListEvents(ctx context.Context, tenantID string, filter audit.Filter, limit, offset int) ([]audit.Event, error) {
	query := `
    SELECT id, actor_user_id, action, entity_type, entity_id, request_id, ip, created_at, before_json, after_json
    FROM audit_events
    WHERE tenant_id = ?`
	args := []any{tenantID}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, filter.EntityType)
	}
	if filter.ActorUser != "" {
		query += " AND actor_user_id = ?"
		args = append(args, filter.ActorUser)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []struct {
		ID         string         `db:"id"`
		ActorID    string         `db:"actor_user_id"`
		Action     string         `db:"action"`
		EntityType string         `db:"entity_type"`
		EntityID   string         `db:"entity_id"`
		RequestID  string         `db:"request_id"`
		IP         string         `db:"ip"`
		CreatedAt  string         `db:"created_at"`
		Before     sql.NullString `db:"before_json"`
		After      sql.NullString `db:"after_json"`
	}
	if err := s.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]audit.Event, 0, len(rows))
	for _, row := range rows {
		created, err := parseTS(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		evt := audit.Event{
			ID: row.ID, TenantID: tenantID, ActorID: row.ActorID, Action: row.Action,
			EntityType: row.EntityType, EntityID: row.EntityID, RequestID: row.RequestID,
			IP: row.IP, CreatedAt: created,
		}
		if row.Before.Valid {
			evt.Before = []byte(row.Before.String)
		}
		if row.After.Valid {
			evt.After = []byte(row.After.String)
		}
		out = append(out, evt)
	}
	return out, nil
}

func nullJSON(raw []byte) sql.NullString {
	return sql.NullString{String: string(raw), Valid: len(raw) > 0}
}
