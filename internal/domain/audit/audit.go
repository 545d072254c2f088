package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"neon/internal/platform/querier"
)

type Event struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"-"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	ActorUser  string
}

// Sink persists audit events.
type Sink interface {
	InsertEvent(ctx context.Context, evt Event) error
	ListEvents(ctx context.Context, tenantID string, filter Filter, limit, offset int) ([]Event, error)
}

type Service struct {
	Sink Sink
	Now  func() time.Time
}

func New(sink Sink) *Service {
	return &Service{Sink: sink, Now: time.Now}
}

// Record stores one mutation. before and after are marshalled as JSON when
// non-nil.
func (s *Service) Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error {
	evt := Event{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  requestID,
		IP:         ip,
		CreatedAt:  s.Now().UTC(),
	}
	var err error
	if evt.Before, err = marshalOptional(before); err != nil {
		return err
	}
	if evt.After, err = marshalOptional(after); err != nil {
		return err
	}
	return s.Sink.InsertEvent(ctx, evt)
}

func (s *Service) List(ctx context.Context, tenantID string, filter Filter, limit, offset int) ([]Event, error) {
	return s.Sink.ListEvents(ctx, tenantID, filter, limit, offset)
}

func marshalOptional(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return payload, nil
}

// Store is the Postgres sink.
type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) InsertEvent(ctx context.Context, evt Event) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_events (id, tenant_id, actor_user_id, action, entity_type, entity_id, before_json, after_json, request_id, ip, created_at)
    VALUES ($1,$2,NULLIF($3,'')::uuid,$4,$5,$6,$7,$8,$9,$10,$11)
  `, evt.ID, evt.TenantID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, []byte(evt.Before), []byte(evt.After), evt.RequestID, evt.IP, evt.CreatedAt)
	return err
}

func (s *Store) ListEvents(ctx context.Context, tenantID string, filter Filter, limit, offset int) ([]Event, error) {
	query, args := buildBaseQuery(`SELECT id::text, COALESCE(actor_user_id::text, ''), action, entity_type, entity_id, request_id, ip, created_at, before_json, after_json`, tenantID, filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		evt := Event{TenantID: tenantID}
		var before, after []byte
		if err := rows.Scan(&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.IP, &evt.CreatedAt, &before, &after); err != nil {
			return nil, err
		}
		evt.Before, evt.After = before, after
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildBaseQuery(prefix, tenantID string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE tenant_id = $1"
	args := []any{tenantID}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", len(args)+1)
		args = append(args, filter.EntityType)
	}
	if filter.ActorUser != "" {
		query += fmt.Sprintf(" AND actor_user_id::text = $%d", len(args)+1)
		args = append(args, filter.ActorUser)
	}
	return query, args
}
