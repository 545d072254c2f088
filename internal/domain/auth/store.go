package auth

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"neon/internal/platform/querier"
)

// Store keeps per-tenant permission overrides as a single JSON document.
type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) LoadOverrides(ctx context.Context, tenantID string) (Overrides, error) {
	var raw []byte
	err := s.DB.QueryRow(ctx, `
    SELECT overrides_json
    FROM permission_overrides
    WHERE tenant_id = $1
  `, tenantID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Overrides{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := Overrides{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveOverrides(ctx context.Context, tenantID string, overrides Overrides) error {
	payload, err := json.Marshal(overrides)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO permission_overrides (tenant_id, overrides_json, updated_at)
    VALUES ($1,$2,now())
    ON CONFLICT (tenant_id) DO UPDATE SET overrides_json = EXCLUDED.overrides_json, updated_at = now()
  `, tenantID, payload)
	return err
}
