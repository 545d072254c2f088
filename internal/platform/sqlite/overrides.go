package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"neon/internal/domain/auth"
)

var _ auth.OverrideStore = (*Store)(nil)

func (s *Store) LoadOverrides(ctx context.Context, tenantID string) (auth.Overrides, error) {
	var raw string
	err := s.DB.GetContext(ctx, &raw, `SELECT overrides_json FROM permission_overrides WHERE tenant_id = ?`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Overrides{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := auth.Overrides{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveOverrides(ctx context.Context, tenantID string, overrides auth.Overrides) error {
	payload, err := json.Marshal(overrides)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
    INSERT INTO permission_overrides (tenant_id, overrides_json, updated_at)
    VALUES (?,?,?)
    ON CONFLICT (tenant_id) DO UPDATE SET overrides_json = excluded.overrides_json, updated_at = excluded.updated_at
  `, tenantID, string(payload), s.now())
	return err
}
