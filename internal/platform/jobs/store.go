package jobs

import (
	"context"

	"neon/internal/platform/querier"
)

// PGRunLog writes job runs and lists tenants from Postgres.
type PGRunLog struct {
	DB querier.Querier
}

func NewPGRunLog(db querier.Querier) *PGRunLog {
	return &PGRunLog{DB: db}
}

func (s *PGRunLog) StartRun(ctx context.Context, tenantID, jobType string) (string, error) {
	var runID string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (tenant_id, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id::text
  `, tenantID, jobType, StatusRunning).Scan(&runID)
	return runID, err
}

func (s *PGRunLog) FinishRun(ctx context.Context, runID, status string, details []byte) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id::text = $3
  `, status, details, runID)
	return err
}

func (s *PGRunLog) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT id::text FROM tenants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
