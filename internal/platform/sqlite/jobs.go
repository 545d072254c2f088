package sqlite

import (
	"context"

	"github.com/google/uuid"

	"neon/internal/platform/jobs"
)

var (
	_ jobs.RunLog       = (*Store)(nil)
	_ jobs.TenantLister = (*Store)(nil)
)

func (s *Store) StartRun(ctx context.Context, tenantID, jobType string) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx, `
    INSERT INTO job_runs (id, tenant_id, job_type, status, started_at)
    VALUES (?,?,?,?,?)
  `, id, tenantID, jobType, jobs.StatusRunning, s.now())
	return id, err
}

func (s *Store) FinishRun(ctx context.Context, runID, status string, details []byte) error {
	_, err := s.DB.ExecContext(ctx, `
    UPDATE job_runs SET status = ?, details_json = ?, completed_at = ?
    WHERE id = ?
  `, status, nullJSON(details), s.now(), runID)
	return err
}
