package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"neon/internal/domain/core"
)

var _ core.Directory = (*Store)(nil)

type employeeRow struct {
	ID                 string `db:"id"`
	UserID             string `db:"user_id"`
	Name               string `db:"name"`
	Email              string `db:"email"`
	ReportingManagerID string `db:"reporting_manager_id"`
	HierarchyLevel     int    `db:"hierarchy_level"`
	Status             string `db:"status"`
	CreatedAt          string `db:"created_at"`
}

func (r employeeRow) toDomain() (core.Employee, error) {
	created, err := parseTS(r.CreatedAt)
	if err != nil {
		return core.Employee{}, err
	}
	return core.Employee{
		ID:                 r.ID,
		UserID:             r.UserID,
		Name:               r.Name,
		Email:              r.Email,
		ReportingManagerID: r.ReportingManagerID,
		HierarchyLevel:     r.HierarchyLevel,
		Status:             r.Status,
		CreatedAt:          created,
	}, nil
}

const employeeColumns = `id, user_id, name, email, reporting_manager_id, hierarchy_level, status, created_at`

func (s *Store) getEmployee(ctx context.Context, query string, args ...any) (core.Employee, error) {
	var row employeeRow
	err := s.DB.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Employee{}, core.ErrEmployeeNotFound
	}
	if err != nil {
		return core.Employee{}, err
	}
	return row.toDomain()
}

func (s *Store) selectEmployees(ctx context.Context, query string, args ...any) ([]core.Employee, error) {
	var rows []employeeRow
	if err := s.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]core.Employee, 0, len(rows))
	for _, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) GetEmployee(ctx context.Context, tenantID, employeeID string) (core.Employee, error) {
	return s.getEmployee(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = ? AND id = ?
  `, tenantID, employeeID)
}

func (s *Store) EmployeeByUserID(ctx context.Context, tenantID, userID string) (core.Employee, error) {
	if userID == "" {
		return core.Employee{}, core.ErrEmployeeNotFound
	}
	return s.getEmployee(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = ? AND user_id = ?
  `, tenantID, userID)
}

func (s *Store) InReportingLine(ctx context.Context, tenantID, managerID, employeeID string) (bool, error) {
	if managerID == "" || employeeID == "" || managerID == employeeID {
		return false, nil
	}
	var count int
	err := s.DB.GetContext(ctx, &count, `
    WITH RECURSIVE chain(id, reporting_manager_id, depth) AS (
      SELECT id, reporting_manager_id, 1
      FROM employees
      WHERE tenant_id = ?1 AND id = ?3
      UNION ALL
      SELECT e.id, e.reporting_manager_id, c.depth + 1
      FROM employees e
      JOIN chain c ON e.id = c.reporting_manager_id
      WHERE e.tenant_id = ?1 AND c.depth < 64
    )
    SELECT COUNT(1) FROM chain WHERE reporting_manager_id = ?2
  `, tenantID, managerID, employeeID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ReportingLine(ctx context.Context, tenantID, managerID string) ([]core.Employee, error) {
	return s.selectEmployees(ctx, `
    WITH RECURSIVE reports(id, depth) AS (
      SELECT id, 1
      FROM employees
      WHERE tenant_id = ?1 AND reporting_manager_id = ?2
      UNION ALL
      SELECT e.id, r.depth + 1
      FROM employees e
      JOIN reports r ON e.reporting_manager_id = r.id
      WHERE e.tenant_id = ?1 AND r.depth < 64
    )
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = ?1 AND id IN (SELECT id FROM reports)
    ORDER BY name
  `, tenantID, managerID)
}

func (s *Store) ActiveEmployees(ctx context.Context, tenantID string) ([]core.Employee, error) {
	return s.selectEmployees(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = ? AND status = ?
    ORDER BY name
  `, tenantID, core.EmployeeActive)
}

// CreateEmployee inserts an employee record, generating an id when e.ID is
// empty. It backs the development seed and tests.
func (s *Store) CreateEmployee(ctx context.Context, tenantID string, e core.Employee) (core.Employee, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = core.EmployeeActive
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.Now()
	}
	_, err := s.DB.ExecContext(ctx, `
    INSERT INTO employees (id, tenant_id, user_id, name, email, reporting_manager_id, hierarchy_level, status, created_at)
    VALUES (?,?,?,?,?,?,?,?,?)
  `, e.ID, tenantID, e.UserID, e.Name, e.Email, e.ReportingManagerID, e.HierarchyLevel, e.Status, formatTS(e.CreatedAt))
	return e, err
}
