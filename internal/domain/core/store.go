package core

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"neon/internal/platform/querier"
)

var ErrEmployeeNotFound = errors.New("employee not found")

// Directory is the read side of the employee graph the leave workflow needs.
type Directory interface {
	GetEmployee(ctx context.Context, tenantID, employeeID string) (Employee, error)
	EmployeeByUserID(ctx context.Context, tenantID, userID string) (Employee, error)
	// InReportingLine reports whether employeeID reports to managerID directly
	// or through any number of intermediate managers.
	InReportingLine(ctx context.Context, tenantID, managerID, employeeID string) (bool, error)
	ReportingLine(ctx context.Context, tenantID, managerID string) ([]Employee, error)
	ActiveEmployees(ctx context.Context, tenantID string) ([]Employee, error)
}

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

const employeeColumns = `id, COALESCE(user_id::text, ''), name, email, COALESCE(reporting_manager_id::text, ''), hierarchy_level, status, created_at`

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.UserID, &e.Name, &e.Email, &e.ReportingManagerID, &e.HierarchyLevel, &e.Status, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, err
}

func (s *Store) GetEmployee(ctx context.Context, tenantID, employeeID string) (Employee, error) {
	return scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, employeeID))
}

func (s *Store) EmployeeByUserID(ctx context.Context, tenantID, userID string) (Employee, error) {
	return scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1 AND user_id = $2
  `, tenantID, userID))
}

func (s *Store) InReportingLine(ctx context.Context, tenantID, managerID, employeeID string) (bool, error) {
	if managerID == "" || employeeID == "" || managerID == employeeID {
		return false, nil
	}
	var count int
	err := s.DB.QueryRow(ctx, `
    WITH RECURSIVE chain AS (
      SELECT id, reporting_manager_id, 1 AS depth
      FROM employees
      WHERE tenant_id = $1 AND id = $3
      UNION ALL
      SELECT e.id, e.reporting_manager_id, c.depth + 1
      FROM employees e
      JOIN chain c ON e.id = c.reporting_manager_id
      WHERE e.tenant_id = $1 AND c.depth < 64
    )
    SELECT COUNT(1) FROM chain WHERE reporting_manager_id = $2
  `, tenantID, managerID, employeeID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ReportingLine(ctx context.Context, tenantID, managerID string) ([]Employee, error) {
	rows, err := s.DB.Query(ctx, `
    WITH RECURSIVE reports AS (
      SELECT id, 1 AS depth
      FROM employees
      WHERE tenant_id = $1 AND reporting_manager_id = $2
      UNION ALL
      SELECT e.id, r.depth + 1
      FROM employees e
      JOIN reports r ON e.reporting_manager_id = r.id
      WHERE e.tenant_id = $1 AND r.depth < 64
    )
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1 AND id IN (SELECT id FROM reports)
    ORDER BY name
  `, tenantID, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmployees(rows)
}

func (s *Store) ActiveEmployees(ctx context.Context, tenantID string) ([]Employee, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1 AND status = $2
    ORDER BY name
  `, tenantID, EmployeeActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmployees(rows)
}

func collectEmployees(rows pgx.Rows) ([]Employee, error) {
	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
