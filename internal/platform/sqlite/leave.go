package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"neon/internal/domain/leave"
)

var _ leave.StoreAPI = (*Store)(nil)

type typeRow struct {
	Key               string `db:"key"`
	Name              string `db:"name"`
	Description       string `db:"description"`
	AnnualQuota       int    `db:"annual_quota"`
	IsPaid            bool   `db:"is_paid"`
	AccrualRate       string `db:"accrual_rate"`
	MaxContinuousDays int    `db:"max_continuous_days"`
	EncashmentAllowed bool   `db:"encashment_allowed"`
	Color             string `db:"color"`
	CreatedAt         string `db:"created_at"`
}

func (r typeRow) toDomain() (leave.LeaveType, error) {
	created, err := parseTS(r.CreatedAt)
	if err != nil {
		return leave.LeaveType{}, err
	}
	return leave.LeaveType{
		Key:               r.Key,
		Name:              r.Name,
		Description:       r.Description,
		AnnualQuota:       r.AnnualQuota,
		IsPaid:            r.IsPaid,
		AccrualRate:       leave.AccrualRate(r.AccrualRate),
		MaxContinuousDays: r.MaxContinuousDays,
		EncashmentAllowed: r.EncashmentAllowed,
		Color:             r.Color,
		CreatedAt:         created,
	}, nil
}

const typeColumns = `key, name, description, annual_quota, is_paid, accrual_rate, max_continuous_days, encashment_allowed, color, created_at`

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique)
}

func (s *Store) ListTypes(ctx context.Context, tenantID string) ([]leave.LeaveType, error) {
	var rows []typeRow
	if err := s.DB.SelectContext(ctx, &rows, `
    SELECT `+typeColumns+`
    FROM leave_types
    WHERE tenant_id = ?
    ORDER BY name
  `, tenantID); err != nil {
		return nil, err
	}
	out := make([]leave.LeaveType, 0, len(rows))
	for _, row := range rows {
		t, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) GetType(ctx context.Context, tenantID, key string) (leave.LeaveType, error) {
	var row typeRow
	err := s.DB.GetContext(ctx, &row, `
    SELECT `+typeColumns+`
    FROM leave_types
    WHERE tenant_id = ? AND key = ?
  `, tenantID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveType{}, leave.ErrNotFound
	}
	if err != nil {
		return leave.LeaveType{}, err
	}
	return row.toDomain()
}

func (s *Store) insertType(ctx context.Context, tenantID string, t leave.LeaveType, ignoreExisting bool) error {
	conflict := ""
	if ignoreExisting {
		conflict = " ON CONFLICT (tenant_id, key) DO NOTHING"
	}
	_, err := s.DB.ExecContext(ctx, `
    INSERT INTO leave_types (tenant_id, key, name, description, annual_quota, is_paid, accrual_rate, max_continuous_days, encashment_allowed, color, created_at)
    VALUES (?,?,?,?,?,?,?,?,?,?,?)`+conflict,
		tenantID, t.Key, t.Name, t.Description, t.AnnualQuota, t.IsPaid, string(t.AccrualRate), t.MaxContinuousDays, t.EncashmentAllowed, t.Color, s.now())
	if isUniqueViolation(err) {
		return leave.ErrDuplicateType
	}
	return err
}

func (s *Store) CreateType(ctx context.Context, tenantID string, t leave.LeaveType) error {
	return s.insertType(ctx, tenantID, t, false)
}

func (s *Store) EnsureTypes(ctx context.Context, tenantID string, types []leave.LeaveType) error {
	for _, t := range types {
		if err := s.insertType(ctx, tenantID, t, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpdateType(ctx context.Context, tenantID string, t leave.LeaveType) error {
	res, err := s.DB.ExecContext(ctx, `
    UPDATE leave_types
    SET name = ?, description = ?, annual_quota = ?, is_paid = ?, accrual_rate = ?,
        max_continuous_days = ?, encashment_allowed = ?, color = ?
    WHERE tenant_id = ? AND key = ?
  `, t.Name, t.Description, t.AnnualQuota, t.IsPaid, string(t.AccrualRate), t.MaxContinuousDays, t.EncashmentAllowed, t.Color, tenantID, t.Key)
	return expectRow(res, err, leave.ErrNotFound)
}

func (s *Store) DeleteType(ctx context.Context, tenantID, key string) error {
	var inUse bool
	if err := s.DB.GetContext(ctx, &inUse, `
    SELECT EXISTS (SELECT 1 FROM leave_requests WHERE tenant_id = ? AND leave_type_key = ?)
  `, tenantID, key); err != nil {
		return err
	}
	if inUse {
		return leave.ErrTypeInUse
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM leave_types WHERE tenant_id = ? AND key = ?`, tenantID, key)
	return expectRow(res, err, leave.ErrNotFound)
}

// expectRow turns a zero-row write into missing.
func expectRow(res sql.Result, err error, missing error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, tenantID, employeeID string, year int) (leave.Balance, error) {
	var rows []struct {
		Key       string          `db:"leave_type_key"`
		Remaining decimal.Decimal `db:"remaining"`
	}
	if err := s.DB.SelectContext(ctx, &rows, `
    SELECT leave_type_key, remaining
    FROM leave_balances
    WHERE tenant_id = ? AND employee_id = ? AND year = ?
  `, tenantID, employeeID, year); err != nil {
		return leave.Balance{}, err
	}
	b := leave.Balance{EmployeeID: employeeID, Year: year, Values: make(map[string]decimal.Decimal, len(rows))}
	for _, row := range rows {
		b.Values[row.Key] = row.Remaining
	}
	return b, nil
}

func (s *Store) AdjustBalance(ctx context.Context, tenantID string, adj leave.Adjustment) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if err := s.creditBalanceTx(ctx, tx, tenantID, adj.EmployeeID, adj.LeaveType, adj.Year, adj.Delta); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
    INSERT INTO leave_balance_adjustments (id, tenant_id, employee_id, year, leave_type_key, delta, reason, actor_user_id, created_at)
    VALUES (?,?,?,?,?,?,?,?,?)
  `, uuid.NewString(), tenantID, adj.EmployeeID, adj.Year, adj.LeaveType, adj.Delta, adj.Reason, adj.ActorID, s.now()); err != nil {
		return err
	}
	return tx.Commit()
}

// creditBalanceTx adds amount (negative to debit) to one balance line. The
// sum is taken in Go so the TEXT column keeps exact decimals.
func (s *Store) creditBalanceTx(ctx context.Context, tx *sqlx.Tx, tenantID, employeeID, leaveType string, year int, amount decimal.Decimal) error {
	current, err := remainingTx(ctx, tx, tenantID, employeeID, leaveType, year)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
    INSERT INTO leave_balances (tenant_id, employee_id, year, leave_type_key, remaining, updated_at)
    VALUES (?,?,?,?,?,?)
    ON CONFLICT (tenant_id, employee_id, year, leave_type_key)
    DO UPDATE SET remaining = excluded.remaining, updated_at = excluded.updated_at
  `, tenantID, employeeID, year, leaveType, current.Add(amount).String(), s.now())
	return err
}

func remainingTx(ctx context.Context, tx *sqlx.Tx, tenantID, employeeID, leaveType string, year int) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	err := tx.GetContext(ctx, &remaining, `
    SELECT remaining FROM leave_balances
    WHERE tenant_id = ? AND employee_id = ? AND year = ? AND leave_type_key = ?
  `, tenantID, employeeID, year, leaveType)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	return remaining, err
}

type requestRow struct {
	ID              string          `db:"id"`
	TenantID        string          `db:"tenant_id"`
	EmployeeID      string          `db:"employee_id"`
	UserID          string          `db:"user_id"`
	EmployeeName    string          `db:"employee_name"`
	LeaveType       string          `db:"leave_type_key"`
	StartDate       string          `db:"start_date"`
	EndDate         string          `db:"end_date"`
	IsHalfDay       bool            `db:"is_half_day"`
	DaysCount       decimal.Decimal `db:"days_count"`
	IsEmergency     bool            `db:"is_emergency"`
	IsLossOfPay     bool            `db:"is_loss_of_pay"`
	ReasonCategory  string          `db:"reason_category"`
	Reason          string          `db:"reason"`
	Attachments     string          `db:"attachments"`
	PolicyDetail    string          `db:"policy_detail"`
	Status          string          `db:"status"`
	ApproverID      string          `db:"approver_id"`
	RejectionReason string          `db:"rejection_reason"`
	ResolvedAt      sql.NullString  `db:"resolved_at"`
	CreatedAt       string          `db:"created_at"`
}

func (r requestRow) toDomain() (leave.LeaveRequest, error) {
	out := leave.LeaveRequest{
		ID:              r.ID,
		TenantID:        r.TenantID,
		EmployeeID:      r.EmployeeID,
		UserID:          r.UserID,
		EmployeeName:    r.EmployeeName,
		LeaveType:       r.LeaveType,
		IsHalfDay:       r.IsHalfDay,
		DaysCount:       r.DaysCount,
		IsEmergency:     r.IsEmergency,
		IsLossOfPay:     r.IsLossOfPay,
		ReasonCategory:  r.ReasonCategory,
		Reason:          r.Reason,
		Status:          leave.Status(r.Status),
		ApproverID:      r.ApproverID,
		RejectionReason: r.RejectionReason,
	}
	var err error
	if out.StartDate, err = time.Parse(dateLayout, r.StartDate); err != nil {
		return leave.LeaveRequest{}, err
	}
	if out.EndDate, err = time.Parse(dateLayout, r.EndDate); err != nil {
		return leave.LeaveRequest{}, err
	}
	if out.CreatedAt, err = parseTS(r.CreatedAt); err != nil {
		return leave.LeaveRequest{}, err
	}
	if out.ResolvedAt, err = parseNullTS(r.ResolvedAt); err != nil {
		return leave.LeaveRequest{}, err
	}
	if err := leave.DecodeStoredJSON([]byte(r.Attachments), []byte(r.PolicyDetail), &out); err != nil {
		return leave.LeaveRequest{}, err
	}
	return out, nil
}

const requestSelect = `
    SELECT r.id, r.tenant_id, r.employee_id, r.user_id, COALESCE(e.name, '') AS employee_name,
      r.leave_type_key, r.start_date, r.end_date, r.is_half_day, r.days_count, r.is_emergency, r.is_loss_of_pay,
      r.reason_category, r.reason, r.attachments, r.policy_detail, r.status, r.approver_id,
      r.rejection_reason, r.resolved_at, r.created_at
    FROM leave_requests r LEFT JOIN employees e ON e.id = r.employee_id`

func toRequests(rows []requestRow) ([]leave.LeaveRequest, error) {
	out := make([]leave.LeaveRequest, 0, len(rows))
	for _, row := range rows {
		r, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) CreateRequest(ctx context.Context, req leave.LeaveRequest) error {
	attachments, detail, err := leave.EncodeStoredJSON(req)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
    INSERT INTO leave_requests (id, tenant_id, employee_id, user_id, leave_type_key, start_date, end_date, is_half_day,
      days_count, is_emergency, is_loss_of_pay, reason_category, reason, attachments, policy_detail, status, created_at)
    VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
  `, req.ID, req.TenantID, req.EmployeeID, req.UserID, req.LeaveType,
		req.StartDate.Format(dateLayout), req.EndDate.Format(dateLayout), req.IsHalfDay,
		req.DaysCount.String(), req.IsEmergency, req.IsLossOfPay, req.ReasonCategory, req.Reason,
		string(attachments), string(detail), string(req.Status), formatTS(req.CreatedAt))
	return err
}

func (s *Store) GetRequest(ctx context.Context, tenantID, id string) (leave.LeaveRequest, error) {
	return getRequest(ctx, s.DB, tenantID, id)
}

func getRequest(ctx context.Context, q sqlx.QueryerContext, tenantID, id string) (leave.LeaveRequest, error) {
	var row requestRow
	err := sqlx.GetContext(ctx, q, &row, requestSelect+`
    WHERE r.tenant_id = ? AND r.id = ?`, tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveRequest{}, leave.ErrNotFound
	}
	if err != nil {
		return leave.LeaveRequest{}, err
	}
	return row.toDomain()
}

func (s *Store) ListRequestsByEmployee(ctx context.Context, tenantID, employeeID string, limit, offset int) ([]leave.LeaveRequest, int, error) {
	var total int
	if err := s.DB.GetContext(ctx, &total, `
    SELECT COUNT(1) FROM leave_requests WHERE tenant_id = ? AND employee_id = ?
  `, tenantID, employeeID); err != nil {
		return nil, 0, err
	}
	var rows []requestRow
	if err := s.DB.SelectContext(ctx, &rows, requestSelect+`
    WHERE r.tenant_id = ? AND r.employee_id = ?
    ORDER BY r.created_at DESC, r.id
    LIMIT ? OFFSET ?`, tenantID, employeeID, limit, offset); err != nil {
		return nil, 0, err
	}
	out, err := toRequests(rows)
	return out, total, err
}

// selectScoped runs query with an optional "AND r.employee_id IN (...)"
// filter spliced in at the %s marker.
func (s *Store) selectScoped(ctx context.Context, query string, employeeIDs []string, args ...any) ([]leave.LeaveRequest, error) {
	if employeeIDs != nil && len(employeeIDs) == 0 {
		return []leave.LeaveRequest{}, nil
	}
	scope := ""
	if employeeIDs != nil {
		scope = " AND r.employee_id IN (?)"
		args = append(args[:1:1], append([]any{employeeIDs}, args[1:]...)...)
	}
	expanded, expandedArgs, err := sqlx.In(strings.Replace(query, "%s", scope, 1), args...)
	if err != nil {
		return nil, err
	}
	var rows []requestRow
	if err := s.DB.SelectContext(ctx, &rows, s.DB.Rebind(expanded), expandedArgs...); err != nil {
		return nil, err
	}
	return toRequests(rows)
}

func (s *Store) ListPending(ctx context.Context, tenantID string, employeeIDs []string) ([]leave.LeaveRequest, error) {
	return s.selectScoped(ctx, requestSelect+`
    WHERE r.tenant_id = ?%s AND r.status = 'Pending'
    ORDER BY r.created_at, r.id`, employeeIDs, tenantID)
}

func (s *Store) ListApprovedBetween(ctx context.Context, tenantID string, employeeIDs []string, from, to time.Time) ([]leave.LeaveRequest, error) {
	return s.selectScoped(ctx, requestSelect+`
    WHERE r.tenant_id = ?%s AND r.status = 'Approved'
      AND r.start_date <= ? AND r.end_date >= ?
    ORDER BY r.start_date, r.id`, employeeIDs, tenantID, to.Format(dateLayout), from.Format(dateLayout))
}

func (s *Store) ApproveRequest(ctx context.Context, tenantID, id, approverID string, at time.Time) (leave.LeaveRequest, error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return leave.LeaveRequest{}, err
	}
	defer rollback(tx)

	req, err := getRequest(ctx, tx, tenantID, id)
	if err != nil {
		return leave.LeaveRequest{}, err
	}
	if req.Status != leave.StatusPending {
		return leave.LeaveRequest{}, leave.ErrStaleStatus
	}

	year := req.StartDate.Year()
	remaining, err := remainingTx(ctx, tx, tenantID, req.EmployeeID, req.LeaveType, year)
	if err != nil {
		return leave.LeaveRequest{}, err
	}
	paid, lop := leave.SplitApproval(req.LeaveType, req.DaysCount, remaining)
	if paid.IsPositive() {
		if err := s.creditBalanceTx(ctx, tx, tenantID, req.EmployeeID, req.LeaveType, year, paid.Neg()); err != nil {
			return leave.LeaveRequest{}, err
		}
	}
	if lop.IsPositive() {
		if err := s.creditBalanceTx(ctx, tx, tenantID, req.EmployeeID, leave.TypeLossOfPay, year, lop.Neg()); err != nil {
			return leave.LeaveRequest{}, err
		}
	}

	res, err := tx.ExecContext(ctx, `
    UPDATE leave_requests
    SET status = 'Approved', approver_id = ?, resolved_at = ?, is_loss_of_pay = ?
    WHERE tenant_id = ? AND id = ? AND status = 'Pending'
  `, approverID, formatTS(at), lop.IsPositive(), tenantID, id)
	if err := expectRow(res, err, leave.ErrStaleStatus); err != nil {
		return leave.LeaveRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return leave.LeaveRequest{}, err
	}

	resolved := at.UTC()
	req.Status = leave.StatusApproved
	req.ApproverID = approverID
	req.ResolvedAt = &resolved
	req.IsLossOfPay = lop.IsPositive()
	return req, nil
}

func (s *Store) RejectRequest(ctx context.Context, tenantID, id, approverID, reason string, at time.Time) (leave.LeaveRequest, error) {
	res, err := s.DB.ExecContext(ctx, `
    UPDATE leave_requests
    SET status = 'Rejected', approver_id = ?, rejection_reason = ?, resolved_at = ?
    WHERE tenant_id = ? AND id = ? AND status = 'Pending'
  `, approverID, reason, formatTS(at), tenantID, id)
	if err := expectRow(res, err, leave.ErrStaleStatus); err != nil {
		return leave.LeaveRequest{}, err
	}
	return s.GetRequest(ctx, tenantID, id)
}

func (s *Store) CancelRequest(ctx context.Context, tenantID, id string, at time.Time) (leave.LeaveRequest, error) {
	res, err := s.DB.ExecContext(ctx, `
    UPDATE leave_requests
    SET status = 'Cancelled', resolved_at = ?
    WHERE tenant_id = ? AND id = ? AND status = 'Pending'
  `, formatTS(at), tenantID, id)
	if err := expectRow(res, err, leave.ErrStaleStatus); err != nil {
		return leave.LeaveRequest{}, err
	}
	return s.GetRequest(ctx, tenantID, id)
}

func (s *Store) ApplyAccrual(ctx context.Context, tenantID string, grant leave.AccrualGrant) (bool, error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
    INSERT INTO leave_accrual_runs (tenant_id, leave_type_key, period, amount, employees_credited, run_at)
    VALUES (?,?,?,?,?,?)
    ON CONFLICT (tenant_id, leave_type_key, period) DO NOTHING
  `, tenantID, grant.LeaveType, grant.Period, grant.Amount.String(), len(grant.EmployeeIDs), s.now())
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}
	for _, employeeID := range grant.EmployeeIDs {
		if err := s.creditBalanceTx(ctx, tx, tenantID, employeeID, grant.LeaveType, grant.Year, grant.Amount); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
