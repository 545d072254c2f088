package leave

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"neon/internal/platform/querier"
)

const pgUniqueViolation = "23505"

const typeColumns = `key, name, description, annual_quota, is_paid, accrual_rate, max_continuous_days, encashment_allowed, color, created_at`

func scanType(row pgx.Row) (LeaveType, error) {
	var t LeaveType
	err := row.Scan(&t.Key, &t.Name, &t.Description, &t.AnnualQuota, &t.IsPaid, &t.AccrualRate, &t.MaxContinuousDays, &t.EncashmentAllowed, &t.Color, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeaveType{}, ErrNotFound
	}
	return t, err
}

func (s *Store) ListTypes(ctx context.Context, tenantID string) ([]LeaveType, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+typeColumns+`
    FROM leave_types
    WHERE tenant_id = $1
    ORDER BY name
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []LeaveType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (s *Store) GetType(ctx context.Context, tenantID, key string) (LeaveType, error) {
	return scanType(s.DB.QueryRow(ctx, `
    SELECT `+typeColumns+`
    FROM leave_types
    WHERE tenant_id = $1 AND key = $2
  `, tenantID, key))
}

func (s *Store) CreateType(ctx context.Context, tenantID string, t LeaveType) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO leave_types (tenant_id, key, name, description, annual_quota, is_paid, accrual_rate, max_continuous_days, encashment_allowed, color)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
  `, tenantID, t.Key, t.Name, t.Description, t.AnnualQuota, t.IsPaid, t.AccrualRate, t.MaxContinuousDays, t.EncashmentAllowed, t.Color)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateType
	}
	return err
}

func (s *Store) UpdateType(ctx context.Context, tenantID string, t LeaveType) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_types
    SET name = $3, description = $4, annual_quota = $5, is_paid = $6, accrual_rate = $7,
        max_continuous_days = $8, encashment_allowed = $9, color = $10
    WHERE tenant_id = $1 AND key = $2
  `, tenantID, t.Key, t.Name, t.Description, t.AnnualQuota, t.IsPaid, t.AccrualRate, t.MaxContinuousDays, t.EncashmentAllowed, t.Color)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteType(ctx context.Context, tenantID, key string) error {
	var inUse bool
	if err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM leave_requests WHERE tenant_id = $1 AND leave_type_key = $2)
  `, tenantID, key).Scan(&inUse); err != nil {
		return err
	}
	if inUse {
		return ErrTypeInUse
	}
	tag, err := s.DB.Exec(ctx, `DELETE FROM leave_types WHERE tenant_id = $1 AND key = $2`, tenantID, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) EnsureTypes(ctx context.Context, tenantID string, types []LeaveType) error {
	for _, t := range types {
		if _, err := s.DB.Exec(ctx, `
      INSERT INTO leave_types (tenant_id, key, name, description, annual_quota, is_paid, accrual_rate, max_continuous_days, encashment_allowed, color)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
      ON CONFLICT (tenant_id, key) DO NOTHING
    `, tenantID, t.Key, t.Name, t.Description, t.AnnualQuota, t.IsPaid, t.AccrualRate, t.MaxContinuousDays, t.EncashmentAllowed, t.Color); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, tenantID, employeeID string, year int) (Balance, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT leave_type_key, remaining
    FROM leave_balances
    WHERE tenant_id = $1 AND employee_id = $2 AND year = $3
  `, tenantID, employeeID, year)
	if err != nil {
		return Balance{}, err
	}
	defer rows.Close()

	b := Balance{EmployeeID: employeeID, Year: year, Values: map[string]decimal.Decimal{}}
	for rows.Next() {
		var key string
		var remaining decimal.Decimal
		if err := rows.Scan(&key, &remaining); err != nil {
			return Balance{}, err
		}
		b.Values[key] = remaining
	}
	return b, rows.Err()
}

func (s *Store) AdjustBalance(ctx context.Context, tenantID string, adj Adjustment) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)

	if err := creditBalanceTx(ctx, tx, tenantID, adj.EmployeeID, adj.LeaveType, adj.Year, adj.Delta); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
    INSERT INTO leave_balance_adjustments (tenant_id, employee_id, year, leave_type_key, delta, reason, actor_user_id)
    VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,'')::uuid)
  `, tenantID, adj.EmployeeID, adj.Year, adj.LeaveType, adj.Delta, adj.Reason, adj.ActorID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// creditBalanceTx adds amount (negative to debit) to one balance line,
// creating the line at zero first if needed.
func creditBalanceTx(ctx context.Context, q querier.Querier, tenantID, employeeID, leaveType string, year int, amount decimal.Decimal) error {
	_, err := q.Exec(ctx, `
    INSERT INTO leave_balances (tenant_id, employee_id, year, leave_type_key, remaining)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (tenant_id, employee_id, year, leave_type_key)
    DO UPDATE SET remaining = leave_balances.remaining + EXCLUDED.remaining, updated_at = now()
  `, tenantID, employeeID, year, leaveType, amount)
	return err
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		zap.L().Warn("leave tx rollback failed", zap.Error(err))
	}
}

const requestColumns = `r.id::text, r.tenant_id::text, r.employee_id::text, COALESCE(r.user_id::text, ''), COALESCE(e.name, ''),
  r.leave_type_key, r.start_date, r.end_date, r.is_half_day, r.days_count, r.is_emergency, r.is_loss_of_pay,
  r.reason_category, r.reason, r.attachments, r.policy_detail, r.status, COALESCE(r.approver_id::text, ''),
  r.rejection_reason, r.resolved_at, r.created_at`

const requestFrom = `FROM leave_requests r LEFT JOIN employees e ON e.id = r.employee_id`

func scanRequest(row pgx.Row) (LeaveRequest, error) {
	var r LeaveRequest
	var attachments, detail []byte
	err := row.Scan(&r.ID, &r.TenantID, &r.EmployeeID, &r.UserID, &r.EmployeeName,
		&r.LeaveType, &r.StartDate, &r.EndDate, &r.IsHalfDay, &r.DaysCount, &r.IsEmergency, &r.IsLossOfPay,
		&r.ReasonCategory, &r.Reason, &attachments, &detail, &r.Status, &r.ApproverID,
		&r.RejectionReason, &r.ResolvedAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeaveRequest{}, ErrNotFound
	}
	if err != nil {
		return LeaveRequest{}, err
	}
	if err := DecodeStoredJSON(attachments, detail, &r); err != nil {
		return LeaveRequest{}, err
	}
	return r, nil
}

// DecodeStoredJSON fills the attachment list and policy detail from their
// stored JSON columns.
func DecodeStoredJSON(attachments, detail []byte, r *LeaveRequest) error {
	r.Attachments = []string{}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &r.Attachments); err != nil {
			return err
		}
	}
	var env DetailEnvelope
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &env); err != nil {
			return err
		}
	}
	d, err := env.Detail()
	if err != nil {
		return err
	}
	r.PolicyDetail = d
	return nil
}

// EncodeStoredJSON is the inverse of DecodeStoredJSON.
func EncodeStoredJSON(r LeaveRequest) (attachments, detail []byte, err error) {
	refs := r.Attachments
	if refs == nil {
		refs = []string{}
	}
	if attachments, err = json.Marshal(refs); err != nil {
		return nil, nil, err
	}
	if detail, err = json.Marshal(EnvelopeOf(r.PolicyDetail)); err != nil {
		return nil, nil, err
	}
	return attachments, detail, nil
}

func collectRequests(rows pgx.Rows) ([]LeaveRequest, error) {
	defer rows.Close()
	out := []LeaveRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateRequest(ctx context.Context, req LeaveRequest) error {
	attachments, detail, err := EncodeStoredJSON(req)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO leave_requests (id, tenant_id, employee_id, user_id, leave_type_key, start_date, end_date, is_half_day,
      days_count, is_emergency, is_loss_of_pay, reason_category, reason, attachments, policy_detail, status, created_at)
    VALUES ($1,$2,$3,NULLIF($4,'')::uuid,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
  `, req.ID, req.TenantID, req.EmployeeID, req.UserID, req.LeaveType, req.StartDate, req.EndDate, req.IsHalfDay,
		req.DaysCount, req.IsEmergency, req.IsLossOfPay, req.ReasonCategory, req.Reason, attachments, detail, req.Status, req.CreatedAt)
	return err
}

func (s *Store) GetRequest(ctx context.Context, tenantID, id string) (LeaveRequest, error) {
	return getRequest(ctx, s.DB, tenantID, id, false)
}

func getRequest(ctx context.Context, q querier.Querier, tenantID, id string, forUpdate bool) (LeaveRequest, error) {
	lock := ""
	if forUpdate {
		lock = " FOR UPDATE OF r"
	}
	return scanRequest(q.QueryRow(ctx, `
    SELECT `+requestColumns+`
    `+requestFrom+`
    WHERE r.tenant_id = $1 AND r.id::text = $2`+lock, tenantID, id))
}

func (s *Store) ListRequestsByEmployee(ctx context.Context, tenantID, employeeID string, limit, offset int) ([]LeaveRequest, int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM leave_requests WHERE tenant_id = $1 AND employee_id = $2
  `, tenantID, employeeID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.DB.Query(ctx, `
    SELECT `+requestColumns+`
    `+requestFrom+`
    WHERE r.tenant_id = $1 AND r.employee_id = $2
    ORDER BY r.created_at DESC, r.id
    LIMIT $3 OFFSET $4
  `, tenantID, employeeID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectRequests(rows)
	return out, total, err
}

func (s *Store) ListPending(ctx context.Context, tenantID string, employeeIDs []string) ([]LeaveRequest, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+requestColumns+`
    `+requestFrom+`
    WHERE r.tenant_id = $1 AND r.status = 'Pending'
      AND ($2::text[] IS NULL OR r.employee_id::text = ANY($2))
    ORDER BY r.created_at, r.id
  `, tenantID, employeeIDs)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) ListApprovedBetween(ctx context.Context, tenantID string, employeeIDs []string, from, to time.Time) ([]LeaveRequest, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+requestColumns+`
    `+requestFrom+`
    WHERE r.tenant_id = $1 AND r.status = 'Approved'
      AND ($2::text[] IS NULL OR r.employee_id::text = ANY($2))
      AND r.start_date <= $4 AND r.end_date >= $3
    ORDER BY r.start_date, r.id
  `, tenantID, employeeIDs, from, to)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (s *Store) ApproveRequest(ctx context.Context, tenantID, id, approverID string, at time.Time) (LeaveRequest, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return LeaveRequest{}, err
	}
	defer rollback(ctx, tx)

	req, err := getRequest(ctx, tx, tenantID, id, true)
	if err != nil {
		return LeaveRequest{}, err
	}
	if req.Status != StatusPending {
		return LeaveRequest{}, ErrStaleStatus
	}

	year := req.StartDate.Year()
	var remaining decimal.Decimal
	err = tx.QueryRow(ctx, `
    SELECT remaining FROM leave_balances
    WHERE tenant_id = $1 AND employee_id = $2 AND year = $3 AND leave_type_key = $4
    FOR UPDATE
  `, tenantID, req.EmployeeID, year, req.LeaveType).Scan(&remaining)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return LeaveRequest{}, err
	}

	paid, lop := SplitApproval(req.LeaveType, req.DaysCount, remaining)
	if paid.IsPositive() {
		if err := creditBalanceTx(ctx, tx, tenantID, req.EmployeeID, req.LeaveType, year, paid.Neg()); err != nil {
			return LeaveRequest{}, err
		}
	}
	if lop.IsPositive() {
		if err := creditBalanceTx(ctx, tx, tenantID, req.EmployeeID, TypeLossOfPay, year, lop.Neg()); err != nil {
			return LeaveRequest{}, err
		}
	}

	tag, err := tx.Exec(ctx, `
    UPDATE leave_requests
    SET status = 'Approved', approver_id = NULLIF($3,'')::uuid, resolved_at = $4, is_loss_of_pay = $5
    WHERE tenant_id = $1 AND id::text = $2 AND status = 'Pending'
  `, tenantID, id, approverID, at, lop.IsPositive())
	if err != nil {
		return LeaveRequest{}, err
	}
	if tag.RowsAffected() == 0 {
		return LeaveRequest{}, ErrStaleStatus
	}
	if err := tx.Commit(ctx); err != nil {
		return LeaveRequest{}, err
	}

	req.Status = StatusApproved
	req.ApproverID = approverID
	req.ResolvedAt = &at
	req.IsLossOfPay = lop.IsPositive()
	return req, nil
}

func (s *Store) RejectRequest(ctx context.Context, tenantID, id, approverID, reason string, at time.Time) (LeaveRequest, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_requests
    SET status = 'Rejected', approver_id = NULLIF($3,'')::uuid, rejection_reason = $4, resolved_at = $5
    WHERE tenant_id = $1 AND id::text = $2 AND status = 'Pending'
  `, tenantID, id, approverID, reason, at)
	if err != nil {
		return LeaveRequest{}, err
	}
	if tag.RowsAffected() == 0 {
		return LeaveRequest{}, ErrStaleStatus
	}
	return s.GetRequest(ctx, tenantID, id)
}

func (s *Store) CancelRequest(ctx context.Context, tenantID, id string, at time.Time) (LeaveRequest, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_requests
    SET status = 'Cancelled', resolved_at = $3
    WHERE tenant_id = $1 AND id::text = $2 AND status = 'Pending'
  `, tenantID, id, at)
	if err != nil {
		return LeaveRequest{}, err
	}
	if tag.RowsAffected() == 0 {
		return LeaveRequest{}, ErrStaleStatus
	}
	return s.GetRequest(ctx, tenantID, id)
}

func (s *Store) ApplyAccrual(ctx context.Context, tenantID string, grant AccrualGrant) (bool, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer rollback(ctx, tx)

	tag, err := tx.Exec(ctx, `
    INSERT INTO leave_accrual_runs (tenant_id, leave_type_key, period, amount, employees_credited)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (tenant_id, leave_type_key, period) DO NOTHING
  `, tenantID, grant.LeaveType, grant.Period, grant.Amount, len(grant.EmployeeIDs))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	for _, employeeID := range grant.EmployeeIDs {
		if err := creditBalanceTx(ctx, tx, tenantID, employeeID, grant.LeaveType, grant.Year, grant.Amount); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
