package leave

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"neon/internal/domain/auth"
	"neon/internal/domain/core"
)

type Service struct {
	Store     StoreAPI
	Directory core.Directory
	Cache     PendingCounter
	Metrics   TransitionRecorder
	Now       func() time.Time
}

func NewService(store StoreAPI, dir core.Directory) *Service {
	return &Service{
		Store:     store,
		Directory: dir,
		Cache:     noopCounter{},
		Metrics:   noopRecorder{},
		Now:       time.Now,
	}
}

// Submission is the outcome of a successful submit.
type Submission struct {
	Request LeaveRequest `json:"request"`
	Review  Review       `json:"review"`
	// ApproverUserID is the reporting manager's user, empty when there is none.
	ApproverUserID string `json:"-"`
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// actorEmployee resolves the employee record behind the caller. Users without
// one (tenant admins, HR service accounts) yield "".
func (s *Service) actorEmployee(ctx context.Context, actor auth.UserContext) (string, error) {
	if actor.EmployeeID != "" {
		return actor.EmployeeID, nil
	}
	emp, err := s.Directory.EmployeeByUserID(ctx, actor.TenantID, actor.UserID)
	if errors.Is(err, core.ErrEmployeeNotFound) {
		return "", nil
	}
	if err != nil {
		return "", ClassifyStoreError(err)
	}
	return emp.ID, nil
}

// canView reports whether actor may read data belonging to employeeID.
func (s *Service) canView(ctx context.Context, actor auth.UserContext, actorEmp, employeeID string) (bool, error) {
	if employeeID == actorEmp && actorEmp != "" {
		return true, nil
	}
	if auth.SeesAllRequests(actor.RoleName) {
		return true, nil
	}
	if actor.RoleName != auth.RoleManager || actorEmp == "" {
		return false, nil
	}
	ok, err := s.Directory.InReportingLine(ctx, actor.TenantID, actorEmp, employeeID)
	if err != nil {
		return false, ClassifyStoreError(err)
	}
	return ok, nil
}

func (s *Service) ListTypes(ctx context.Context, tenantID string) ([]LeaveType, error) {
	types, err := s.Store.ListTypes(ctx, tenantID)
	if err != nil {
		return nil, ClassifyStoreError(err)
	}
	if types == nil {
		types = []LeaveType{}
	}
	return types, nil
}

func (s *Service) GetType(ctx context.Context, tenantID, key string) (LeaveType, error) {
	t, err := s.Store.GetType(ctx, tenantID, key)
	return t, ClassifyStoreError(err)
}

func (s *Service) CreateType(ctx context.Context, tenantID string, t LeaveType) (LeaveType, error) {
	if err := ValidateType(&t); err != nil {
		return LeaveType{}, err
	}
	if err := s.Store.CreateType(ctx, tenantID, t); err != nil {
		if errors.Is(err, ErrDuplicateType) {
			return LeaveType{}, &ConflictError{Reason: "leave type " + t.Key + " already exists"}
		}
		return LeaveType{}, ClassifyStoreError(err)
	}
	return s.GetType(ctx, tenantID, t.Key)
}

func (s *Service) UpdateType(ctx context.Context, tenantID, key string, t LeaveType) (LeaveType, error) {
	t.Key = key
	if err := ValidateType(&t); err != nil {
		return LeaveType{}, err
	}
	if err := s.Store.UpdateType(ctx, tenantID, t); err != nil {
		return LeaveType{}, ClassifyStoreError(err)
	}
	return s.GetType(ctx, tenantID, key)
}

func (s *Service) DeleteType(ctx context.Context, tenantID, key string) error {
	err := s.Store.DeleteType(ctx, tenantID, key)
	if errors.Is(err, ErrTypeInUse) {
		return &ConflictError{Reason: "leave type " + key + " is used by existing requests"}
	}
	return ClassifyStoreError(err)
}

// EnsureDefaultCatalog seeds the default leave types without touching
// existing entries.
func (s *Service) EnsureDefaultCatalog(ctx context.Context, tenantID string) error {
	return ClassifyStoreError(s.Store.EnsureTypes(ctx, tenantID, DefaultCatalog()))
}

// GetBalance always reads through to the store; balances are never cached.
func (s *Service) GetBalance(ctx context.Context, actor auth.UserContext, employeeID string, year int) (Balance, error) {
	actorEmp, err := s.actorEmployee(ctx, actor)
	if err != nil {
		return Balance{}, err
	}
	if employeeID == "" {
		employeeID = actorEmp
	}
	if employeeID == "" {
		return Balance{}, invalid("employeeId", "is required")
	}
	if year == 0 {
		year = s.now().Year()
	}
	ok, err := s.canView(ctx, actor, actorEmp, employeeID)
	if err != nil {
		return Balance{}, err
	}
	if !ok {
		return Balance{}, &AuthorizationError{Action: "view balance", Reason: "employee is not visible to caller"}
	}
	b, err := s.Store.GetBalance(ctx, actor.TenantID, employeeID, year)
	return b, ClassifyStoreError(err)
}

func (s *Service) AdjustBalance(ctx context.Context, actor auth.UserContext, adj Adjustment) (Balance, error) {
	if !auth.SeesAllRequests(actor.RoleName) {
		return Balance{}, &AuthorizationError{Action: "adjust balance", Reason: "requires HR or Admin"}
	}
	if err := fromValidator(validate.Struct(adj)); err != nil {
		return Balance{}, err
	}
	if adj.Delta.IsZero() {
		return Balance{}, invalid("delta", "must not be zero")
	}
	if _, err := s.Store.GetType(ctx, actor.TenantID, adj.LeaveType); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Balance{}, invalid("leaveType", "unknown leave type")
		}
		return Balance{}, ClassifyStoreError(err)
	}
	if _, err := s.Directory.GetEmployee(ctx, actor.TenantID, adj.EmployeeID); err != nil {
		if errors.Is(err, core.ErrEmployeeNotFound) {
			return Balance{}, invalid("employeeId", "unknown employee")
		}
		return Balance{}, ClassifyStoreError(err)
	}
	adj.ActorID = actor.UserID
	if err := s.Store.AdjustBalance(ctx, actor.TenantID, adj); err != nil {
		return Balance{}, ClassifyStoreError(err)
	}
	b, err := s.Store.GetBalance(ctx, actor.TenantID, adj.EmployeeID, adj.Year)
	return b, ClassifyStoreError(err)
}

func (s *Service) catalog(ctx context.Context, tenantID string) (Catalog, error) {
	types, err := s.Store.ListTypes(ctx, tenantID)
	if err != nil {
		return nil, ClassifyStoreError(err)
	}
	return Catalog(types), nil
}

// recipient returns the display name and user of the employee's manager.
func (s *Service) recipient(ctx context.Context, tenantID, employeeID string) (string, string, error) {
	emp, err := s.Directory.GetEmployee(ctx, tenantID, employeeID)
	if err != nil {
		return "", "", ClassifyStoreError(err)
	}
	if emp.ReportingManagerID == "" {
		return "", "", nil
	}
	mgr, err := s.Directory.GetEmployee(ctx, tenantID, emp.ReportingManagerID)
	if errors.Is(err, core.ErrEmployeeNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", ClassifyStoreError(err)
	}
	return mgr.Name, mgr.UserID, nil
}

// ApproverUserID returns the user of the employee's reporting manager, or ""
// when the employee has none.
func (s *Service) ApproverUserID(ctx context.Context, tenantID, employeeID string) (string, error) {
	_, userID, err := s.recipient(ctx, tenantID, employeeID)
	return userID, err
}

// Preview computes the review for a draft without persisting anything.
func (s *Service) Preview(ctx context.Context, actor auth.UserContext, d Draft) (Review, error) {
	actorEmp, err := s.actorEmployee(ctx, actor)
	if err != nil {
		return Review{}, err
	}
	if actorEmp == "" {
		return Review{}, &AuthorizationError{Action: "preview", Reason: "caller has no employee record"}
	}
	cat, err := s.catalog(ctx, actor.TenantID)
	if err != nil {
		return Review{}, err
	}
	if _, ok := cat.Lookup(d.LeaveType); !ok {
		return Review{}, invalid("leaveType", "unknown leave type")
	}
	d = d.onCalendarDays()
	if d.PolicyDetail == nil {
		d.PolicyDetail = DetailFor(d.LeaveType)
	}
	b, err := s.Store.GetBalance(ctx, actor.TenantID, actorEmp, d.StartDate.Year())
	if err != nil {
		return Review{}, ClassifyStoreError(err)
	}
	name, _, err := s.recipient(ctx, actor.TenantID, actorEmp)
	if err != nil {
		return Review{}, err
	}
	return BuildReview(d, b, name)
}

// Submit validates and persists a draft as a Pending request. A negative
// projection marks the request as loss of pay but never blocks it.
func (s *Service) Submit(ctx context.Context, actor auth.UserContext, d Draft) (Submission, error) {
	actorEmp, err := s.actorEmployee(ctx, actor)
	if err != nil {
		return Submission{}, err
	}
	if actorEmp == "" {
		return Submission{}, &AuthorizationError{Action: "submit", Reason: "caller has no employee record"}
	}
	cat, err := s.catalog(ctx, actor.TenantID)
	if err != nil {
		return Submission{}, err
	}
	d = d.onCalendarDays()
	if d.PolicyDetail == nil {
		d.PolicyDetail = DetailFor(d.LeaveType)
	}
	d.Reason = strings.TrimSpace(d.Reason)
	if err := ValidateDraft(cat, d); err != nil {
		return Submission{}, err
	}
	days, err := DaysCount(d.StartDate, d.EndDate, d.IsHalfDay)
	if err != nil {
		return Submission{}, err
	}
	if !days.IsPositive() {
		return Submission{}, invalid("endDate", "leave must cover at least half a day")
	}

	b, err := s.Store.GetBalance(ctx, actor.TenantID, actorEmp, d.StartDate.Year())
	if err != nil {
		return Submission{}, ClassifyStoreError(err)
	}
	name, approverUser, err := s.recipient(ctx, actor.TenantID, actorEmp)
	if err != nil {
		return Submission{}, err
	}
	review, err := BuildReview(d, b, name)
	if err != nil {
		return Submission{}, err
	}

	attachments := d.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	req := LeaveRequest{
		ID:             uuid.NewString(),
		TenantID:       actor.TenantID,
		EmployeeID:     actorEmp,
		UserID:         actor.UserID,
		LeaveType:      d.LeaveType,
		StartDate:      dateOnly(d.StartDate),
		EndDate:        dateOnly(d.EndDate),
		IsHalfDay:      d.IsHalfDay,
		DaysCount:      days,
		IsEmergency:    d.IsEmergency,
		IsLossOfPay:    review.Projection.Projected.IsNegative(),
		ReasonCategory: d.ReasonCategory,
		Reason:         d.Reason,
		Attachments:    attachments,
		PolicyDetail:   d.PolicyDetail,
		Status:         StatusPending,
		CreatedAt:      s.now(),
	}
	if err := s.Store.CreateRequest(ctx, req); err != nil {
		return Submission{}, ClassifyStoreError(err)
	}
	s.Cache.InvalidatePendingCounts(ctx, actor.TenantID)
	s.Metrics.RequestSubmitted(req.LeaveType, req.IsLossOfPay)
	return Submission{Request: req, Review: review, ApproverUserID: approverUser}, nil
}

func (s *Service) GetRequest(ctx context.Context, actor auth.UserContext, id string) (LeaveRequest, error) {
	req, err := s.Store.GetRequest(ctx, actor.TenantID, id)
	if err != nil {
		return LeaveRequest{}, ClassifyStoreError(err)
	}
	actorEmp, err := s.actorEmployee(ctx, actor)
	if err != nil {
		return LeaveRequest{}, err
	}
	ok, err := s.canView(ctx, actor, actorEmp, req.EmployeeID)
	if err != nil {
		return LeaveRequest{}, err
	}
	if !ok {
		return LeaveRequest{}, &AuthorizationError{Action: "view request", Reason: "request is not visible to caller"}
	}
	return req, nil
}

func (s *Service) ListMine(ctx context.Context, actor auth.UserContext, limit, offset int) ([]LeaveRequest, int, error) {
	actorEmp, err := s.actorEmployee(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	if actorEmp == "" {
		return []LeaveRequest{}, 0, nil
	}
	reqs, total, err := s.Store.ListRequestsByEmployee(ctx, actor.TenantID, actorEmp, limit, offset)
	if err != nil {
		return nil, 0, ClassifyStoreError(err)
	}
	return reqs, total, nil
}

// Resolve approves or rejects a pending request. Checks run in a fixed order:
// existence, approver role, reporting-line scope, then status.
func (s *Service) Resolve(ctx context.Context, actor auth.UserContext, id string, decision Status, reason string) (LeaveRequest, error) {
	if decision != StatusApproved && decision != StatusRejected {
		return LeaveRequest{}, invalid("decision", "must be Approved or Rejected")
	}
	req, err := s.Store.GetRequest(ctx, actor.TenantID, id)
	if err != nil {
		return LeaveRequest{}, ClassifyStoreError(err)
	}
	actorEmp, err := s.actorEmployee(ctx, actor)
	if err != nil {
		return LeaveRequest{}, err
	}
	inLine := false
	if actor.RoleName == auth.RoleManager && actorEmp != "" && req.EmployeeID != actorEmp {
		inLine, err = s.Directory.InReportingLine(ctx, actor.TenantID, actorEmp, req.EmployeeID)
		if err != nil {
			return LeaveRequest{}, ClassifyStoreError(err)
		}
	}
	if err := CheckResolve(actor, actorEmp, req, decision, inLine); err != nil {
		return LeaveRequest{}, err
	}

	at := s.now()
	var out LeaveRequest
	if decision == StatusApproved {
		out, err = s.Store.ApproveRequest(ctx, actor.TenantID, id, actor.UserID, at)
	} else {
		out, err = s.Store.RejectRequest(ctx, actor.TenantID, id, actor.UserID, strings.TrimSpace(reason), at)
	}
	if err != nil {
		return LeaveRequest{}, s.staleToConflict(ctx, actor.TenantID, id, err)
	}
	s.Cache.InvalidatePendingCounts(ctx, actor.TenantID)
	s.Metrics.RequestTransitioned(decision)
	return out, nil
}

// Cancel withdraws a pending request. Only the submitter may cancel.
func (s *Service) Cancel(ctx context.Context, actor auth.UserContext, id string) (LeaveRequest, error) {
	req, err := s.Store.GetRequest(ctx, actor.TenantID, id)
	if err != nil {
		return LeaveRequest{}, ClassifyStoreError(err)
	}
	actorEmp, err := s.actorEmployee(ctx, actor)
	if err != nil {
		return LeaveRequest{}, err
	}
	if err := CheckCancel(actorEmp, req); err != nil {
		return LeaveRequest{}, err
	}
	out, err := s.Store.CancelRequest(ctx, actor.TenantID, id, s.now())
	if err != nil {
		return LeaveRequest{}, s.staleToConflict(ctx, actor.TenantID, id, err)
	}
	s.Cache.InvalidatePendingCounts(ctx, actor.TenantID)
	s.Metrics.RequestTransitioned(StatusCancelled)
	return out, nil
}

// staleToConflict reports a lost race as a ConflictError carrying the status
// the winning writer left behind.
func (s *Service) staleToConflict(ctx context.Context, tenantID, id string, err error) error {
	if !errors.Is(err, ErrStaleStatus) {
		return ClassifyStoreError(err)
	}
	current, getErr := s.Store.GetRequest(ctx, tenantID, id)
	if getErr != nil {
		return &ConflictError{RequestID: id}
	}
	return &ConflictError{RequestID: id, Status: current.Status}
}

// approvalScope returns the employees whose requests actor may resolve, nil
// meaning the whole tenant.
func (s *Service) approvalScope(ctx context.Context, actor auth.UserContext, actorEmp string) ([]string, error) {
	if auth.SeesAllRequests(actor.RoleName) {
		return nil, nil
	}
	if actorEmp == "" {
		return []string{}, nil
	}
	line, err := s.Directory.ReportingLine(ctx, actor.TenantID, actorEmp)
	if err != nil {
		return nil, ClassifyStoreError(err)
	}
	ids := make([]string, 0, len(line))
	for _, e := range line {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (s *Service) PendingApprovals(ctx context.Context, actor auth.UserContext) ([]QueueItem, error) {
	if !auth.IsApprover(actor.RoleName) {
		return nil, &AuthorizationError{Action: "view approvals", Reason: "role " + actor.RoleName + " cannot approve"}
	}
	actorEmp, err := s.actorEmployee(ctx, actor)
	if err != nil {
		return nil, err
	}
	scope, err := s.approvalScope(ctx, actor, actorEmp)
	if err != nil {
		return nil, err
	}
	if scope != nil && len(scope) == 0 {
		return []QueueItem{}, nil
	}
	reqs, err := s.Store.ListPending(ctx, actor.TenantID, scope)
	if err != nil {
		return nil, ClassifyStoreError(err)
	}
	return BuildQueue(reqs, actorEmp), nil
}

func (s *Service) PendingCount(ctx context.Context, actor auth.UserContext) (int, error) {
	n, version, ok := s.Cache.GetPendingCount(ctx, actor.TenantID, actor.UserID)
	if ok {
		return n, nil
	}
	items, err := s.PendingApprovals(ctx, actor)
	if err != nil {
		return 0, err
	}
	s.Cache.SetPendingCount(ctx, actor.TenantID, actor.UserID, version, len(items))
	return len(items), nil
}

func (s *Service) TodayStatus(ctx context.Context, actor auth.UserContext, employeeID string, day time.Time) (TodayStatus, error) {
	actorEmp, err := s.actorEmployee(ctx, actor)
	if err != nil {
		return TodayStatus{}, err
	}
	if employeeID == "" {
		employeeID = actorEmp
	}
	if employeeID == "" {
		return TodayStatus{}, invalid("employeeId", "is required")
	}
	if day.IsZero() {
		day = s.now()
	}
	ok, err := s.canView(ctx, actor, actorEmp, employeeID)
	if err != nil {
		return TodayStatus{}, err
	}
	if !ok {
		return TodayStatus{}, &AuthorizationError{Action: "view status", Reason: "employee is not visible to caller"}
	}
	d := dateOnly(day)
	reqs, err := s.Store.ListApprovedBetween(ctx, actor.TenantID, []string{employeeID}, d, d)
	if err != nil {
		return TodayStatus{}, ClassifyStoreError(err)
	}
	return StatusOn(reqs, employeeID, d), nil
}

// TeamHeatmap shows approved leave across the caller's team for the window.
func (s *Service) TeamHeatmap(ctx context.Context, actor auth.UserContext, from time.Time, days int) (Heatmap, error) {
	if days < 1 || days > 31 {
		return Heatmap{}, invalid("days", "must be between 1 and 31")
	}
	if !auth.IsApprover(actor.RoleName) {
		return Heatmap{}, &AuthorizationError{Action: "view team", Reason: "role " + actor.RoleName + " has no team"}
	}
	if from.IsZero() {
		from = s.now()
	}
	actorEmp, err := s.actorEmployee(ctx, actor)
	if err != nil {
		return Heatmap{}, err
	}
	var members []core.Employee
	if auth.SeesAllRequests(actor.RoleName) {
		members, err = s.Directory.ActiveEmployees(ctx, actor.TenantID)
	} else if actorEmp != "" {
		members, err = s.Directory.ReportingLine(ctx, actor.TenantID, actorEmp)
	}
	if err != nil {
		return Heatmap{}, ClassifyStoreError(err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	start := dateOnly(from)
	var approved []LeaveRequest
	if len(ids) > 0 {
		approved, err = s.Store.ListApprovedBetween(ctx, actor.TenantID, ids, start, start.AddDate(0, 0, days-1))
		if err != nil {
			return Heatmap{}, ClassifyStoreError(err)
		}
	}
	return BuildHeatmap(members, approved, start, days), nil
}

func (s *Service) RunAccruals(ctx context.Context, tenantID string) (AccrualSummary, error) {
	return ApplyAccruals(ctx, s.Store, s.Directory, s.Metrics, tenantID, s.now())
}
