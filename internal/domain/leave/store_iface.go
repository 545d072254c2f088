package leave

import (
	"context"
	"time"
)

// StoreAPI is implemented by the Postgres store in this package and by the
// embedded sqlite store.
type StoreAPI interface {
	ListTypes(ctx context.Context, tenantID string) ([]LeaveType, error)
	GetType(ctx context.Context, tenantID, key string) (LeaveType, error)
	CreateType(ctx context.Context, tenantID string, t LeaveType) error
	UpdateType(ctx context.Context, tenantID string, t LeaveType) error
	DeleteType(ctx context.Context, tenantID, key string) error
	EnsureTypes(ctx context.Context, tenantID string, types []LeaveType) error

	GetBalance(ctx context.Context, tenantID, employeeID string, year int) (Balance, error)
	AdjustBalance(ctx context.Context, tenantID string, adj Adjustment) error

	CreateRequest(ctx context.Context, req LeaveRequest) error
	GetRequest(ctx context.Context, tenantID, id string) (LeaveRequest, error)
	ListRequestsByEmployee(ctx context.Context, tenantID, employeeID string, limit, offset int) ([]LeaveRequest, int, error)
	// ListPending returns pending requests of the given employees, or of the
	// whole tenant when employeeIDs is nil.
	ListPending(ctx context.Context, tenantID string, employeeIDs []string) ([]LeaveRequest, error)
	ListApprovedBetween(ctx context.Context, tenantID string, employeeIDs []string, from, to time.Time) ([]LeaveRequest, error)

	// ApproveRequest flips a pending request to Approved and applies the
	// balance effect in one transaction. ErrStaleStatus means another writer
	// resolved it first.
	ApproveRequest(ctx context.Context, tenantID, id, approverID string, at time.Time) (LeaveRequest, error)
	RejectRequest(ctx context.Context, tenantID, id, approverID, reason string, at time.Time) (LeaveRequest, error)
	CancelRequest(ctx context.Context, tenantID, id string, at time.Time) (LeaveRequest, error)

	// ApplyAccrual credits a grant once per (tenant, type, period). It reports
	// false when the period was already credited.
	ApplyAccrual(ctx context.Context, tenantID string, grant AccrualGrant) (bool, error)
}

// PendingCounter caches the approval badge count per approver. Get returns
// the tenant's cache version alongside the count; Set stores under that
// version, so a count computed before an invalidation is never served.
type PendingCounter interface {
	GetPendingCount(ctx context.Context, tenantID, userID string) (n int, version int64, ok bool)
	SetPendingCount(ctx context.Context, tenantID, userID string, version int64, n int)
	InvalidatePendingCounts(ctx context.Context, tenantID string)
}

// TransitionRecorder receives lifecycle events for metrics.
type TransitionRecorder interface {
	RequestSubmitted(leaveType string, lossOfPay bool)
	RequestTransitioned(to Status)
	AccrualCredited(leaveType string, employees int)
}

type noopCounter struct{}

func (noopCounter) GetPendingCount(context.Context, string, string) (int, int64, bool) {
	return 0, 0, false
}
func (noopCounter) SetPendingCount(context.Context, string, string, int64, int) {}
func (noopCounter) InvalidatePendingCounts(context.Context, string)             {}

type noopRecorder struct{}

func (noopRecorder) RequestSubmitted(string, bool) {}
func (noopRecorder) RequestTransitioned(Status)    {}
func (noopRecorder) AccrualCredited(string, int)   {}
