package leave

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neon/internal/domain/auth"
	"neon/internal/domain/core"
)

const testTenant = "tenant-1"

var (
	managerActor = auth.UserContext{UserID: "u-mgr", TenantID: testTenant, EmployeeID: "emp-mgr", RoleName: auth.RoleManager}
	aliceActor   = auth.UserContext{UserID: "u-alice", TenantID: testTenant, EmployeeID: "emp-alice", RoleName: auth.RoleManager}
	bobActor     = auth.UserContext{UserID: "u-bob", TenantID: testTenant, EmployeeID: "emp-bob", RoleName: auth.RoleEmployee}
	carolActor   = auth.UserContext{UserID: "u-carol", TenantID: testTenant, EmployeeID: "emp-carol", RoleName: auth.RoleEmployee}
	outsiderMgr  = auth.UserContext{UserID: "u-other", TenantID: testTenant, EmployeeID: "emp-other", RoleName: auth.RoleManager}
	hrActor      = auth.UserContext{UserID: "u-hr", TenantID: testTenant, RoleName: auth.RoleHR}
)

type fixture struct {
	svc   *Service
	store *memStore
	cache *countingCache
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	dir := newMemDirectory(
		core.Employee{ID: "emp-mgr", UserID: "u-mgr", Name: "Dana Manager"},
		core.Employee{ID: "emp-alice", UserID: "u-alice", Name: "Alice", ReportingManagerID: "emp-mgr"},
		core.Employee{ID: "emp-bob", UserID: "u-bob", Name: "Bob", ReportingManagerID: "emp-alice"},
		core.Employee{ID: "emp-other", UserID: "u-other", Name: "Olga Other"},
		core.Employee{ID: "emp-carol", UserID: "u-carol", Name: "Carol", ReportingManagerID: "emp-other"},
	)
	f := &fixture{store: store, cache: &countingCache{counts: map[string]int{}}}
	f.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.svc = NewService(store, dir)
	f.svc.Cache = f.cache
	f.svc.Now = func() time.Time {
		f.now = f.now.Add(time.Minute)
		return f.now
	}
	return f
}

func (f *fixture) submit(t *testing.T, actor auth.UserContext, leaveType, start, end string) LeaveRequest {
	t.Helper()
	sub, err := f.svc.Submit(context.Background(), actor, Draft{
		LeaveType: leaveType,
		StartDate: day(start),
		EndDate:   day(end),
		Reason:    "personal",
	})
	require.NoError(t, err)
	return sub.Request
}

func TestSubmitMarksLossOfPayWithoutBlocking(t *testing.T) {
	f := newFixture(t)
	f.store.setBalance("emp-bob", 2026, TypeAnnual, dec("2"))

	sub, err := f.svc.Submit(context.Background(), bobActor, Draft{
		LeaveType: TypeAnnual,
		StartDate: day("2026-03-10"),
		EndDate:   day("2026-03-13"),
		Reason:    "trip",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, sub.Request.Status)
	assert.True(t, sub.Request.DaysCount.Equal(dec("4")))
	assert.True(t, sub.Request.IsLossOfPay)
	assert.True(t, sub.Review.Projection.LOPWarning)
	assert.Equal(t, "Alice", sub.Review.Recipient)
	assert.Equal(t, "u-alice", sub.ApproverUserID)
	assert.Equal(t, 1, f.cache.invalidated)
}

func TestSubmitCountsCalendarDays(t *testing.T) {
	f := newFixture(t)
	f.store.setBalance("emp-bob", 2026, TypeAnnual, dec("10"))
	ist := time.FixedZone("IST", 5*3600+1800)

	sub, err := f.svc.Submit(context.Background(), bobActor, Draft{
		LeaveType: TypeAnnual,
		StartDate: day("2026-11-02"),
		EndDate:   day("2026-11-04").Add(12 * time.Hour),
		Reason:    "trip",
	})
	require.NoError(t, err)
	assert.True(t, sub.Request.EndDate.Equal(day("2026-11-04")), "end: %s", sub.Request.EndDate)
	assert.True(t, sub.Request.DaysCount.Equal(dec("3")), "days: %s", sub.Request.DaysCount)
	assert.True(t, sub.Review.Projection.Projected.Equal(dec("7")))

	sub, err = f.svc.Submit(context.Background(), bobActor, Draft{
		LeaveType: TypeAnnual,
		StartDate: time.Date(2026, 11, 10, 0, 0, 0, 0, ist),
		EndDate:   day("2026-11-10"),
		Reason:    "trip",
	})
	require.NoError(t, err)
	assert.True(t, sub.Request.StartDate.Equal(day("2026-11-10")), "start: %s", sub.Request.StartDate)
	assert.True(t, sub.Request.DaysCount.Equal(dec("1")), "days: %s", sub.Request.DaysCount)

	review, err := f.svc.Preview(context.Background(), bobActor, Draft{
		LeaveType: TypeAnnual,
		StartDate: day("2026-11-10").Add(20 * time.Hour),
		EndDate:   day("2026-11-11").Add(time.Hour),
		Reason:    "trip",
	})
	require.NoError(t, err)
	assert.True(t, review.Projection.Days.Equal(dec("2")), "days: %s", review.Projection.Days)
}

func TestCrossYearRequestDebitsStartYear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.setBalance("emp-bob", 2026, TypeAnnual, dec("10"))
	f.store.setBalance("emp-bob", 2027, TypeAnnual, dec("10"))
	req := f.submit(t, bobActor, TypeAnnual, "2026-12-30", "2027-01-02")
	require.True(t, req.DaysCount.Equal(dec("4")))

	_, err := f.svc.Resolve(ctx, aliceActor, req.ID, StatusApproved, "")
	require.NoError(t, err)

	b, err := f.svc.GetBalance(ctx, bobActor, "", 2026)
	require.NoError(t, err)
	assert.True(t, b.For(TypeAnnual).Equal(dec("6")), "2026: %s", b.For(TypeAnnual))
	b, err = f.svc.GetBalance(ctx, bobActor, "", 2027)
	require.NoError(t, err)
	assert.True(t, b.For(TypeAnnual).Equal(dec("10")), "2027: %s", b.For(TypeAnnual))
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), bobActor, Draft{
		LeaveType:    TypeSick,
		StartDate:    day("2026-03-10"),
		EndDate:      day("2026-03-10"),
		Reason:       "flu",
		PolicyDetail: MaternityDetail{},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Submit(context.Background(), hrActor, Draft{LeaveType: TypeAnnual})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolveCheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, bobActor, TypeCasual, "2026-03-10", "2026-03-10")

	_, err := f.svc.Resolve(ctx, managerActor, "missing", StatusApproved, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Resolve(ctx, carolActor, req.ID, StatusApproved, "")
	assert.ErrorIs(t, err, ErrUnauthorized, "employees cannot approve")

	_, err = f.svc.Resolve(ctx, outsiderMgr, req.ID, StatusApproved, "")
	assert.ErrorIs(t, err, ErrUnauthorized, "manager outside the reporting line")

	_, err = f.svc.Resolve(ctx, bobActor, req.ID, StatusApproved, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// indirect report: bob -> alice -> mgr
	out, err := f.svc.Resolve(ctx, managerActor, req.ID, StatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, out.Status)
	assert.Equal(t, "u-mgr", out.ApproverID)

	_, err = f.svc.Resolve(ctx, outsiderMgr, req.ID, StatusRejected, "no")
	assert.ErrorIs(t, err, ErrUnauthorized, "authorization is checked before status")

	_, err = f.svc.Resolve(ctx, hrActor, req.ID, StatusRejected, "late")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, StatusApproved, conflict.Status)
}

func TestResolveSelfIsForbiddenEvenForHR(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t, aliceActor, TypeCasual, "2026-03-10", "2026-03-10")

	_, err := f.svc.Resolve(context.Background(), aliceActor, req.ID, StatusApproved, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	out, err := f.svc.Resolve(context.Background(), hrActor, req.ID, StatusRejected, "team offsite")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, "team offsite", out.RejectionReason)
}

func TestApprovalSplitsBalanceIntoLossOfPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.setBalance("emp-bob", 2026, TypeAnnual, dec("1"))
	req := f.submit(t, bobActor, TypeAnnual, "2026-03-10", "2026-03-12")

	out, err := f.svc.Resolve(ctx, aliceActor, req.ID, StatusApproved, "")
	require.NoError(t, err)
	assert.True(t, out.IsLossOfPay)

	b, err := f.svc.GetBalance(ctx, bobActor, "", 2026)
	require.NoError(t, err)
	assert.True(t, b.For(TypeAnnual).IsZero(), "annual: %s", b.For(TypeAnnual))
	assert.True(t, b.For(TypeLossOfPay).Equal(dec("-2")), "lop: %s", b.For(TypeLossOfPay))
}

func TestCancelOnlyBySubmitter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, bobActor, TypeCasual, "2026-03-10", "2026-03-10")

	_, err := f.svc.Cancel(ctx, managerActor, req.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	out, err := f.svc.Cancel(ctx, bobActor, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, out.Status)

	_, err = f.svc.Cancel(ctx, bobActor, req.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.Resolve(ctx, managerActor, req.ID, StatusApproved, "")
	assert.ErrorIs(t, err, ErrConflict)
}

// raceStore lets a competing writer resolve the request between the read and
// the conditional update.
type raceStore struct {
	*memStore
}

func (s raceStore) ApproveRequest(ctx context.Context, tenantID, id, approverID string, at time.Time) (LeaveRequest, error) {
	if _, err := s.memStore.RejectRequest(ctx, tenantID, id, "u-hr", "first", at); err != nil {
		return LeaveRequest{}, err
	}
	return s.memStore.ApproveRequest(ctx, tenantID, id, approverID, at)
}

func TestResolveLosingRaceIsConflict(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t, bobActor, TypeCasual, "2026-03-10", "2026-03-10")
	f.svc.Store = raceStore{f.store}

	_, err := f.svc.Resolve(context.Background(), aliceActor, req.ID, StatusApproved, "")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, StatusRejected, conflict.Status)
}

func TestPendingApprovalsScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bobReq := f.submit(t, bobActor, TypeAnnual, "2026-03-10", "2026-03-20")
	aliceReq := f.submit(t, aliceActor, TypeCasual, "2026-03-10", "2026-03-10")
	carolReq := f.submit(t, carolActor, TypeCasual, "2026-03-11", "2026-03-11")

	items, err := f.svc.PendingApprovals(ctx, managerActor)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, bobReq.ID, items[0].Request.ID)
	assert.Equal(t, aliceReq.ID, items[1].Request.ID)
	assert.Len(t, items[0].RiskFlags, 1)

	items, err = f.svc.PendingApprovals(ctx, aliceActor)
	require.NoError(t, err)
	require.Len(t, items, 1, "own request is excluded")
	assert.Equal(t, bobReq.ID, items[0].Request.ID)

	items, err = f.svc.PendingApprovals(ctx, hrActor)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, carolReq.ID, items[2].Request.ID)

	_, err = f.svc.PendingApprovals(ctx, bobActor)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPendingCountUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, bobActor, TypeCasual, "2026-03-10", "2026-03-10")

	n, err := f.svc.PendingCount(ctx, aliceActor)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.cache.counts[testTenant+"/u-alice"])

	f.cache.counts[testTenant+"/u-alice"] = 7
	n, err = f.svc.PendingCount(ctx, aliceActor)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	f.submit(t, bobActor, TypeCasual, "2026-03-12", "2026-03-12")
	n, err = f.svc.PendingCount(ctx, aliceActor)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// submitDuringCount lands a submission while the approval queue is being
// counted.
type submitDuringCount struct {
	*memStore
	cache *countingCache
}

func (s submitDuringCount) ListPending(ctx context.Context, tenantID string, employeeIDs []string) ([]LeaveRequest, error) {
	out, err := s.memStore.ListPending(ctx, tenantID, employeeIDs)
	s.cache.InvalidatePendingCounts(ctx, tenantID)
	return out, err
}

func TestPendingCountComputedBeforeInvalidationIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, bobActor, TypeCasual, "2026-03-10", "2026-03-10")
	f.svc.Store = submitDuringCount{memStore: f.store, cache: f.cache}

	n, err := f.svc.PendingCount(ctx, aliceActor)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, cached := f.cache.counts[testTenant+"/u-alice"]
	assert.False(t, cached, "a count older than the last invalidation must not be cached")
}

func TestTodayStatusAndHeatmap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, bobActor, TypeSick, "2026-03-10", "2026-03-11")
	_, err := f.svc.Resolve(ctx, aliceActor, req.ID, StatusApproved, "")
	require.NoError(t, err)

	st, err := f.svc.TodayStatus(ctx, managerActor, "emp-bob", day("2026-03-11"))
	require.NoError(t, err)
	assert.True(t, st.OnLeave)
	assert.Equal(t, TypeSick, st.LeaveType)

	st, err = f.svc.TodayStatus(ctx, bobActor, "", day("2026-03-12"))
	require.NoError(t, err)
	assert.False(t, st.OnLeave)

	_, err = f.svc.TodayStatus(ctx, carolActor, "emp-bob", day("2026-03-11"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	hm, err := f.svc.TeamHeatmap(ctx, managerActor, day("2026-03-09"), 7)
	require.NoError(t, err)
	require.Len(t, hm.Rows, 2)
	for _, row := range hm.Rows {
		if row.EmployeeID == "emp-bob" {
			assert.Equal(t, []string{"", TypeSick, TypeSick, "", "", "", ""}, row.Days)
		}
	}

	_, err = f.svc.TeamHeatmap(ctx, managerActor, day("2026-03-09"), 90)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCatalogConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateType(ctx, testTenant, LeaveType{Key: TypeAnnual, Name: "Dup", AccrualRate: AccrualYearly})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.CreateType(ctx, testTenant, LeaveType{Key: "Study", AnnualQuota: -1, AccrualRate: "Weekly"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)

	created, err := f.svc.CreateType(ctx, testTenant, LeaveType{Key: "Study", Name: "Study Leave", AnnualQuota: 4, AccrualRate: AccrualQuarterly})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxContinuousDays, created.MaxContinuousDays)

	f.submit(t, bobActor, TypeCasual, "2026-03-10", "2026-03-10")
	err = f.svc.DeleteType(ctx, testTenant, TypeCasual)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, f.svc.DeleteType(ctx, testTenant, "Study"))
	assert.ErrorIs(t, f.svc.DeleteType(ctx, testTenant, "Study"), ErrNotFound)
}

func TestAdjustBalanceRequiresHR(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adj := Adjustment{EmployeeID: "emp-bob", Year: 2026, LeaveType: TypeAnnual, Delta: dec("1.5"), Reason: "carry over"}

	_, err := f.svc.AdjustBalance(ctx, managerActor, adj)
	assert.ErrorIs(t, err, ErrUnauthorized)

	b, err := f.svc.AdjustBalance(ctx, hrActor, adj)
	require.NoError(t, err)
	assert.True(t, b.For(TypeAnnual).Equal(dec("1.5")))
	require.Len(t, f.store.adjusted, 1)
	assert.Equal(t, "u-hr", f.store.adjusted[0].ActorID)

	adj.Delta = decimal.Zero
	_, err = f.svc.AdjustBalance(ctx, hrActor, adj)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRunAccrualsIsIdempotentPerPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Now = func() time.Time { return time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC) }

	first, err := f.svc.RunAccruals(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Skipped)
	assert.Equal(t, 5*first.TypesProcessed, first.EmployeesCredited)

	second, err := f.svc.RunAccruals(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, first.TypesProcessed, second.Skipped)
	assert.Zero(t, second.EmployeesCredited)

	b, err := f.svc.GetBalance(ctx, bobActor, "", 2026)
	require.NoError(t, err)
	assert.True(t, b.For(TypeAnnual).Equal(dec("1")), "monthly annual credit: %s", b.For(TypeAnnual))
	assert.True(t, b.For(TypeSick).Equal(dec("10")))
	assert.True(t, b.For(TypeLossOfPay).IsZero())
}
