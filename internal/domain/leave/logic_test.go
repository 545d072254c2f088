package leave

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"neon/internal/domain/auth"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDaysCount(t *testing.T) {
	cases := []struct {
		name    string
		start   time.Time
		end     time.Time
		half    bool
		want    string
		wantErr bool
	}{
		{name: "single day", start: day("2026-03-10"), end: day("2026-03-10"), want: "1"},
		{name: "inclusive range", start: day("2026-03-10"), end: day("2026-03-12"), want: "3"},
		{name: "half day ignores span", start: day("2026-03-10"), end: day("2026-03-12"), half: true, want: "0.5"},
		{name: "time of day is ignored", start: day("2026-03-10"), end: day("2026-03-11").Add(12 * time.Hour), want: "2"},
		{name: "offset keeps its calendar day", start: time.Date(2026, 11, 10, 0, 0, 0, 0, time.FixedZone("IST", 5*3600+1800)), end: day("2026-11-10"), want: "1"},
		{name: "late start same day", start: day("2026-03-10").Add(23 * time.Hour), end: day("2026-03-10").Add(time.Hour), want: "1"},
		{name: "end before start", start: day("2026-03-12"), end: day("2026-03-10"), wantErr: true},
		{name: "missing date", start: time.Time{}, end: day("2026-03-10"), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DaysCount(tc.start, tc.end, tc.half)
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("expected %s days, got %s", tc.want, got)
			}
		})
	}
}

func TestProjectWarnsOnlyForPaidTypes(t *testing.T) {
	b := Balance{Values: map[string]decimal.Decimal{TypeAnnual: dec("2")}}

	p := Project(b, TypeAnnual, dec("3"))
	if !p.Projected.Equal(dec("-1")) || !p.LOPWarning {
		t.Fatalf("expected -1 with warning, got %+v", p)
	}

	p = Project(b, TypeAnnual, dec("0.5"))
	if !p.Projected.Equal(dec("1.5")) || p.LOPWarning {
		t.Fatalf("expected 1.5 without warning, got %+v", p)
	}

	p = Project(b, TypeLossOfPay, dec("4"))
	if !p.Projected.Equal(dec("-4")) || p.LOPWarning {
		t.Fatalf("loss of pay never warns, got %+v", p)
	}
}

func TestSplitApproval(t *testing.T) {
	cases := []struct {
		leaveType string
		days      string
		remaining string
		paid      string
		lop       string
	}{
		{TypeAnnual, "3", "5", "3", "0"},
		{TypeAnnual, "3", "1", "1", "2"},
		{TypeAnnual, "2", "-1", "0", "2"},
		{TypeAnnual, "0.5", "0.5", "0.5", "0"},
		{TypeLossOfPay, "4", "0", "0", "4"},
	}
	for _, tc := range cases {
		paid, lop := SplitApproval(tc.leaveType, dec(tc.days), dec(tc.remaining))
		if !paid.Equal(dec(tc.paid)) || !lop.Equal(dec(tc.lop)) {
			t.Fatalf("%s %s days against %s: expected paid=%s lop=%s, got paid=%s lop=%s",
				tc.leaveType, tc.days, tc.remaining, tc.paid, tc.lop, paid, lop)
		}
	}
}

func TestRiskFlags(t *testing.T) {
	if flags := RiskFlags(dec("5")); len(flags) != 0 {
		t.Fatalf("five days is not long leave, got %+v", flags)
	}
	flags := RiskFlags(dec("6"))
	if len(flags) != 1 || flags[0].Type != FlagLongLeave {
		t.Fatalf("expected only Long Leave, got %+v", flags)
	}
	flags = RiskFlags(dec("15"))
	if len(flags) != 1 || flags[0].Type != FlagLongLeave {
		t.Fatalf("fifteen days is long leave but not high LOP, got %+v", flags)
	}
	flags = RiskFlags(dec("16"))
	if len(flags) != 2 || flags[1].Type != FlagHighLOP {
		t.Fatalf("expected Long Leave and High LOP, got %+v", flags)
	}
}

func TestValidateDraftCollectsIssues(t *testing.T) {
	cat := Catalog(DefaultCatalog())
	err := ValidateDraft(cat, Draft{
		LeaveType:    TypeSick,
		StartDate:    day("2026-03-12"),
		EndDate:      day("2026-03-10"),
		Attachments:  []string{"a", "b", "c", "d", "e", "f"},
		PolicyDetail: MarriageDetail{},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"endDate", "reason", "attachments", "policyDetail"} {
		if !fields[want] {
			t.Fatalf("expected issue for %s, got %+v", want, verr.Fields)
		}
	}
}

func TestValidateDraftRejectsUnknownType(t *testing.T) {
	err := ValidateDraft(Catalog(DefaultCatalog()), Draft{
		LeaveType:    "Sabbatical",
		StartDate:    day("2026-03-10"),
		EndDate:      day("2026-03-10"),
		Reason:       "rest",
		PolicyDetail: NoDetail{},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSickReportWarning(t *testing.T) {
	if w := DetailWarnings(SickDetail{ReportedVia: ReportedCall, ReportedAt: "09:15"}); len(w) != 0 {
		t.Fatalf("expected no warning before cutoff, got %v", w)
	}
	if w := DetailWarnings(SickDetail{ReportedVia: ReportedCall, ReportedAt: "9:10"}); len(w) != 0 {
		t.Fatalf("expected single digit hour before cutoff to pass, got %v", w)
	}
	if w := DetailWarnings(SickDetail{ReportedVia: ReportedEmail, ReportedAt: "10:05"}); len(w) != 1 {
		t.Fatalf("expected one warning after cutoff, got %v", w)
	}
}

func TestAccrualPeriod(t *testing.T) {
	now := time.Date(2026, time.October, 17, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		rate   AccrualRate
		quota  int
		period string
		amount string
	}{
		{AccrualMonthly, 12, "2026-M10", "1"},
		{AccrualMonthly, 10, "2026-M10", "0.83"},
		{AccrualQuarterly, 10, "2026-Q4", "2.5"},
		{AccrualYearly, 7, "2026", "7"},
	}
	for _, tc := range cases {
		period, amount, ok := AccrualPeriod(tc.rate, tc.quota, now)
		if !ok || period != tc.period || !amount.Equal(dec(tc.amount)) {
			t.Fatalf("%s/%d: expected %s %s, got %s %s", tc.rate, tc.quota, tc.period, tc.amount, period, amount)
		}
	}
	if _, _, ok := AccrualPeriod("Weekly", 5, now); ok {
		t.Fatal("expected unknown rate to be rejected")
	}
}

func TestBuildQueueOrdersOldestFirstAndExcludesOwn(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	reqs := []LeaveRequest{
		{ID: "c", EmployeeID: "e2", Status: StatusPending, DaysCount: dec("1"), CreatedAt: base.Add(time.Hour)},
		{ID: "b", EmployeeID: "e3", Status: StatusPending, DaysCount: dec("7"), CreatedAt: base},
		{ID: "a", EmployeeID: "e2", Status: StatusPending, DaysCount: dec("1"), CreatedAt: base},
		{ID: "own", EmployeeID: "mgr", Status: StatusPending, DaysCount: dec("1"), CreatedAt: base.Add(-time.Hour)},
		{ID: "done", EmployeeID: "e2", Status: StatusApproved, DaysCount: dec("1"), CreatedAt: base.Add(-time.Hour)},
	}
	items := BuildQueue(reqs, "mgr")
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	got := []string{items[0].Request.ID, items[1].Request.ID, items[2].Request.ID}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected order %v", got)
	}
	if len(items[1].RiskFlags) != 1 {
		t.Fatalf("expected Long Leave flag on b, got %+v", items[1].RiskFlags)
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusPending, StatusCancelled) {
		t.Fatal("pending requests can be cancelled")
	}
	for _, from := range []Status{StatusApproved, StatusRejected, StatusCancelled} {
		if CanTransition(from, StatusPending) || CanTransition(from, StatusApproved) {
			t.Fatalf("terminal status %s must not transition", from)
		}
	}
}

func TestValidateDraftComparesCalendarDays(t *testing.T) {
	cat := Catalog(DefaultCatalog())
	err := ValidateDraft(cat, Draft{
		LeaveType:    TypeAnnual,
		StartDate:    day("2026-03-10").Add(18 * time.Hour),
		EndDate:      day("2026-03-10").Add(9 * time.Hour),
		Reason:       "dentist",
		PolicyDetail: DetailFor(TypeAnnual),
	})
	if err != nil {
		t.Fatalf("same calendar day must pass, got %v", err)
	}
}

func TestDraftAcceptsCalendarDates(t *testing.T) {
	var d Draft
	body := `{"leaveType":"Annual","startDate":"2026-11-02","endDate":"2026-11-04T12:00:00Z","reason":"trip"}`
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.StartDate.Equal(day("2026-11-02")) || !d.EndDate.Equal(day("2026-11-04")) {
		t.Fatalf("expected 2026-11-02..2026-11-04, got %s..%s", d.StartDate, d.EndDate)
	}
	if _, ok := d.PolicyDetail.(NoDetail); !ok {
		t.Fatalf("expected the default detail, got %T", d.PolicyDetail)
	}

	d = Draft{}
	body = `{"leaveType":"Annual","startDate":"2026-11-10T00:00:00+05:30","endDate":"2026-11-10","reason":"trip"}`
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.StartDate.Equal(day("2026-11-10")) {
		t.Fatalf("offset date must keep its calendar day, got %s", d.StartDate)
	}
}

func TestDraftRejectsMalformedDates(t *testing.T) {
	var d Draft
	err := json.Unmarshal([]byte(`{"leaveType":"Annual","startDate":"02/11/2026","endDate":"soon","reason":"trip"}`), &d)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	if !fields["startDate"] || !fields["endDate"] {
		t.Fatalf("expected startDate and endDate issues, got %+v", verr.Fields)
	}
}

func TestLifecycleChecksFollowTransitions(t *testing.T) {
	hr := auth.UserContext{UserID: "u-hr", RoleName: auth.RoleHR}
	for _, status := range []Status{StatusPending, StatusApproved, StatusRejected, StatusCancelled} {
		req := LeaveRequest{ID: "r1", EmployeeID: "emp-1", Status: status}
		for _, decision := range []Status{StatusApproved, StatusRejected} {
			err := CheckResolve(hr, "", req, decision, false)
			if CanTransition(status, decision) != (err == nil) {
				t.Fatalf("resolve %s -> %s: table says %v, check returned %v", status, decision, CanTransition(status, decision), err)
			}
			if err != nil && !errors.Is(err, ErrConflict) {
				t.Fatalf("resolve %s -> %s: expected conflict, got %v", status, decision, err)
			}
		}
		err := CheckCancel("emp-1", req)
		if CanTransition(status, StatusCancelled) != (err == nil) {
			t.Fatalf("cancel from %s: table says %v, check returned %v", status, CanTransition(status, StatusCancelled), err)
		}
		if err != nil && !errors.Is(err, ErrConflict) {
			t.Fatalf("cancel from %s: expected conflict, got %v", status, err)
		}
	}
	// A pending request cannot be "resolved" back to Pending.
	if err := CheckResolve(hr, "", LeaveRequest{ID: "r1", Status: StatusPending}, StatusPending, false); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
