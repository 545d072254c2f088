package leave

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MaxAttachments = 5

	dayMillis = 86400000
)

var halfDay = decimal.RequireFromString("0.5")

// DaysCount returns 0.5 for a half day, otherwise the inclusive count of
// calendar days. Only the calendar day of each bound counts.
func DaysCount(start, end time.Time, isHalfDay bool) (decimal.Decimal, error) {
	if start.IsZero() || end.IsZero() {
		return decimal.Zero, invalid("startDate", "start and end dates are required")
	}
	start, end = dateOnly(start), dateOnly(end)
	if end.Before(start) {
		return decimal.Zero, invalid("endDate", "must not be before startDate")
	}
	if isHalfDay {
		return halfDay, nil
	}
	diff := end.Sub(start).Milliseconds()
	days := diff / dayMillis
	if diff%dayMillis != 0 {
		days++
	}
	return decimal.NewFromInt(days + 1), nil
}

// ValidateDraft checks a draft against the catalog and collects every issue.
func ValidateDraft(catalog Catalog, d Draft) error {
	v := &ValidationError{}
	if _, ok := catalog.Lookup(d.LeaveType); !ok {
		v.Add("leaveType", "unknown leave type")
	}
	if d.StartDate.IsZero() {
		v.Add("startDate", "is required")
	}
	if d.EndDate.IsZero() {
		v.Add("endDate", "is required")
	}
	if !d.StartDate.IsZero() && !d.EndDate.IsZero() && dateOnly(d.EndDate).Before(dateOnly(d.StartDate)) {
		v.Add("endDate", "must not be before startDate")
	}
	if strings.TrimSpace(d.Reason) == "" {
		v.Add("reason", "is required")
	}
	if len(d.Attachments) > MaxAttachments {
		v.Add("attachments", "at most 5 attachments are allowed")
	}
	if !detailMatches(d.LeaveType, d.PolicyDetail) {
		v.Add("policyDetail", "does not match the leave type")
	} else {
		d.PolicyDetail.validate(v)
	}
	return v.OrNil()
}

type Review struct {
	Draft      Draft      `json:"draft"`
	Projection Projection `json:"projection"`
	Warnings   []string   `json:"warnings"`
	Recipient  string     `json:"recipient"`
}

// BuildReview computes the read-only summary shown before submission.
func BuildReview(d Draft, b Balance, recipient string) (Review, error) {
	d = d.onCalendarDays()
	days, err := DaysCount(d.StartDate, d.EndDate, d.IsHalfDay)
	if err != nil {
		return Review{}, err
	}
	p := Project(b, d.LeaveType, days)
	warnings := DetailWarnings(d.PolicyDetail)
	if p.LOPWarning {
		warnings = append(warnings, "balance will go negative; the excess is charged as loss of pay")
	}
	return Review{Draft: d, Projection: p, Warnings: warnings, Recipient: recipient}, nil
}

const (
	FlagLongLeave = "Long Leave"
	FlagHighLOP   = "High LOP"

	longLeaveThreshold = 5
	highLOPThreshold   = 15
)

func RiskFlags(days decimal.Decimal) []RiskFlag {
	flags := []RiskFlag{}
	if days.GreaterThan(decimal.NewFromInt(longLeaveThreshold)) {
		flags = append(flags, RiskFlag{Type: FlagLongLeave, Message: "more than 5 days requested"})
	}
	if days.GreaterThan(decimal.NewFromInt(highLOPThreshold)) {
		flags = append(flags, RiskFlag{Type: FlagHighLOP, Message: "needs HR and Manager review"})
	}
	return flags
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Covers reports whether the request spans the given calendar day.
func Covers(r LeaveRequest, day time.Time) bool {
	d := dateOnly(day)
	return !d.Before(dateOnly(r.StartDate)) && !d.After(dateOnly(r.EndDate))
}
