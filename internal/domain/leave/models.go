package leave

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Day counts and balances travel as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type Status string

const (
	StatusPending   Status = "Pending"
	StatusApproved  Status = "Approved"
	StatusRejected  Status = "Rejected"
	StatusCancelled Status = "Cancelled"
)

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

var transitions = map[Status][]Status{
	StatusPending: {StatusApproved, StatusRejected, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type LeaveRequest struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenantId"`
	EmployeeID      string          `json:"employeeId"`
	UserID          string          `json:"userId,omitempty"`
	EmployeeName    string          `json:"employeeName,omitempty"`
	LeaveType       string          `json:"leaveType"`
	StartDate       time.Time       `json:"startDate"`
	EndDate         time.Time       `json:"endDate"`
	IsHalfDay       bool            `json:"isHalfDay"`
	DaysCount       decimal.Decimal `json:"daysCount"`
	IsEmergency     bool            `json:"isEmergency"`
	IsLossOfPay     bool            `json:"isLossOfPay"`
	ReasonCategory  string          `json:"reasonCategory,omitempty"`
	Reason          string          `json:"reason"`
	Attachments     []string        `json:"attachments"`
	PolicyDetail    PolicyDetail    `json:"-"`
	Status          Status          `json:"status"`
	ApproverID      string          `json:"approverId,omitempty"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
	ResolvedAt      *time.Time      `json:"resolvedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type leaveRequestAlias LeaveRequest

type leaveRequestWire struct {
	leaveRequestAlias
	Detail DetailEnvelope `json:"policyDetail"`
}

func (r LeaveRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(leaveRequestWire{
		leaveRequestAlias: leaveRequestAlias(r),
		Detail:            EnvelopeOf(r.PolicyDetail),
	})
}

func (r *LeaveRequest) UnmarshalJSON(data []byte) error {
	var wire leaveRequestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	detail, err := wire.Detail.Detail()
	if err != nil {
		return err
	}
	*r = LeaveRequest(wire.leaveRequestAlias)
	r.PolicyDetail = detail
	return nil
}

// Draft is the submission payload the composer accumulates.
type Draft struct {
	LeaveType      string       `json:"leaveType"`
	StartDate      time.Time    `json:"startDate"`
	EndDate        time.Time    `json:"endDate"`
	IsHalfDay      bool         `json:"isHalfDay"`
	IsEmergency    bool         `json:"isEmergency"`
	ReasonCategory string       `json:"reasonCategory"`
	Reason         string       `json:"reason"`
	Attachments    []string     `json:"attachments"`
	PolicyDetail   PolicyDetail `json:"-"`
}

type draftAlias Draft

type draftWire struct {
	draftAlias
	Detail *DetailEnvelope `json:"policyDetail,omitempty"`
}

func (d Draft) MarshalJSON() ([]byte, error) {
	env := EnvelopeOf(d.PolicyDetail)
	return json.Marshal(draftWire{draftAlias: draftAlias(d), Detail: &env})
}

// draftInput reads dates as text so both calendar dates and timestamps are
// accepted.
type draftInput struct {
	draftAlias
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	Detail    *DetailEnvelope `json:"policyDetail,omitempty"`
}

// UnmarshalJSON keeps only the calendar day of each date and falls back to
// the default detail for the leave type when the payload carries none.
func (d *Draft) UnmarshalJSON(data []byte) error {
	var wire draftInput
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	v := &ValidationError{}
	start := parseDraftDate("startDate", wire.StartDate, v)
	end := parseDraftDate("endDate", wire.EndDate, v)
	if err := v.OrNil(); err != nil {
		return err
	}
	*d = Draft(wire.draftAlias)
	d.StartDate = start
	d.EndDate = end
	if wire.Detail == nil || wire.Detail.Kind == "" {
		d.PolicyDetail = DetailFor(d.LeaveType)
		return nil
	}
	detail, err := wire.Detail.Detail()
	if err != nil {
		return err
	}
	d.PolicyDetail = detail
	return nil
}

type RiskFlag struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type QueueItem struct {
	Request   LeaveRequest `json:"request"`
	RiskFlags []RiskFlag   `json:"riskFlags"`
}

type TodayStatus struct {
	EmployeeID string    `json:"employeeId"`
	Date       time.Time `json:"date"`
	OnLeave    bool      `json:"onLeave"`
	LeaveType  string    `json:"leaveType,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
}

type HeatmapRow struct {
	EmployeeID string   `json:"employeeId"`
	Name       string   `json:"name"`
	Days       []string `json:"days"`
}

type Heatmap struct {
	From time.Time    `json:"from"`
	Days int          `json:"days"`
	Rows []HeatmapRow `json:"rows"`
}

type AccrualSummary struct {
	TypesProcessed    int `json:"typesProcessed"`
	EmployeesCredited int `json:"employeesCredited"`
	Skipped           int `json:"skipped"`
}

// AccrualGrant credits Amount to every listed employee once per period.
type AccrualGrant struct {
	LeaveType   string
	Period      string
	Year        int
	Amount      decimal.Decimal
	EmployeeIDs []string
}
