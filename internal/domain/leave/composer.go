package leave

import (
	"context"
	"strings"
	"sync"
	"time"
)

type Step int

const (
	StepBasics Step = iota + 1
	StepPolicyDetail
	StepReview
)

func (s Step) String() string {
	switch s {
	case StepBasics:
		return "Basics"
	case StepPolicyDetail:
		return "PolicyDetail"
	case StepReview:
		return "Review"
	default:
		return "Unknown"
	}
}

// BalanceSource reads the balance the composer projects against.
type BalanceSource interface {
	FetchBalance(ctx context.Context, employeeID string, year int) (Balance, error)
}

// Submitter persists a reviewed draft.
type Submitter interface {
	SubmitRequest(ctx context.Context, d Draft) (LeaveRequest, error)
}

type Basics struct {
	LeaveType      string
	StartDate      time.Time
	EndDate        time.Time
	IsHalfDay      bool
	IsEmergency    bool
	ReasonCategory string
	Reason         string
}

// Composer drives a single draft through Basics, PolicyDetail and Review.
// It holds no persistent state; dropping it discards the draft.
type Composer struct {
	mu         sync.Mutex
	step       Step
	draft      Draft
	balance    Balance
	recipient  string
	submitting bool
}

func NewComposer(balance Balance, recipient string) *Composer {
	return &Composer{
		step:      StepBasics,
		draft:     emptyDraft(),
		balance:   balance,
		recipient: recipient,
	}
}

// OpenComposer fetches a fresh balance for the year and starts a composer.
func OpenComposer(ctx context.Context, src BalanceSource, employeeID string, year int, recipient string) (*Composer, error) {
	b, err := src.FetchBalance(ctx, employeeID, year)
	if err != nil {
		return nil, err
	}
	return NewComposer(b, recipient), nil
}

func emptyDraft() Draft {
	return Draft{LeaveType: TypeAnnual, PolicyDetail: DetailFor(TypeAnnual)}
}

func (c *Composer) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	d.Attachments = append([]string(nil), c.draft.Attachments...)
	return d
}

// SetBasics replaces the first-step fields. A change of leave type resets the
// policy detail to the new type's empty variant. Edits that leave the basics
// incomplete send a later step back to Basics.
func (c *Composer) SetBasics(b Basics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.LeaveType != c.draft.LeaveType {
		c.draft.PolicyDetail = DetailFor(b.LeaveType)
	}
	c.draft.LeaveType = b.LeaveType
	c.draft.StartDate = b.StartDate
	c.draft.EndDate = b.EndDate
	c.draft.IsHalfDay = b.IsHalfDay
	c.draft.IsEmergency = b.IsEmergency
	c.draft.ReasonCategory = b.ReasonCategory
	c.draft.Reason = b.Reason
	if c.step > StepBasics && basicsComplete(c.draft) != nil {
		c.step = StepBasics
	}
}

// basicsComplete is the exit guard of the first step.
func basicsComplete(d Draft) error {
	v := &ValidationError{}
	if d.StartDate.IsZero() {
		v.Add("startDate", "is required")
	}
	if d.EndDate.IsZero() {
		v.Add("endDate", "is required")
	}
	if strings.TrimSpace(d.Reason) == "" {
		v.Add("reason", "is required")
	}
	return v.OrNil()
}

func (c *Composer) SetPolicyDetail(d PolicyDetail) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !detailMatches(c.draft.LeaveType, d) {
		return invalid("policyDetail", "does not match the leave type")
	}
	c.draft.PolicyDetail = d
	return nil
}

func (c *Composer) SetAttachments(refs []string) error {
	if len(refs) > MaxAttachments {
		return invalid("attachments", "at most 5 attachments are allowed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Attachments = append([]string(nil), refs...)
	return nil
}

// Hint is the guidance shown on the policy detail step, if any.
func (c *Composer) Hint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft.LeaveType == TypeSick {
		return "must be before " + SickReportCutoff
	}
	return ""
}

func (c *Composer) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.step {
	case StepBasics:
		if err := basicsComplete(c.draft); err != nil {
			return err
		}
		c.step = StepPolicyDetail
	case StepPolicyDetail:
		c.step = StepReview
	}
	return nil
}

func (c *Composer) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step > StepBasics {
		c.step--
	}
}

// Review projects the current draft against the balance snapshot.
func (c *Composer) Review() (Review, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return BuildReview(c.draft, c.balance, c.recipient)
}

// Submit sends the draft once. The composer resets on success and keeps the
// draft and step on failure so the user can retry.
func (c *Composer) Submit(ctx context.Context, sub Submitter) (LeaveRequest, error) {
	c.mu.Lock()
	if c.step != StepReview {
		c.mu.Unlock()
		return LeaveRequest{}, invalid("step", "submit is only allowed from Review")
	}
	if c.submitting {
		c.mu.Unlock()
		return LeaveRequest{}, ErrSubmitInFlight
	}
	if err := basicsComplete(c.draft); err != nil {
		c.step = StepBasics
		c.mu.Unlock()
		return LeaveRequest{}, err
	}
	c.submitting = true
	draft := c.draft
	c.mu.Unlock()

	req, err := sub.SubmitRequest(ctx, draft)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if err != nil {
		return LeaveRequest{}, err
	}
	c.step = StepBasics
	c.draft = emptyDraft()
	return req, nil
}
