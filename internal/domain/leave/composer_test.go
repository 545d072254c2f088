package leave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSubmitter struct {
	err     error
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (s *stubSubmitter) SubmitRequest(ctx context.Context, d Draft) (LeaveRequest, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return LeaveRequest{}, s.err
	}
	return LeaveRequest{ID: "req-1", LeaveType: d.LeaveType, Status: StatusPending}, nil
}

func readyComposer(t *testing.T) *Composer {
	t.Helper()
	c := NewComposer(Balance{Values: map[string]decimal.Decimal{TypeAnnual: dec("2")}}, "Dana Manager")
	c.SetBasics(Basics{
		LeaveType: TypeAnnual,
		StartDate: day("2026-03-10"),
		EndDate:   day("2026-03-12"),
		Reason:    "family trip",
	})
	require.NoError(t, c.Next())
	require.NoError(t, c.Next())
	require.Equal(t, StepReview, c.Step())
	return c
}

func TestComposerBasicsGuard(t *testing.T) {
	c := NewComposer(Balance{}, "")
	err := c.Next()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
	assert.Equal(t, StepBasics, c.Step())

	c.Back()
	assert.Equal(t, StepBasics, c.Step())
}

func TestComposerTypeChangeResetsDetail(t *testing.T) {
	c := NewComposer(Balance{}, "")
	c.SetBasics(Basics{LeaveType: TypeSick})
	require.NoError(t, c.SetPolicyDetail(SickDetail{ReportedVia: ReportedCall, ReportedAt: "08:45"}))
	assert.Equal(t, "must be before 09:30", c.Hint())

	c.SetBasics(Basics{LeaveType: TypeMarriage})
	assert.Equal(t, MarriageDetail{}, c.Draft().PolicyDetail)
	assert.Empty(t, c.Hint())

	err := c.SetPolicyDetail(SickDetail{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestComposerReviewProjects(t *testing.T) {
	c := readyComposer(t)
	r, err := c.Review()
	require.NoError(t, err)
	assert.True(t, r.Projection.Days.Equal(dec("3")))
	assert.True(t, r.Projection.Projected.Equal(dec("-1")))
	assert.True(t, r.Projection.LOPWarning)
	assert.Equal(t, "Dana Manager", r.Recipient)
	assert.NotEmpty(t, r.Warnings)
}

func TestComposerSubmitOnlyFromReview(t *testing.T) {
	c := NewComposer(Balance{}, "")
	_, err := c.Submit(context.Background(), &stubSubmitter{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestComposerClearedBasicsBlockSubmit(t *testing.T) {
	c := readyComposer(t)
	c.SetBasics(Basics{LeaveType: TypeAnnual})
	assert.Equal(t, StepBasics, c.Step())

	sub := &stubSubmitter{}
	_, err := c.Submit(context.Background(), sub)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, sub.calls)
}

func TestComposerSubmitRechecksBasics(t *testing.T) {
	c := readyComposer(t)
	c.mu.Lock()
	c.draft.Reason = "   "
	c.mu.Unlock()

	sub := &stubSubmitter{}
	_, err := c.Submit(context.Background(), sub)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "reason", verr.Fields[0].Field)
	assert.Zero(t, sub.calls)
	assert.Equal(t, StepBasics, c.Step())
}

func TestComposerSubmitSuccessResets(t *testing.T) {
	c := readyComposer(t)
	req, err := c.Submit(context.Background(), &stubSubmitter{})
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, StepBasics, c.Step())
	assert.Empty(t, c.Draft().Reason)
}

func TestComposerSubmitFailureKeepsDraft(t *testing.T) {
	c := readyComposer(t)
	_, err := c.Submit(context.Background(), &stubSubmitter{err: &NetworkError{Err: errors.New("dial tcp: refused")}})
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, StepReview, c.Step())
	assert.Equal(t, "family trip", c.Draft().Reason)
}

func TestComposerRejectsConcurrentSubmit(t *testing.T) {
	c := readyComposer(t)
	sub := &stubSubmitter{release: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), sub)
		done <- err
	}()

	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.calls == 1
	}, time.Second, 5*time.Millisecond)

	_, err := c.Submit(context.Background(), sub)
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	close(sub.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, sub.calls)
}
