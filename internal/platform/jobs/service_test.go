package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRuns struct {
	mu       sync.Mutex
	started  []string
	finished map[string]string
}

func (m *memRuns) StartRun(_ context.Context, tenantID, jobType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, tenantID+"/"+jobType)
	return tenantID + "-run", nil
}

func (m *memRuns) FinishRun(_ context.Context, runID, status string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished == nil {
		m.finished = map[string]string{}
	}
	m.finished[runID] = status
	return nil
}

func (m *memRuns) status(runID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished[runID]
}

type staticTenants []string

func (s staticTenants) ListTenants(context.Context) ([]string, error) { return s, nil }

func TestRunAccrualRecordsOutcome(t *testing.T) {
	runs := &memRuns{}
	svc := New(runs, staticTenants{"t1"}, func(ctx context.Context, tenantID string) (any, error) {
		if tenantID == "bad" {
			return nil, errors.New("boom")
		}
		return map[string]int{"credited": 3}, nil
	}, 0)

	out, err := svc.RunAccrual(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"credited": 3}, out)
	assert.Equal(t, StatusCompleted, runs.status("t1-run"))

	_, err = svc.RunAccrual(context.Background(), "bad")
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, runs.status("bad-run"))
}

func TestSchedulerEnqueuesEveryTenant(t *testing.T) {
	runs := &memRuns{}
	var mu sync.Mutex
	seen := map[string]bool{}
	svc := New(runs, staticTenants{"t1", "t2"}, func(ctx context.Context, tenantID string) (any, error) {
		mu.Lock()
		seen[tenantID] = true
		mu.Unlock()
		return nil, nil
	}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["t1"] && seen["t2"]
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	svc.Wait()
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	svc := New(nil, staticTenants{}, nil, 0)
	noop := func(context.Context) (any, error) { return nil, nil }
	for i := 0; i < cap(svc.queue); i++ {
		require.True(t, svc.Enqueue("x", "t", noop))
	}
	assert.False(t, svc.Enqueue("x", "t", noop))
}
