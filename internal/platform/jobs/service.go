package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

const JobLeaveAccrual = "leave_accrual"

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunLog persists one row per job execution.
type RunLog interface {
	StartRun(ctx context.Context, tenantID, jobType string) (string, error)
	FinishRun(ctx context.Context, runID, status string, details []byte) error
}

type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// AccrualFunc credits one tenant's balances and returns a summary.
type AccrualFunc func(ctx context.Context, tenantID string) (any, error)

type Service struct {
	Runs            RunLog
	Tenants         TenantLister
	Accrue          AccrualFunc
	AccrualInterval time.Duration

	queue chan job
	wg    sync.WaitGroup
}

type job struct {
	Type     string
	TenantID string
	Run      func(context.Context) (any, error)
}

func New(runs RunLog, tenants TenantLister, accrue AccrualFunc, accrualInterval time.Duration) *Service {
	return &Service{
		Runs:            runs,
		Tenants:         tenants,
		Accrue:          accrue,
		AccrualInterval: accrualInterval,
		queue:           make(chan job, 128),
	}
}

// Start launches the single worker and the accrual ticker. Both stop when ctx
// is cancelled; Wait blocks until they have.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
	if s.AccrualInterval > 0 && s.Accrue != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.scheduleAccruals(ctx, s.AccrualInterval)
		}()
	}
}

func (s *Service) Wait() {
	s.wg.Wait()
}

// Enqueue drops the job with a warning when the queue is full.
func (s *Service) Enqueue(jobType, tenantID string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, TenantID: tenantID, Run: run}:
		return true
	default:
		zap.L().Warn("job queue full", zap.String("job_type", jobType), zap.String("tenant_id", tenantID))
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, TenantID: tenantID, Run: run})
}

// RunAccrual runs the accrual for one tenant synchronously and logs the run.
func (s *Service) RunAccrual(ctx context.Context, tenantID string) (any, error) {
	return s.RunNow(ctx, JobLeaveAccrual, tenantID, func(ctx context.Context) (any, error) {
		return s.Accrue(ctx, tenantID)
	})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				zap.L().Warn("job run failed", zap.String("job_type", j.Type), zap.String("tenant_id", j.TenantID), zap.Error(err))
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.Runs != nil {
		id, err := s.Runs.StartRun(ctx, j.TenantID, j.Type)
		if err != nil {
			zap.L().Warn("job run insert failed", zap.Error(err))
		}
		runID = id
	}

	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		zap.L().Warn("job details marshal failed", zap.Error(marshalErr))
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.Runs.FinishRun(ctx, runID, status, detailsJSON); updErr != nil {
			zap.L().Warn("job run update failed", zap.Error(updErr))
		}
	}
	return details, err
}

func (s *Service) scheduleAccruals(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueueAccruals(ctx)
		}
	}
}

func (s *Service) enqueueAccruals(ctx context.Context) {
	tenants, err := s.Tenants.ListTenants(ctx)
	if err != nil {
		zap.L().Warn("accrual scheduler tenant lookup failed", zap.Error(err))
		return
	}
	for _, tenantID := range tenants {
		tenant := tenantID
		s.Enqueue(JobLeaveAccrual, tenant, func(ctx context.Context) (any, error) {
			return s.Accrue(ctx, tenant)
		})
	}
}
