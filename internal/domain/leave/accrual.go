package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"neon/internal/domain/core"
)

// AccrualPeriod returns the period key and the credit for one run of rate.
// Monthly credits a twelfth of the quota, quarterly a quarter, yearly all of it.
func AccrualPeriod(rate AccrualRate, quota int, now time.Time) (string, decimal.Decimal, bool) {
	q := decimal.NewFromInt(int64(quota))
	switch rate {
	case AccrualMonthly:
		return fmt.Sprintf("%d-M%02d", now.Year(), int(now.Month())), q.DivRound(decimal.NewFromInt(12), 2), true
	case AccrualQuarterly:
		quarter := (int(now.Month())-1)/3 + 1
		return fmt.Sprintf("%d-Q%d", now.Year(), quarter), q.DivRound(decimal.NewFromInt(4), 2), true
	case AccrualYearly:
		return fmt.Sprintf("%d", now.Year()), q, true
	default:
		return "", decimal.Zero, false
	}
}

// ApplyAccruals credits every accruing leave type to all active employees of
// the tenant. Periods already credited are skipped, so repeated runs are safe.
func ApplyAccruals(ctx context.Context, store StoreAPI, dir core.Directory, metrics TransitionRecorder, tenantID string, now time.Time) (AccrualSummary, error) {
	var summary AccrualSummary

	types, err := store.ListTypes(ctx, tenantID)
	if err != nil {
		return summary, ClassifyStoreError(err)
	}
	employees, err := dir.ActiveEmployees(ctx, tenantID)
	if err != nil {
		return summary, ClassifyStoreError(err)
	}
	ids := make([]string, 0, len(employees))
	for _, e := range employees {
		ids = append(ids, e.ID)
	}

	for _, t := range types {
		if t.AnnualQuota <= 0 || t.Key == TypeLossOfPay {
			continue
		}
		period, amount, ok := AccrualPeriod(t.AccrualRate, t.AnnualQuota, now)
		if !ok || amount.IsZero() {
			continue
		}
		summary.TypesProcessed++

		applied, err := store.ApplyAccrual(ctx, tenantID, AccrualGrant{
			LeaveType:   t.Key,
			Period:      period,
			Year:        now.Year(),
			Amount:      amount,
			EmployeeIDs: ids,
		})
		if err != nil {
			return summary, ClassifyStoreError(err)
		}
		if !applied {
			summary.Skipped++
			continue
		}
		summary.EmployeesCredited += len(ids)
		metrics.AccrualCredited(t.Key, len(ids))
		zap.L().Info("leave accrual applied",
			zap.String("tenant_id", tenantID),
			zap.String("leave_type", t.Key),
			zap.String("period", period),
			zap.String("amount", amount.String()),
			zap.Int("employees", len(ids)),
		)
	}
	return summary, nil
}
