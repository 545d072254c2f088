package leave

import "github.com/shopspring/decimal"

// Balance is the per-type remaining day count for one employee and year.
// Keys missing from Values read as zero.
type Balance struct {
	EmployeeID string                     `json:"employeeId"`
	Year       int                        `json:"year"`
	Values     map[string]decimal.Decimal `json:"values"`
}

func (b Balance) For(leaveType string) decimal.Decimal {
	if b.Values == nil {
		return decimal.Zero
	}
	return b.Values[leaveType]
}

// Adjustment is a manual credit or debit against a balance.
type Adjustment struct {
	EmployeeID string          `json:"employeeId" validate:"required"`
	Year       int             `json:"year" validate:"required,gte=2000,lte=2100"`
	LeaveType  string          `json:"leaveType" validate:"required"`
	Delta      decimal.Decimal `json:"delta"`
	Reason     string          `json:"reason" validate:"required,max=500"`
	ActorID    string          `json:"-"`
}

// Projection is the effect a draft would have on one balance line.
type Projection struct {
	Current    decimal.Decimal `json:"currentBalance"`
	Days       decimal.Decimal `json:"daysCount"`
	Projected  decimal.Decimal `json:"projectedBalance"`
	LOPWarning bool            `json:"lopWarning"`
}

// Project subtracts days from the remaining balance of leaveType. The result
// may be negative; that only raises a warning for paid types.
func Project(b Balance, leaveType string, days decimal.Decimal) Projection {
	current := b.For(leaveType)
	projected := current.Sub(days)
	return Projection{
		Current:    current,
		Days:       days,
		Projected:  projected,
		LOPWarning: projected.IsNegative() && leaveType != TypeLossOfPay,
	}
}

// SplitApproval divides days into the part covered by the remaining balance
// and the part charged to LossOfPay.
func SplitApproval(leaveType string, days, remaining decimal.Decimal) (paid, lop decimal.Decimal) {
	if leaveType == TypeLossOfPay {
		return decimal.Zero, days
	}
	paid = decimal.Min(decimal.Max(remaining, decimal.Zero), days)
	return paid, days.Sub(paid)
}
