package leave

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type AccrualRate string

const (
	AccrualMonthly   AccrualRate = "Monthly"
	AccrualQuarterly AccrualRate = "Quarterly"
	AccrualYearly    AccrualRate = "Yearly"
)

const (
	TypeAnnual    = "Annual"
	TypeSick      = "Sick"
	TypeCasual    = "Casual"
	TypeLossOfPay = "LossOfPay"
	TypeMaternity = "Maternity"
	TypeMarriage  = "Marriage"
	TypePaternity = "Paternity"
	TypeFloating  = "Floating"
	TypeHoliday   = "Holiday"
)

const DefaultMaxContinuousDays = 5

type LeaveType struct {
	Key               string      `json:"key" validate:"required,max=32,alphanum"`
	Name              string      `json:"name" validate:"required,max=80"`
	Description       string      `json:"description" validate:"max=500"`
	AnnualQuota       int         `json:"annualQuota" validate:"gte=0,lte=366"`
	IsPaid            bool        `json:"isPaid"`
	AccrualRate       AccrualRate `json:"accrualRate" validate:"required,oneof=Monthly Quarterly Yearly"`
	MaxContinuousDays int         `json:"maxContinuousDays" validate:"gte=0,lte=366"`
	EncashmentAllowed bool        `json:"encashmentAllowed"`
	Color             string      `json:"color" validate:"omitempty,hexcolor"`
	CreatedAt         time.Time   `json:"createdAt"`
}

var (
	ErrDuplicateType = errors.New("leave type already exists")
	ErrTypeInUse     = errors.New("leave type is referenced by requests")
)

// DefaultCatalog is seeded for every new tenant.
func DefaultCatalog() []LeaveType {
	return []LeaveType{
		{Key: TypeAnnual, Name: "Annual Leave", Description: "Planned time off", AnnualQuota: 12, IsPaid: true, AccrualRate: AccrualMonthly, MaxContinuousDays: DefaultMaxContinuousDays, EncashmentAllowed: true, Color: "#3B82F6"},
		{Key: TypeSick, Name: "Sick Leave", Description: "Illness or medical appointments", AnnualQuota: 10, IsPaid: true, AccrualRate: AccrualYearly, MaxContinuousDays: DefaultMaxContinuousDays, Color: "#F43F5E"},
		{Key: TypeCasual, Name: "Casual Leave", Description: "Short personal errands", AnnualQuota: 7, IsPaid: true, AccrualRate: AccrualYearly, MaxContinuousDays: 2, Color: "#F59E0B"},
		{Key: TypeLossOfPay, Name: "Loss of Pay", Description: "Unpaid leave", AnnualQuota: 0, IsPaid: false, AccrualRate: AccrualYearly, MaxContinuousDays: 30, Color: "#94A3B8"},
		{Key: TypeMaternity, Name: "Maternity Leave", Description: "Birth of a child", AnnualQuota: 180, IsPaid: true, AccrualRate: AccrualYearly, MaxContinuousDays: 180, Color: "#A855F7"},
		{Key: TypeMarriage, Name: "Marriage Leave", Description: "Own wedding", AnnualQuota: 5, IsPaid: true, AccrualRate: AccrualYearly, MaxContinuousDays: 5, Color: "#EC4899"},
		{Key: TypePaternity, Name: "Paternity Leave", Description: "Birth of a child", AnnualQuota: 15, IsPaid: true, AccrualRate: AccrualYearly, MaxContinuousDays: 15, Color: "#6366F1"},
		{Key: TypeFloating, Name: "Floating Holiday", Description: "Optional holiday of choice", AnnualQuota: 2, IsPaid: true, AccrualRate: AccrualYearly, MaxContinuousDays: 1, Color: "#14B8A6"},
		{Key: TypeHoliday, Name: "Public Holiday", Description: "Company-wide holidays", AnnualQuota: 10, IsPaid: true, AccrualRate: AccrualYearly, MaxContinuousDays: DefaultMaxContinuousDays, Color: "#22C55E"},
	}
}

type Catalog []LeaveType

func (c Catalog) Lookup(key string) (LeaveType, bool) {
	for _, t := range c {
		if t.Key == key {
			return t, true
		}
	}
	return LeaveType{}, false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateType normalises and checks a catalog entry.
func ValidateType(t *LeaveType) error {
	t.Key = strings.TrimSpace(t.Key)
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		t.Name = t.Key
	}
	if t.MaxContinuousDays == 0 {
		t.MaxContinuousDays = DefaultMaxContinuousDays
	}
	return fromValidator(validate.Struct(t))
}

func fromValidator(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Add(fe.Field(), describeTag(fe))
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "alphanum":
		return "must be alphanumeric"
	case "hexcolor":
		return "must be a hex colour"
	case "dive", "url":
		return "is malformed"
	default:
		return "is invalid"
	}
}
