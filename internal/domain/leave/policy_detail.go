package leave

import (
	"fmt"
	"time"
)

const (
	DetailNone      = "None"
	DetailMaternity = "Maternity"
	DetailMarriage  = "Marriage"
	DetailSick      = "Sick"
)

// PolicyDetail is the type-specific part of a draft. The concrete variant
// must match the draft's leave type.
type PolicyDetail interface {
	Kind() string
	validate(v *ValidationError)
}

type NoDetail struct{}

type MaternityDetail struct {
	ExpectedDeliveryDate *time.Time
}

type MarriageDetail struct {
	WeddingDate *time.Time
}

type ReportedVia string

const (
	ReportedNone    ReportedVia = "None"
	ReportedCall    ReportedVia = "Call"
	ReportedMessage ReportedVia = "Whatsapp/SMS"
	ReportedEmail   ReportedVia = "Email"
)

type SickDetail struct {
	ReportedVia ReportedVia
	// ReportedAt is a wall-clock "HH:MM", empty when unknown.
	ReportedAt string
}

// SickReportCutoff is the latest same-day report time that raises no warning.
const SickReportCutoff = "09:30"

func (NoDetail) Kind() string        { return DetailNone }
func (MaternityDetail) Kind() string { return DetailMaternity }
func (MarriageDetail) Kind() string  { return DetailMarriage }
func (SickDetail) Kind() string      { return DetailSick }

func (NoDetail) validate(*ValidationError)        {}
func (MaternityDetail) validate(*ValidationError) {}
func (MarriageDetail) validate(*ValidationError)  {}

func (d SickDetail) validate(v *ValidationError) {
	switch d.ReportedVia {
	case ReportedNone, ReportedCall, ReportedMessage, ReportedEmail:
	default:
		v.Add("policyDetail.reportedVia", "must be one of None, Call, Whatsapp/SMS, Email")
	}
	if d.ReportedAt != "" {
		if _, err := time.Parse("15:04", d.ReportedAt); err != nil {
			v.Add("policyDetail.reportedAt", "must be HH:MM")
		}
	}
}

// DetailFor returns the empty variant a leave type expects.
func DetailFor(leaveType string) PolicyDetail {
	switch leaveType {
	case TypeMaternity:
		return MaternityDetail{}
	case TypeMarriage:
		return MarriageDetail{}
	case TypeSick:
		return SickDetail{ReportedVia: ReportedNone}
	default:
		return NoDetail{}
	}
}

func detailMatches(leaveType string, d PolicyDetail) bool {
	if d == nil {
		return false
	}
	return DetailFor(leaveType).Kind() == d.Kind()
}

// DetailWarnings lists advisory notes about a detail. None of them block.
func DetailWarnings(d PolicyDetail) []string {
	sick, ok := d.(SickDetail)
	if !ok || sick.ReportedAt == "" {
		return nil
	}
	at, err := time.Parse("15:04", sick.ReportedAt)
	if err != nil {
		return nil
	}
	cutoff, _ := time.Parse("15:04", SickReportCutoff)
	if at.After(cutoff) {
		return []string{fmt.Sprintf("sick leave reported at %s, after the %s cutoff", sick.ReportedAt, SickReportCutoff)}
	}
	return nil
}

// DetailEnvelope is the tagged JSON form of a PolicyDetail.
type DetailEnvelope struct {
	Kind                 string     `json:"kind"`
	ExpectedDeliveryDate *time.Time `json:"expectedDeliveryDate,omitempty"`
	WeddingDate          *time.Time `json:"weddingDate,omitempty"`
	ReportedVia          string     `json:"reportedVia,omitempty"`
	ReportedAt           string     `json:"reportedAt,omitempty"`
}

func EnvelopeOf(d PolicyDetail) DetailEnvelope {
	switch v := d.(type) {
	case MaternityDetail:
		return DetailEnvelope{Kind: DetailMaternity, ExpectedDeliveryDate: v.ExpectedDeliveryDate}
	case MarriageDetail:
		return DetailEnvelope{Kind: DetailMarriage, WeddingDate: v.WeddingDate}
	case SickDetail:
		return DetailEnvelope{Kind: DetailSick, ReportedVia: string(v.ReportedVia), ReportedAt: v.ReportedAt}
	default:
		return DetailEnvelope{Kind: DetailNone}
	}
}

func (e DetailEnvelope) Detail() (PolicyDetail, error) {
	switch e.Kind {
	case "", DetailNone:
		return NoDetail{}, nil
	case DetailMaternity:
		return MaternityDetail{ExpectedDeliveryDate: e.ExpectedDeliveryDate}, nil
	case DetailMarriage:
		return MarriageDetail{WeddingDate: e.WeddingDate}, nil
	case DetailSick:
		via := ReportedVia(e.ReportedVia)
		if via == "" {
			via = ReportedNone
		}
		return SickDetail{ReportedVia: via, ReportedAt: e.ReportedAt}, nil
	default:
		return nil, invalid("policyDetail.kind", fmt.Sprintf("unknown kind %q", e.Kind))
	}
}
