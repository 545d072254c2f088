package leave

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate accepts RFC3339 or YYYY-MM-DD. An empty value is the zero time.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse(DateLayout, value)
}

// parseDraftDate reads a draft date field and keeps only its calendar day.
func parseDraftDate(field, value string, v *ValidationError) time.Time {
	parsed, err := ParseDate(value)
	if err != nil {
		v.Add(field, "must be a valid date in YYYY-MM-DD format")
		return time.Time{}
	}
	if parsed.IsZero() {
		return parsed
	}
	return dateOnly(parsed)
}

// onCalendarDays drops the time of day from the draft's dates.
func (d Draft) onCalendarDays() Draft {
	if !d.StartDate.IsZero() {
		d.StartDate = dateOnly(d.StartDate)
	}
	if !d.EndDate.IsZero() {
		d.EndDate = dateOnly(d.EndDate)
	}
	return d
}
