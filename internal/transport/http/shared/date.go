package shared

import (
	"net/url"
	"strconv"
	"time"

	"neon/internal/domain/leave"
)

const DateLayout = leave.DateLayout

// ParseDate accepts RFC3339 or YYYY-MM-DD.
func ParseDate(value string) (time.Time, error) {
	return leave.ParseDate(value)
}

// QueryDate reads an optional date parameter, falling back to def.
func QueryDate(q url.Values, key string, def time.Time) (time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, &leave.ValidationError{Fields: []leave.FieldIssue{{Field: key, Reason: "must be a valid date in YYYY-MM-DD format"}}}
	}
	return parsed, nil
}

// QueryInt reads an optional integer parameter, falling back to def.
func QueryInt(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &leave.ValidationError{Fields: []leave.FieldIssue{{Field: key, Reason: "must be an integer"}}}
	}
	return v, nil
}
