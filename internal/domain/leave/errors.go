package leave

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("not authorized")
	ErrConflict       = errors.New("conflict")
	ErrNetwork        = errors.New("network failure")
	ErrNotFound       = errors.New("not found")
	ErrSubmitInFlight = errors.New("submission already in flight")

	// ErrStaleStatus is returned by stores when a conditional status update
	// matched no row because the request already left Pending.
	ErrStaleStatus = errors.New("request status changed")
)

type FieldIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError carries every field problem found in one pass.
type ValidationError struct {
	Fields []FieldIssue
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldIssue{Field: field, Reason: reason})
}

// OrNil returns nil when no issue was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, reason string) error {
	return &ValidationError{Fields: []FieldIssue{{Field: field, Reason: reason}}}
}

type AuthorizationError struct {
	Action string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized to %s: %s", e.Action, e.Reason)
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

type ConflictError struct {
	RequestID string
	Status    Status
	Reason    string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return "conflict: " + e.Reason
	}
	if e.RequestID == "" {
		return fmt.Sprintf("conflict: %s", e.Status)
	}
	return fmt.Sprintf("request %s already %s", e.RequestID, e.Status)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network failure: " + e.Err.Error()
}

// Unwrap exposes both the sentinel and the cause.
func (e *NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Err} }

// ClassifyStoreError turns connectivity failures into NetworkError and leaves
// everything else untouched.
func ClassifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return &NetworkError{Err: err}
	}
	var opErr net.Error
	if errors.As(err, &opErr) {
		return &NetworkError{Err: err}
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return &NetworkError{Err: err}
	}
	return err
}
