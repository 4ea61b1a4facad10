package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrNotFound         = errors.New("not found")
	ErrAgentNotFound    = fmt.Errorf("agent %w", ErrNotFound)
	ErrPolicyNotFound   = fmt.Errorf("policy %w", ErrNotFound)
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
)

// OracleError wraps a failed reasoning-oracle call. Failures are passed
// through to callers unfiltered; no retry is attempted anywhere in the
// engine.
type OracleError struct {
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle call failed: %v", e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// IsOracleError reports whether err originated from a reasoning-oracle call.
func IsOracleError(err error) bool {
	var oe *OracleError
	return errors.As(err, &oe)
}

// ErrorResponse defines the standard JSON error model returned by the HTTP API.
// Code is a stable machine-readable identifier (e.g. NOT_FOUND, PERMISSION_DENIED).
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}
