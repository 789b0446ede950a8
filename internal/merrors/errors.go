// Package merrors defines the tagged error taxonomy shared by every layer of
// the room: validation, domain, access, transport and infrastructure errors
// are values, never exceptions, per spec.md §7/§9.
package merrors

import (
	"errors"
	"fmt"
)

// Sentinel errors checked with errors.Is. Each maps to exactly one
// JSON-RPC or HTTP status code at the transport boundary (see codeFor
// in internal/jsonrpc/jsonrpc.go).
var (
	ErrNotInitialized   = errors.New("room not initialized")
	ErrTaskNotFound      = errors.New("task not found")
	ErrConflict          = errors.New("conflict, retry exhausted")
	ErrNotOwner          = errors.New("not lock owner")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrTokenExpired      = errors.New("token expired")
	ErrMethodNotFound    = errors.New("method not found")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrTimeout           = errors.New("timeout")
	ErrInternal          = errors.New("internal error")
)

// ValidationError carries a single offending field, mirroring
// pkg/services.ValidationError in the teacher.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
}

// NewValidation constructs a *ValidationError as an error value.
func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvalidAgentName, InvalidFilePath, InvalidParams are constructed as
// ValidationErrors with a fixed field name so callers can pattern match
// on the field without a dedicated type per case.
func InvalidAgentName(name string) error {
	return NewValidation("agent_name", fmt.Sprintf("invalid agent name %q", name))
}

func InvalidFilePath(path string) error {
	return NewValidation("path", fmt.Sprintf("invalid file path %q", path))
}

func InvalidParams(field, message string) error {
	return NewValidation(field, message)
}

// TaskAlreadyClaimed is returned by claim() when the task is held by a
// different agent. It carries the current holder so callers can render
// spec.md's TaskAlreadyClaimed{by} variant.
type TaskAlreadyClaimed struct {
	By string
}

func (e *TaskAlreadyClaimed) Error() string {
	return fmt.Sprintf("task already claimed by %q", e.By)
}

// FileLocked mirrors spec.md's FileLocked{by} variant.
type FileLocked struct {
	By string
}

func (e *FileLocked) Error() string {
	return fmt.Sprintf("file locked by %q", e.By)
}

// InvalidTransition mirrors spec.md's InvalidTransition{from, to} variant,
// used by both the task state machine (§4.2) and the checkpoint state
// machine (§4.7).
type InvalidTransition struct {
	From string
	To   string
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

// PermissionDenied carries the capability that was missing.
type PermissionDenied struct {
	Required string
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("permission denied: requires %q", e.Required)
}

// RateLimited carries the retry-after hint from spec.md's
// RateLimited{retry_after_s} variant.
type RateLimited struct {
	RetryAfterSeconds float64
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("rate limited, retry after %.1fs", e.RetryAfterSeconds)
}

func (e *RateLimited) Unwrap() error { return ErrRateLimited }

// NotOwnerTransition reports that agent attempted to transition a task
// or checkpoint it does not own. owner is empty when the entity is
// currently unowned.
func NotOwnerTransition(agent, owner string) error {
	if owner == "" {
		owner = "(unassigned)"
	}
	return fmt.Errorf("%w: %q is not owner %q", ErrNotOwner, agent, owner)
}
