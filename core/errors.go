package core

import (
	"errors"
	"fmt"
)

// The pipeline distinguishes three non-overlapping error kinds:
//
//   - ValidationError: malformed input, caught at the boundary, never persisted.
//   - BusinessRejection: an explicit negative outcome that is not a bug
//     (promotion rejected, illegal transition, idempotency conflict).
//   - IntegrityViolation: the authoritative history itself is inconsistent
//     (hash mismatch, sequence gap). Never silently recovered from.
//
// Handlers map these to 400, 4xx/409 and 409 respectively.

// Stable business rejection codes surfaced to API clients.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeMissingJustification = "MISSING_JUSTIFICATION"
	CodeIllegalTransition    = "ILLEGAL_TRANSITION"
	CodeIdempotencyConflict  = "IDEMPOTENCY_CONFLICT"
	CodeIntegrityViolation   = "INTEGRITY_VIOLATION"
	CodeActiveIncidentExists = "ACTIVE_INCIDENT_EXISTS"
)

// Integrity violation codes identify which invariant of the event log failed.
const (
	IntegrityBadSequenceStart = "BAD_SEQUENCE_START"
	IntegritySequenceGap      = "SEQUENCE_GAP"
	IntegrityMissingCreated   = "MISSING_INCIDENT_CREATED"
	IntegrityHashMismatch     = "STATE_HASH_MISMATCH"
	IntegrityLiveDivergence   = "LIVE_STATE_DIVERGENCE"
	IntegrityGraphLinkage     = "EVIDENCE_GRAPH_LINKAGE"
	IntegrityUnknownEventType = "UNKNOWN_EVENT_TYPE"
)

// ValidationError reports malformed input. It is always raised before any
// store write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// BusinessRejection is a structured negative outcome with a stable code.
type BusinessRejection struct {
	Code    string
	Message string
}

func (e *BusinessRejection) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBusinessRejection builds a BusinessRejection with a stable code.
func NewBusinessRejection(code, message string) *BusinessRejection {
	return &BusinessRejection{Code: code, Message: message}
}

// IntegrityViolation signals that the stored history is inconsistent with
// itself. Callers must abort immediately and must not retry automatically.
type IntegrityViolation struct {
	Code       string
	IncidentID string
	EventSeq   int64
	Message    string
}

func (e *IntegrityViolation) Error() string {
	if e.IncidentID == "" {
		return fmt.Sprintf("integrity violation [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("integrity violation [%s] incident=%s seq=%d: %s",
		e.Code, e.IncidentID, e.EventSeq, e.Message)
}

// NewIntegrityViolation builds an IntegrityViolation for an incident event.
func NewIntegrityViolation(code, incidentID string, eventSeq int64, message string) *IntegrityViolation {
	return &IntegrityViolation{Code: code, IncidentID: incidentID, EventSeq: eventSeq, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsBusinessRejection reports whether err is (or wraps) a BusinessRejection,
// returning it when so.
func IsBusinessRejection(err error) (*BusinessRejection, bool) {
	var br *BusinessRejection
	if errors.As(err, &br) {
		return br, true
	}
	return nil, false
}

// IsIntegrityViolation reports whether err is (or wraps) an IntegrityViolation,
// returning it when so.
func IsIntegrityViolation(err error) (*IntegrityViolation, bool) {
	var iv *IntegrityViolation
	if errors.As(err, &iv) {
		return iv, true
	}
	return nil, false
}
