package storage

import "errors"

// Storage error constants
var (
	// ErrNotFound is a generic "not found" error
	ErrNotFound = errors.New("not found")

	// ErrDetectionNotFound is returned when a detection is not found
	ErrDetectionNotFound = errors.New("detection not found")

	// ErrEvidenceGraphNotFound is returned when an evidence graph is not found
	ErrEvidenceGraphNotFound = errors.New("evidence graph not found")

	// ErrEvidenceBundleNotFound is returned when an evidence bundle is not found
	ErrEvidenceBundleNotFound = errors.New("evidence bundle not found")

	// ErrCandidateNotFound is returned when an incident candidate is not found
	ErrCandidateNotFound = errors.New("incident candidate not found")

	// ErrIncidentNotFound is returned when an incident is not found
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrSequenceConflict is returned when an event append is not exactly one
	// past the latest stored sequence for its incident. This conditional write
	// is the system's only concurrency-control mechanism.
	ErrSequenceConflict = errors.New("event sequence conflict")

	// ErrVersionConflict is returned when an incident update loses an
	// optimistic-concurrency race.
	ErrVersionConflict = errors.New("incident version conflict")

	// ErrDatabaseClosed is returned when attempting to use a closed database connection
	ErrDatabaseClosed = errors.New("database is closed")
)
