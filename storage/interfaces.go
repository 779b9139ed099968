package storage

import (
	"context"
	"time"

	"vigil/core"
)

// DetectionStorageInterface defines the interface for detection storage.
// Puts are create-if-absent; the bool reports whether this call created the
// record.
type DetectionStorageInterface interface {
	PutDetection(ctx context.Context, det *core.Detection) (bool, error)
	GetDetection(ctx context.Context, detectionID string) (*core.Detection, error)
	QueryDetectionsInWindow(ctx context.Context, start, end time.Time, ruleID string) ([]core.Detection, error)
}

// EvidenceGraphStorageInterface defines the interface for evidence graph storage.
type EvidenceGraphStorageInterface interface {
	PutEvidenceGraph(ctx context.Context, graph *core.EvidenceGraph) (bool, error)
	GetEvidenceGraph(ctx context.Context, graphID string) (*core.EvidenceGraph, error)
	GetEvidenceGraphsByCandidate(ctx context.Context, candidateID string) ([]core.EvidenceGraph, error)
}

// EvidenceBundleStorageInterface defines the interface for evidence bundle storage.
type EvidenceBundleStorageInterface interface {
	PutEvidenceBundle(ctx context.Context, bundle *core.EvidenceBundle) (bool, error)
	GetEvidenceBundle(ctx context.Context, evidenceID string) (*core.EvidenceBundle, error)
}

// CandidateStorageInterface defines the interface for incident candidate storage.
type CandidateStorageInterface interface {
	PutCandidate(ctx context.Context, candidate *core.IncidentCandidate) (bool, error)
	GetCandidate(ctx context.Context, candidateID string) (*core.IncidentCandidate, error)
}

// IncidentStorageInterface defines the interface for the live incident view.
// The event log is authoritative; this table is the query-side projection.
type IncidentStorageInterface interface {
	CreateIncident(ctx context.Context, inc *core.Incident) (bool, error)
	GetIncident(ctx context.Context, incidentID string) (*core.Incident, error)
	UpdateIncident(ctx context.Context, inc *core.Incident) error
	HasActiveIncident(ctx context.Context, incidentID string) (bool, error)
	ListIncidents(ctx context.Context, limit, offset int) ([]core.Incident, int64, error)
}

// EventStorageInterface defines the append-only incident event store.
type EventStorageInterface interface {
	AppendEvent(ctx context.Context, rec *core.EventRecord) error
	GetEvents(ctx context.Context, incidentID string) ([]core.EventRecord, error)
	LatestSeq(ctx context.Context, incidentID string) (int64, error)
}

// IdempotencyRecord is one permanent dedup fact: the key, a hash of the
// request body it was first used with, and the response to replay.
type IdempotencyRecord struct {
	Key          string    `json:"key"`
	Namespace    string    `json:"namespace"`
	RequestHash  string    `json:"requestHash"`
	ResourceID   string    `json:"resourceId"`
	StatusCode   int       `json:"statusCode"`
	ResponseBody []byte    `json:"responseBody"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IdempotencyStorageInterface defines permanent idempotency-record storage.
// There is no TTL and no bypass: records are audit artifacts.
type IdempotencyStorageInterface interface {
	// PutIfAbsent attempts to create the record. When a record with the same
	// key already exists, it is returned instead and created is false.
	PutIfAbsent(ctx context.Context, rec *IdempotencyRecord) (existing *IdempotencyRecord, created bool, err error)
	GetRecord(ctx context.Context, key string) (*IdempotencyRecord, error)
}
