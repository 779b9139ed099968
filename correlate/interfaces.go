package correlate

import (
	"context"
	"time"

	"vigil/core"
)

// DetectionQuerier reads detections inside a window. ruleID narrows the query
// to a single rule partition when non-empty; this is the partition-narrowing
// filter candidate generation relies on for cost and determinism under load.
type DetectionQuerier interface {
	QueryDetectionsInWindow(ctx context.Context, start, end time.Time, ruleID string) ([]core.Detection, error)
}

// EvidenceGraphStore persists and reads evidence graphs. Puts are conditional
// (create-if-absent); lookups by candidate go through a secondary index that
// is eventually consistent, so callers tolerate a brief visibility lag.
type EvidenceGraphStore interface {
	PutEvidenceGraph(ctx context.Context, graph *core.EvidenceGraph) (isNew bool, err error)
	GetEvidenceGraph(ctx context.Context, graphID string) (*core.EvidenceGraph, error)
	GetEvidenceGraphsByCandidate(ctx context.Context, candidateID string) ([]core.EvidenceGraph, error)
}

// EvidenceBundleStore persists evidence bundles, create-if-absent.
type EvidenceBundleStore interface {
	PutEvidenceBundle(ctx context.Context, bundle *core.EvidenceBundle) (isNew bool, err error)
	GetEvidenceBundle(ctx context.Context, evidenceID string) (*core.EvidenceBundle, error)
}

// CandidateStore persists incident candidates, create-if-absent.
type CandidateStore interface {
	PutCandidate(ctx context.Context, candidate *core.IncidentCandidate) (isNew bool, err error)
	GetCandidate(ctx context.Context, candidateID string) (*core.IncidentCandidate, error)
}

// RuleProvider exposes the enabled rule set. Rules arrive pre-validated and
// immutable from the external rule source.
type RuleProvider interface {
	EnabledRules() []*core.CorrelationRule
}
