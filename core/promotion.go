package core

import (
	"time"
)

// PromotionDecision is the binary outcome of the promotion gate.
type PromotionDecision string

const (
	DecisionPromote PromotionDecision = "PROMOTE"
	DecisionReject  PromotionDecision = "REJECT"
)

// Rejection codes carried on REJECT decisions.
const (
	RejectEvidenceNotFound      = "EVIDENCE_NOT_FOUND"
	RejectConfidenceBelowPolicy = "CONFIDENCE_BELOW_POLICY"
	RejectInsufficientEvidence  = "INSUFFICIENT_DETECTIONS"
	RejectActiveIncidentExists  = "ACTIVE_INCIDENT_EXISTS"
	RejectGateInternalError     = "GATE_INTERNAL_ERROR"
)

// PromotionResult is the immutable decision record produced by the gate.
// EvaluatedAt is copied from the evidence bundle's BundledAt, never from the
// wall clock, so re-evaluating the same evidence reproduces the same record.
type PromotionResult struct {
	Decision      PromotionDecision `json:"decision"`
	CandidateID   string            `json:"candidateId"`
	EvidenceID    string            `json:"evidenceId"`
	IncidentID    string            `json:"incidentId,omitempty"`
	RejectionCode string            `json:"rejectionCode,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	EvaluatedAt   time.Time         `json:"evaluatedAt"`
}

// ComputeIncidentID derives incident identity from the owning service and the
// evidence content hash. Evidence-derived rather than time-based: the same
// evidence always maps to the same incident regardless of wall-clock time.
func ComputeIncidentID(service, evidenceID string) string {
	return "inc-" + HashParts(service, evidenceID)[:32]
}
