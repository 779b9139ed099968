// Package promote implements the promotion gate that decides whether an
// incident candidate becomes a real incident.
package promote

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vigil/core"
	"vigil/metrics"
	"vigil/storage"
)

// PromotionPolicy is the operator-tunable floor a candidate must clear.
type PromotionPolicy struct {
	MinBand       core.ConfidenceBand `json:"minBand" yaml:"minBand"`
	MinScore      float64             `json:"minScore" yaml:"minScore"`
	MinDetections int                 `json:"minDetections" yaml:"minDetections"`
}

// DefaultPolicy matches the pipeline's shipped defaults.
func DefaultPolicy() PromotionPolicy {
	return PromotionPolicy{
		MinBand:       core.ConfidenceBandMedium,
		MinScore:      0.4,
		MinDetections: 2,
	}
}

// ActiveIncidentChecker reports whether the incident with the given id exists
// and has not reached a terminal status.
type ActiveIncidentChecker interface {
	HasActiveIncident(ctx context.Context, incidentID string) (bool, error)
}

// Gate evaluates candidates against policy. Fail-closed: any condition it
// cannot positively verify, including its own panics, produces a REJECT.
type Gate struct {
	bundles   storage.EvidenceBundleStorageInterface
	incidents ActiveIncidentChecker
	policy    PromotionPolicy
	logger    *zap.SugaredLogger
}

// NewGate creates a promotion gate.
func NewGate(bundles storage.EvidenceBundleStorageInterface, incidents ActiveIncidentChecker, policy PromotionPolicy, logger *zap.SugaredLogger) *Gate {
	return &Gate{
		bundles:   bundles,
		incidents: incidents,
		policy:    policy,
		logger:    logger,
	}
}

// Evaluate runs the ordered gate checks for one candidate. The checks run in
// a fixed order so the rejection code is deterministic for a given state:
// evidence existence, confidence policy, detection volume, active-incident
// dedup. EvaluatedAt always comes from the bundle's BundledAt, so the same
// evidence re-evaluated under the same policy reproduces the same record.
func (g *Gate) Evaluate(ctx context.Context, candidate *core.IncidentCandidate) (result *core.PromotionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Errorw("Promotion gate panicked, rejecting",
				"candidateId", candidate.CandidateID,
				"panic", r)
			result = g.reject(candidate, core.RejectGateInternalError, fmt.Sprintf("internal gate failure: %v", r))
			err = nil
		}
	}()

	bundle, bErr := g.bundles.GetEvidenceBundle(ctx, candidate.EvidenceID)
	if bErr != nil {
		result = g.reject(candidate, core.RejectEvidenceNotFound,
			fmt.Sprintf("evidence bundle %s not retrievable", candidate.EvidenceID))
		return result, nil
	}

	if candidate.Confidence.Band.Rank() < g.policy.MinBand.Rank() || candidate.Confidence.Score < g.policy.MinScore {
		result = g.rejectAt(candidate, bundle, core.RejectConfidenceBelowPolicy,
			fmt.Sprintf("band %s score %.2f below policy floor (%s, %.2f)",
				candidate.Confidence.Band, candidate.Confidence.Score, g.policy.MinBand, g.policy.MinScore))
		return result, nil
	}

	if len(bundle.DetectionIDs) < g.policy.MinDetections {
		result = g.rejectAt(candidate, bundle, core.RejectInsufficientEvidence,
			fmt.Sprintf("%d detections below policy floor %d", len(bundle.DetectionIDs), g.policy.MinDetections))
		return result, nil
	}

	// The incident id is evidence-derived, so dedup keys on the exact incident
	// this candidate maps to. Unrelated incidents on the same service never
	// block; a RESOLVED incident is not terminal and still does.
	incidentID := core.ComputeIncidentID(candidate.Service, candidate.EvidenceID)
	active, aErr := g.incidents.HasActiveIncident(ctx, incidentID)
	if aErr != nil {
		// Cannot verify the dedup invariant, so fail closed
		result = g.rejectAt(candidate, bundle, core.RejectGateInternalError,
			fmt.Sprintf("active-incident check failed: %v", aErr))
		return result, nil
	}
	if active {
		result = g.rejectAt(candidate, bundle, core.RejectActiveIncidentExists,
			fmt.Sprintf("incident %s already exists and is not terminal", incidentID))
		return result, nil
	}

	metrics.PromotionDecisions.WithLabelValues(string(core.DecisionPromote), "").Inc()
	g.logger.Infow("Candidate promoted",
		"candidateId", candidate.CandidateID,
		"incidentId", incidentID,
		"service", candidate.Service)

	return &core.PromotionResult{
		Decision:    core.DecisionPromote,
		CandidateID: candidate.CandidateID,
		EvidenceID:  candidate.EvidenceID,
		IncidentID:  incidentID,
		EvaluatedAt: bundle.BundledAt,
	}, nil
}

// reject builds a rejection before the bundle was loaded; EvaluatedAt falls
// back to the candidate's deterministic CreatedAt.
func (g *Gate) reject(candidate *core.IncidentCandidate, code, reason string) *core.PromotionResult {
	metrics.PromotionDecisions.WithLabelValues(string(core.DecisionReject), code).Inc()
	g.logger.Infow("Candidate rejected",
		"candidateId", candidate.CandidateID,
		"code", code,
		"reason", reason)
	return &core.PromotionResult{
		Decision:      core.DecisionReject,
		CandidateID:   candidate.CandidateID,
		EvidenceID:    candidate.EvidenceID,
		RejectionCode: code,
		Reason:        reason,
		EvaluatedAt:   candidate.CreatedAt,
	}
}

func (g *Gate) rejectAt(candidate *core.IncidentCandidate, bundle *core.EvidenceBundle, code, reason string) *core.PromotionResult {
	result := g.reject(candidate, code, reason)
	result.EvaluatedAt = bundle.BundledAt
	return result
}
