package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vigil/core"
	"vigil/correlate"
	"vigil/detect"
	"vigil/metrics"
	"vigil/normalize"
	"vigil/promote"
)

// PipelineService drives one raw signal through the full pipeline:
// normalize, detect against every enabled rule, correlate, gate, and finally
// incident creation under the automated engine authority. Each stage is
// idempotent, so redelivering the same signal converges instead of
// duplicating downstream records.
type PipelineService struct {
	rules      correlate.RuleProvider
	detector   *detect.Engine
	correlator *correlate.Engine
	gate       *promote.Gate
	incidents  *IncidentService
	logger     *zap.SugaredLogger
}

// NewPipelineService creates a pipeline service.
func NewPipelineService(rules correlate.RuleProvider, detector *detect.Engine, correlator *correlate.Engine, gate *promote.Gate, incidents *IncidentService, logger *zap.SugaredLogger) *PipelineService {
	return &PipelineService{
		rules:      rules,
		detector:   detector,
		correlator: correlator,
		gate:       gate,
		incidents:  incidents,
		logger:     logger,
	}
}

// PipelineResult reports everything one signal produced on its way through.
type PipelineResult struct {
	Signal     *core.NormalizedSignal    `json:"signal"`
	Detections []*core.Detection         `json:"detections,omitempty"`
	Candidates []*core.IncidentCandidate `json:"candidates,omitempty"`
	Promotions []*core.PromotionResult   `json:"promotions,omitempty"`
	Incidents  []*core.Incident          `json:"incidents,omitempty"`
}

// pipelineAuthority is the authority under which the pipeline creates and
// opens incidents. Its severity cap means critical-severity candidates stall
// at the gate for a human promotion.
var pipelineAuthority = core.AuthorityContext{
	Type:    core.AuthorityAutoEngine,
	ActorID: "pipeline",
}

// ProcessRawSignal runs the full pipeline for one raw signal. Validation
// failures surface to the caller; a rejected promotion is a recorded outcome,
// not an error.
func (s *PipelineService) ProcessRawSignal(ctx context.Context, raw *normalize.RawSignal) (*PipelineResult, error) {
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	sig, err := normalize.Normalize(raw)
	if err != nil {
		return nil, err
	}
	metrics.SignalsNormalized.WithLabelValues(sig.Type).Inc()

	result := &PipelineResult{Signal: sig}

	for _, rule := range s.rules.EnabledRules() {
		detected, err := s.detector.ProcessSignal(ctx, rule, sig)
		if err != nil {
			return nil, err
		}
		if !detected.Matched {
			continue
		}
		result.Detections = append(result.Detections, detected.Detection)
	}
	if len(result.Detections) == 0 {
		return result, nil
	}

	// The correlator re-queries full windows itself; the trigger only anchors
	// matcher comparisons, so the first detection of this signal suffices.
	outcomes, err := s.correlator.ProcessSignal(ctx, sig, result.Detections[0])
	if err != nil {
		return nil, err
	}

	for _, outcome := range outcomes {
		if outcome.Skipped || outcome.Candidate == nil {
			continue
		}
		result.Candidates = append(result.Candidates, outcome.Candidate)

		promo, err := s.gate.Evaluate(ctx, outcome.Candidate)
		if err != nil {
			return nil, err
		}
		result.Promotions = append(result.Promotions, promo)
		if promo.Decision != core.DecisionPromote {
			s.logger.Infow("Candidate rejected at promotion gate",
				"candidateId", outcome.Candidate.CandidateID,
				"code", promo.RejectionCode)
			continue
		}

		inc, err := s.createAndOpen(ctx, promo, outcome.Candidate, sig)
		if err != nil {
			if br, ok := core.IsBusinessRejection(err); ok && br.Code == core.CodeUnauthorized {
				// Above the automated engine's severity cap; the promotion
				// stands and a human authority must create the incident.
				s.logger.Warnw("Promotion requires human authority",
					"candidateId", outcome.Candidate.CandidateID,
					"severity", outcome.Candidate.Severity)
				continue
			}
			return nil, err
		}
		result.Incidents = append(result.Incidents, inc)
	}

	return result, nil
}

// createAndOpen creates the incident from a PROMOTE decision, attaches the
// observed signal, and auto-opens it. Creation losing a race to a concurrent
// promotion of the same evidence is converged, not retried.
func (s *PipelineService) createAndOpen(ctx context.Context, promo *core.PromotionResult, candidate *core.IncidentCandidate, sig *core.NormalizedSignal) (*core.Incident, error) {
	inc, created, err := s.incidents.CreateFromPromotion(ctx, promo, candidate, pipelineAuthority)
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.Debugw("Incident already existed for promotion",
			"incidentId", inc.IncidentID)
		return inc, nil
	}

	inc, err = s.incidents.AttachSignals(ctx, inc.IncidentID, []string{sig.SignalID}, pipelineAuthority)
	if err != nil {
		return nil, err
	}

	inc, err = s.incidents.Transition(ctx, inc.IncidentID, core.IncidentStatusOpen, pipelineAuthority, nil)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Incident opened by pipeline",
		"incidentId", inc.IncidentID,
		"service", inc.Service,
		"severity", inc.Severity)
	return inc, nil
}
