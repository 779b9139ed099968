package correlate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"vigil/core"
	"vigil/metrics"
)

// GenerateResult reports the outcome of one candidate generation run.
// AlreadyExists distinguishes convergent concurrent generation from a fresh
// create; both are success.
type GenerateResult struct {
	Candidate     *core.IncidentCandidate
	Bundle        *core.EvidenceBundle
	AlreadyExists bool
	Skipped       bool
	SkipReason    string
}

// Generator assembles correlated detections into a deterministic incident
// candidate. Rule-isolated: every run re-queries all detections inside its
// own window instead of trusting the triggering detection alone, so
// overlapping concurrent runs converge on identical candidates.
type Generator struct {
	detections DetectionQuerier
	graphs     EvidenceGraphStore
	bundles    EvidenceBundleStore
	candidates CandidateStore
	logger     *zap.SugaredLogger
}

// NewGenerator creates a candidate generator.
func NewGenerator(detections DetectionQuerier, graphs EvidenceGraphStore, bundles EvidenceBundleStore, candidates CandidateStore, logger *zap.SugaredLogger) *Generator {
	return &Generator{
		detections: detections,
		graphs:     graphs,
		bundles:    bundles,
		candidates: candidates,
		logger:     logger,
	}
}

// Generate runs candidate generation for one rule triggered by one detection.
// Same detection set + same rule always produces the same candidate id;
// storage is conditional so N concurrent calls converge on one record.
func (g *Generator) Generate(ctx context.Context, rule *core.CorrelationRule, trigger *core.Detection, window Window, correlationKey string) (*GenerateResult, error) {
	// Partition-narrowing: when the matcher demands a single rule, push the
	// filter into the query instead of scanning the whole window.
	queryRuleID := ""
	if rule.Matcher.SameRuleID {
		queryRuleID = trigger.RuleID
	}

	dets, err := g.detections.QueryDetectionsInWindow(ctx, window.Start, window.End, queryRuleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query window detections: %w", err)
	}

	matched := filterByMatcher(dets, rule.Matcher, trigger)
	matched = capBySeverity(matched, rule.CandidateTemplate.MaxDetections)

	if len(matched) < rule.CandidateTemplate.MinDetections {
		return &GenerateResult{Skipped: true, SkipReason: "below min detections"}, nil
	}

	candidateID := core.ComputeCandidateID(correlationKey, rule.RuleID, rule.RuleVersion)

	surviving, graphIDs, err := g.linkEvidence(ctx, candidateID, matched)
	if err != nil {
		return nil, err
	}
	if len(surviving) < rule.CandidateTemplate.MinDetections {
		return &GenerateResult{Skipped: true, SkipReason: "below min detections after evidence linkage"}, nil
	}

	bundle, err := core.NewEvidenceBundle(surviving, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	if _, err := g.bundles.PutEvidenceBundle(ctx, bundle); err != nil {
		return nil, fmt.Errorf("failed to store evidence bundle %s: %w", bundle.EvidenceID, err)
	}

	candidate := g.buildCandidate(candidateID, correlationKey, rule, surviving, graphIDs, bundle.EvidenceID)
	isNew, err := g.candidates.PutCandidate(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to store candidate %s: %w", candidateID, err)
	}
	if isNew {
		metrics.CandidatesGenerated.WithLabelValues(rule.RuleID).Inc()
	}

	return &GenerateResult{Candidate: candidate, Bundle: bundle, AlreadyExists: !isNew}, nil
}

// linkEvidence stores one evidence graph per detection and then verifies the
// linkage by reading back through the candidate index. A detection that does
// not resolve to exactly one graph referencing it fails the integrity check
// and is dropped with a log line, never silently kept.
func (g *Generator) linkEvidence(ctx context.Context, candidateID string, dets []core.Detection) ([]core.Detection, []string, error) {
	for i := range dets {
		det := &dets[i]
		graph := buildGraph(candidateID, det)
		if _, err := g.graphs.PutEvidenceGraph(ctx, graph); err != nil {
			return nil, nil, fmt.Errorf("failed to store evidence graph %s: %w", graph.GraphID, err)
		}
	}

	linked, err := g.graphs.GetEvidenceGraphsByCandidate(ctx, candidateID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read evidence graphs for candidate %s: %w", candidateID, err)
	}

	surviving := make([]core.Detection, 0, len(dets))
	graphIDs := make([]string, 0, len(dets))
	for _, det := range dets {
		var matches []*core.EvidenceGraph
		for i := range linked {
			graph := &linked[i]
			for _, id := range graph.DetectionIDs {
				if id == det.DetectionID {
					matches = append(matches, graph)
					break
				}
			}
		}
		if len(matches) != 1 || !matches[0].References(det.DetectionID) {
			metrics.IntegrityViolations.WithLabelValues(core.IntegrityGraphLinkage).Inc()
			g.logger.Warnw("Dropping detection with broken evidence-graph linkage",
				"detectionId", det.DetectionID,
				"candidateId", candidateID,
				"graphMatches", len(matches))
			continue
		}
		surviving = append(surviving, det)
		graphIDs = append(graphIDs, matches[0].GraphID)
	}
	return surviving, core.DedupSorted(graphIDs), nil
}

func (g *Generator) buildCandidate(candidateID, correlationKey string, rule *core.CorrelationRule, dets []core.Detection, graphIDs []string, evidenceID string) *core.IncidentCandidate {
	detectionIDs := make([]string, 0, len(dets))
	services := make(map[string]struct{})
	var resources []string
	var confidenceSum float64
	maxSeverity := core.SeverityInfo

	for _, det := range dets {
		detectionIDs = append(detectionIDs, det.DetectionID)
		services[det.Service] = struct{}{}
		resources = append(resources, det.ResourceRefs...)
		confidenceSum += det.Confidence
		if core.SeverityRank(det.Severity) > core.SeverityRank(maxSeverity) {
			maxSeverity = det.Severity
		}
	}

	affectedServices := make([]string, 0, len(services))
	for s := range services {
		affectedServices = append(affectedServices, s)
	}
	sort.Strings(affectedServices)

	factors := []core.ConfidenceFactor{
		{Name: "detection_volume", Weight: 0.4, Value: clamp01(float64(len(dets)) / float64(rule.CandidateTemplate.MaxDetections))},
		{Name: "mean_detection_confidence", Weight: 0.4, Value: confidenceSum / float64(len(dets))},
		{Name: "severity", Weight: 0.2, Value: float64(core.SeverityRank(maxSeverity)) / float64(core.SeverityRank(core.SeverityCritical))},
	}
	var score float64
	for _, f := range factors {
		score += f.Weight * f.Value
	}
	score = clamp01(score)

	scope := core.ScopeSingleService
	switch {
	case len(affectedServices) > 3:
		scope = core.ScopeInfrastructure
	case len(affectedServices) > 1:
		scope = core.ScopeMultiService
	}

	// BundledAt drives deterministic downstream timestamps, so CreatedAt here
	// is derived from the latest detection rather than the wall clock.
	var latest time.Time
	for _, det := range dets {
		if det.DetectedAt.After(latest) {
			latest = det.DetectedAt
		}
	}

	return &core.IncidentCandidate{
		CandidateID:      candidateID,
		CorrelationKey:   correlationKey,
		RuleID:           rule.RuleID,
		RuleVersion:      rule.RuleVersion,
		Title:            rule.CandidateTemplate.Title,
		Service:          dets[0].Service,
		Severity:         maxSeverity,
		EvidenceGraphIDs: graphIDs,
		DetectionIDs:     core.SortedCopy(detectionIDs),
		EvidenceID:       evidenceID,
		Confidence: core.ConfidenceAssessment{
			Band:    core.BandForScore(score),
			Score:   score,
			Factors: factors,
		},
		BlastRadius: core.BlastRadius{
			Scope:             scope,
			AffectedServices:  affectedServices,
			AffectedResources: core.DedupSorted(resources),
			EstimatedImpact:   rule.CandidateTemplate.Scope,
		},
		CreatedAt: latest,
	}
}

// buildGraph builds the per-detection evidence graph: one detection node plus
// one node per backing signal, signal ids deduplicated and sorted.
func buildGraph(candidateID string, det *core.Detection) *core.EvidenceGraph {
	signalIDs := core.DedupSorted(det.SignalIDs)
	nodes := make([]core.EvidenceNode, 0, len(signalIDs)+1)
	nodes = append(nodes, core.EvidenceNode{Type: core.EvidenceNodeDetection, RefID: det.DetectionID})
	for _, sid := range signalIDs {
		nodes = append(nodes, core.EvidenceNode{Type: core.EvidenceNodeSignal, RefID: sid})
	}
	return &core.EvidenceGraph{
		GraphID:      core.ComputeGraphID(candidateID, []string{det.DetectionID}),
		CandidateID:  candidateID,
		DetectionIDs: []string{det.DetectionID},
		SignalIDs:    signalIDs,
		Nodes:        nodes,
		CreatedAt:    det.DetectedAt,
	}
}

// filterByMatcher enforces every declared matcher field. SameRuleID compares
// against the triggering detection's rule even when the query was already
// narrowed, so the declared field is enforced regardless of the query path.
func filterByMatcher(dets []core.Detection, m core.Matcher, trigger *core.Detection) []core.Detection {
	out := make([]core.Detection, 0, len(dets))
	for _, det := range dets {
		if m.SameService && det.Service != trigger.Service {
			continue
		}
		if m.SameSource && det.Source != trigger.Source {
			continue
		}
		if m.SameRuleID && det.RuleID != trigger.RuleID {
			continue
		}
		if len(m.Severities) > 0 && !containsString(m.Severities, det.Severity) {
			continue
		}
		if len(m.SignalTypes) > 0 && !containsString(m.SignalTypes, det.SignalType) {
			continue
		}
		out = append(out, det)
	}
	return out
}

// capBySeverity keeps the top-N detections by severity rank. Ties break on
// detection id so the cap is deterministic.
func capBySeverity(dets []core.Detection, maxDetections int) []core.Detection {
	if maxDetections <= 0 || len(dets) <= maxDetections {
		return dets
	}
	sorted := make([]core.Detection, len(dets))
	copy(sorted, dets)
	sort.Slice(sorted, func(i, j int) bool {
		ri, rj := core.SeverityRank(sorted[i].Severity), core.SeverityRank(sorted[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return sorted[i].DetectionID < sorted[j].DetectionID
	})
	return sorted[:maxDetections]
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
