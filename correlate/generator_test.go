package correlate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vigil/core"
	"vigil/storage"
)

func newTestGenerator(detections *storage.MemoryDetectionStorage) (*Generator, *storage.MemoryEvidenceGraphStorage, *storage.MemoryEvidenceBundleStorage, *storage.MemoryCandidateStorage) {
	graphs := storage.NewMemoryEvidenceGraphStorage()
	bundles := storage.NewMemoryEvidenceBundleStorage()
	candidates := storage.NewMemoryCandidateStorage()
	gen := NewGenerator(detections, graphs, bundles, candidates, zap.NewNop().Sugar())
	return gen, graphs, bundles, candidates
}

func testRule() *core.CorrelationRule {
	return &core.CorrelationRule{
		RuleID:      "rule-err-rate",
		RuleVersion: "1.0.0",
		Name:        "elevated error rate",
		Severity:    core.SeverityHigh,
		Enabled:     true,
		TimeWindow: core.TimeWindow{
			Duration:  5 * time.Minute,
			Alignment: core.WindowAlignmentFixed,
		},
		GroupBy:   core.GroupBy{Service: true},
		Threshold: core.Threshold{MinSignals: 2},
		Matcher:   core.Matcher{SameService: true},
		CandidateTemplate: core.CandidateTemplate{
			Title:         "Elevated error rate",
			MinDetections: 2,
			MaxDetections: 3,
		},
	}
}

func windowDetection(id, service, severity string, at time.Time, signalIDs ...string) *core.Detection {
	return &core.Detection{
		DetectionID: id,
		RuleID:      "rule-err-rate",
		RuleVersion: "1.0.0",
		Service:     service,
		Severity:    severity,
		Source:      "prometheus",
		SignalType:  "error_rate",
		Confidence:  0.3,
		SignalIDs:   signalIDs,
		DetectedAt:  at,
	}
}

func TestGenerator_BuildsCandidateFromWindow(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()
	gen, graphs, _, _ := newTestGenerator(detections)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d1 := windowDetection("d1", "checkout", core.SeverityHigh, base, "s1", "s2")
	d2 := windowDetection("d2", "checkout", core.SeverityMedium, base.Add(2*time.Minute), "s3")
	for _, det := range []*core.Detection{d1, d2} {
		_, err := detections.PutDetection(ctx, det)
		require.NoError(t, err)
	}

	rule := testRule()
	window := Window{Start: base, End: base.Add(5 * time.Minute)}

	result, err := gen.Generate(ctx, rule, d1, window, "service=checkout")
	require.NoError(t, err)
	require.NotNil(t, result.Candidate)
	assert.False(t, result.Skipped)
	assert.False(t, result.AlreadyExists)

	cand := result.Candidate
	assert.Equal(t, core.ComputeCandidateID("service=checkout", "rule-err-rate", "1.0.0"), cand.CandidateID)
	assert.Equal(t, []string{"d1", "d2"}, cand.DetectionIDs)
	assert.Equal(t, core.SeverityHigh, cand.Severity, "candidate severity is the max across detections")
	assert.Equal(t, core.ScopeSingleService, cand.BlastRadius.Scope)
	assert.Equal(t, []string{"checkout"}, cand.BlastRadius.AffectedServices)
	assert.Equal(t, d2.DetectedAt, cand.CreatedAt, "createdAt derives from the latest detection, not the clock")

	bundle := result.Bundle
	require.NotNil(t, bundle)
	assert.Equal(t, 3, bundle.SignalSummary.SignalCount)
	assert.Equal(t, window.End, bundle.BundledAt)

	// One graph per detection, each referencing exactly its detection
	linked, err := graphs.GetEvidenceGraphsByCandidate(ctx, cand.CandidateID)
	require.NoError(t, err)
	require.Len(t, linked, 2)
	for _, g := range linked {
		require.Len(t, g.DetectionIDs, 1)
		assert.True(t, g.References(g.DetectionIDs[0]))
	}
}

func TestGenerator_SkipsBelowMinDetections(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()
	gen, _, _, candidates := newTestGenerator(detections)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d1 := windowDetection("d1", "checkout", core.SeverityHigh, base, "s1")
	_, err := detections.PutDetection(ctx, d1)
	require.NoError(t, err)

	result, err := gen.Generate(ctx, testRule(), d1, Window{Start: base, End: base.Add(5 * time.Minute)}, "service=checkout")
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Nil(t, result.Candidate)

	_, err = candidates.GetCandidate(ctx, core.ComputeCandidateID("service=checkout", "rule-err-rate", "1.0.0"))
	assert.ErrorIs(t, err, storage.ErrCandidateNotFound)
}

func TestGenerator_CapsDetectionsBySeverity(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()
	gen, _, _, _ := newTestGenerator(detections)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	all := []*core.Detection{
		windowDetection("d1", "checkout", core.SeverityLow, base, "s1"),
		windowDetection("d2", "checkout", core.SeverityCritical, base.Add(time.Minute), "s2"),
		windowDetection("d3", "checkout", core.SeverityHigh, base.Add(2*time.Minute), "s3"),
		windowDetection("d4", "checkout", core.SeverityMedium, base.Add(3*time.Minute), "s4"),
	}
	for _, det := range all {
		_, err := detections.PutDetection(ctx, det)
		require.NoError(t, err)
	}

	result, err := gen.Generate(ctx, testRule(), all[0], Window{Start: base, End: base.Add(5 * time.Minute)}, "service=checkout")
	require.NoError(t, err)
	require.NotNil(t, result.Candidate)

	// MaxDetections=3 keeps the highest severities; the low one is dropped
	assert.Equal(t, []string{"d2", "d3", "d4"}, result.Candidate.DetectionIDs)
	assert.Equal(t, core.SeverityCritical, result.Candidate.Severity)
}

func TestGenerator_ConvergesOnExistingCandidate(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()
	gen, _, _, _ := newTestGenerator(detections)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d1 := windowDetection("d1", "checkout", core.SeverityHigh, base, "s1")
	d2 := windowDetection("d2", "checkout", core.SeverityHigh, base.Add(time.Minute), "s2")
	for _, det := range []*core.Detection{d1, d2} {
		_, err := detections.PutDetection(ctx, det)
		require.NoError(t, err)
	}

	rule := testRule()
	window := Window{Start: base, End: base.Add(5 * time.Minute)}

	first, err := gen.Generate(ctx, rule, d1, window, "service=checkout")
	require.NoError(t, err)
	assert.False(t, first.AlreadyExists)

	// Triggered again from the other detection in the same window
	second, err := gen.Generate(ctx, rule, d2, window, "service=checkout")
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.Candidate.CandidateID, second.Candidate.CandidateID)
	assert.Equal(t, first.Bundle.EvidenceID, second.Bundle.EvidenceID)
}

func TestGenerator_EnforcesEveryMatcherField(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	trigger := windowDetection("d-trigger", "checkout", core.SeverityHigh, base, "s1")

	other := windowDetection("d-other", "payments", core.SeverityHigh, base, "s2")
	other.Source = "cloudwatch"
	other.RuleID = "rule-other"
	other.SignalType = "latency"
	other.Severity = core.SeverityLow

	tests := []struct {
		name    string
		matcher core.Matcher
	}{
		{"same service", core.Matcher{SameService: true}},
		{"same source", core.Matcher{SameSource: true}},
		{"same rule", core.Matcher{SameRuleID: true}},
		{"severities", core.Matcher{Severities: []string{core.SeverityHigh, core.SeverityCritical}}},
		{"signal types", core.Matcher{SignalTypes: []string{"error_rate"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterByMatcher([]core.Detection{*trigger, *other}, tt.matcher, trigger)
			require.Len(t, got, 1, "declared matcher field must exclude the mismatching detection")
			assert.Equal(t, "d-trigger", got[0].DetectionID)
		})
	}
}

// brokenGraphStore drops every write so read-back finds no graphs, simulating
// a linkage integrity failure.
type brokenGraphStore struct{}

func (brokenGraphStore) PutEvidenceGraph(ctx context.Context, graph *core.EvidenceGraph) (bool, error) {
	return true, nil
}

func (brokenGraphStore) GetEvidenceGraph(ctx context.Context, graphID string) (*core.EvidenceGraph, error) {
	return nil, storage.ErrEvidenceGraphNotFound
}

func (brokenGraphStore) GetEvidenceGraphsByCandidate(ctx context.Context, candidateID string) ([]core.EvidenceGraph, error) {
	return nil, nil
}

func TestGenerator_DropsDetectionsWithBrokenLinkage(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()
	bundles := storage.NewMemoryEvidenceBundleStorage()
	candidates := storage.NewMemoryCandidateStorage()
	gen := NewGenerator(detections, brokenGraphStore{}, bundles, candidates, zap.NewNop().Sugar())

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d1 := windowDetection("d1", "checkout", core.SeverityHigh, base, "s1")
	d2 := windowDetection("d2", "checkout", core.SeverityHigh, base.Add(time.Minute), "s2")
	for _, det := range []*core.Detection{d1, d2} {
		_, err := detections.PutDetection(ctx, det)
		require.NoError(t, err)
	}

	result, err := gen.Generate(ctx, testRule(), d1, Window{Start: base, End: base.Add(5 * time.Minute)}, "service=checkout")
	require.NoError(t, err)
	assert.True(t, result.Skipped, "all detections dropped on broken linkage leaves nothing to bundle")
	assert.Equal(t, "below min detections after evidence linkage", result.SkipReason)
}
