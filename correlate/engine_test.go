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

func newTestEngine(rules []*core.CorrelationRule, detections *storage.MemoryDetectionStorage) *Engine {
	gen, _, _, _ := newTestGenerator(detections)
	return NewEngine(NewRuleSet(rules), detections, NewExecutor(gen), zap.NewNop().Sugar())
}

func testSignal(id, service string, observedAt time.Time) *core.NormalizedSignal {
	return &core.NormalizedSignal{
		SignalID:       id,
		SourceID:       "prometheus:" + id,
		Type:           "error_rate",
		Service:        service,
		Severity:       core.SeverityHigh,
		ObservedAt:     observedAt,
		IdentityWindow: core.ComputeIdentityWindow(service, "error_rate", observedAt),
	}
}

func TestEngine_ProducesCandidateWhenThresholdMet(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()
	engine := newTestEngine([]*core.CorrelationRule{testRule()}, detections)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d1 := windowDetection("d1", "checkout", core.SeverityHigh, base.Add(time.Minute), "s1")
	d2 := windowDetection("d2", "checkout", core.SeverityHigh, base.Add(2*time.Minute), "s2")
	for _, det := range []*core.Detection{d1, d2} {
		_, err := detections.PutDetection(ctx, det)
		require.NoError(t, err)
	}

	sig := testSignal("s2", "checkout", base.Add(2*time.Minute))
	outcomes, err := engine.ProcessSignal(ctx, sig, d2)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, []string{"d1", "d2"}, outcomes[0].Candidate.DetectionIDs)
	assert.Equal(t, "service=checkout", outcomes[0].Candidate.CorrelationKey)
}

func TestEngine_NoOutcomeBelowSignalThreshold(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()
	engine := newTestEngine([]*core.CorrelationRule{testRule()}, detections)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d1 := windowDetection("d1", "checkout", core.SeverityHigh, base.Add(time.Minute), "s1")
	_, err := detections.PutDetection(ctx, d1)
	require.NoError(t, err)

	sig := testSignal("s1", "checkout", base.Add(time.Minute))
	outcomes, err := engine.ProcessSignal(ctx, sig, d1)
	require.NoError(t, err)
	assert.Empty(t, outcomes, "one distinct signal is below MinSignals=2")
}

func TestEngine_ThresholdCountsOnlyMatcherAcceptedDetections(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()
	engine := newTestEngine([]*core.CorrelationRule{testRule()}, detections)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Same window, different service: the SameService matcher excludes it, so
	// it must not count toward the threshold either.
	d1 := windowDetection("d1", "checkout", core.SeverityHigh, base.Add(time.Minute), "s1")
	other := windowDetection("d-other", "payments", core.SeverityHigh, base.Add(time.Minute), "s-other")
	for _, det := range []*core.Detection{d1, other} {
		_, err := detections.PutDetection(ctx, det)
		require.NoError(t, err)
	}

	sig := testSignal("s1", "checkout", base.Add(time.Minute))
	outcomes, err := engine.ProcessSignal(ctx, sig, d1)
	require.NoError(t, err)
	assert.Empty(t, outcomes, "one matched signal is below MinSignals=2")
}

func TestEngine_ThresholdScopedToRuleWhenSameRuleIDSet(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()

	rule := testRule()
	rule.Matcher = core.Matcher{SameRuleID: true}
	engine := newTestEngine([]*core.CorrelationRule{rule}, detections)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d1 := windowDetection("d1", "checkout", core.SeverityHigh, base.Add(time.Minute), "s1")
	foreign := windowDetection("d-foreign", "checkout", core.SeverityHigh, base.Add(time.Minute), "s-foreign")
	foreign.RuleID = "rule-latency"
	for _, det := range []*core.Detection{d1, foreign} {
		_, err := detections.PutDetection(ctx, det)
		require.NoError(t, err)
	}

	sig := testSignal("s1", "checkout", base.Add(time.Minute))
	outcomes, err := engine.ProcessSignal(ctx, sig, d1)
	require.NoError(t, err)
	assert.Empty(t, outcomes, "another rule's detections cannot satisfy this rule's threshold")
}

func TestEngine_SkipsRulesWhoseFiltersDoNotMatch(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()

	rule := testRule()
	rule.Filters = []core.Condition{
		{Field: "service", Operator: "equals", Value: "payments"},
	}
	engine := newTestEngine([]*core.CorrelationRule{rule}, detections)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d1 := windowDetection("d1", "checkout", core.SeverityHigh, base.Add(time.Minute), "s1")
	d2 := windowDetection("d2", "checkout", core.SeverityHigh, base.Add(2*time.Minute), "s2")
	for _, det := range []*core.Detection{d1, d2} {
		_, err := detections.PutDetection(ctx, det)
		require.NoError(t, err)
	}

	sig := testSignal("s2", "checkout", base.Add(2*time.Minute))
	outcomes, err := engine.ProcessSignal(ctx, sig, d2)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestEngine_IgnoresDisabledRules(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()

	rule := testRule()
	rule.Enabled = false
	engine := newTestEngine([]*core.CorrelationRule{rule}, detections)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d1 := windowDetection("d1", "checkout", core.SeverityHigh, base.Add(time.Minute), "s1")
	d2 := windowDetection("d2", "checkout", core.SeverityHigh, base.Add(2*time.Minute), "s2")
	for _, det := range []*core.Detection{d1, d2} {
		_, err := detections.PutDetection(ctx, det)
		require.NoError(t, err)
	}

	sig := testSignal("s2", "checkout", base.Add(2*time.Minute))
	outcomes, err := engine.ProcessSignal(ctx, sig, d2)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestEngine_SlidingWindowAnchorsOnSignal(t *testing.T) {
	ctx := context.Background()
	detections := storage.NewMemoryDetectionStorage()

	rule := testRule()
	rule.TimeWindow.Alignment = core.WindowAlignmentSliding
	engine := newTestEngine([]*core.CorrelationRule{rule}, detections)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Both detections sit strictly before the anchoring signal, inside [t-5m, t)
	d1 := windowDetection("d1", "checkout", core.SeverityHigh, base.Add(-4*time.Minute), "s1")
	d2 := windowDetection("d2", "checkout", core.SeverityHigh, base.Add(-time.Minute), "s2")
	for _, det := range []*core.Detection{d1, d2} {
		_, err := detections.PutDetection(ctx, det)
		require.NoError(t, err)
	}

	sig := testSignal("s3", "checkout", base)
	outcomes, err := engine.ProcessSignal(ctx, sig, d2)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, []string{"d1", "d2"}, outcomes[0].Candidate.DetectionIDs)
}
