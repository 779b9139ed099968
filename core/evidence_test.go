package core

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexSHA256 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestNewEvidenceBundle_Scenario(t *testing.T) {
	// det-1 carries signals s1,s2 at 10:00; det-2 carries s3 at 10:02;
	// window is [10:00, 10:05).
	windowStart := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(5 * time.Minute)

	detections := []Detection{
		{
			DetectionID: "det-1", RuleID: "rule-a", RuleVersion: "1.0.0",
			Service: "checkout", Severity: SeverityHigh,
			SignalIDs: []string{"s1", "s2"}, DetectedAt: windowStart,
		},
		{
			DetectionID: "det-2", RuleID: "rule-b", RuleVersion: "1.0.0",
			Service: "checkout", Severity: SeverityHigh,
			SignalIDs: []string{"s3"}, DetectedAt: windowStart.Add(2 * time.Minute),
		},
	}

	bundle, err := NewEvidenceBundle(detections, windowStart, windowEnd)
	require.NoError(t, err)

	assert.Regexp(t, hexSHA256, bundle.EvidenceID)
	assert.Equal(t, 3, bundle.SignalSummary.SignalCount)
	assert.Equal(t, int64(120000), bundle.SignalSummary.TimeSpreadMs)
	assert.Equal(t, 2, bundle.SignalSummary.UniqueRules)
	assert.Equal(t, map[string]int{SeverityHigh: 2}, bundle.SignalSummary.SeverityDistribution)
	assert.Equal(t, windowEnd, bundle.BundledAt)
}

func TestNewEvidenceBundle_FailsClosed(t *testing.T) {
	windowStart := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(5 * time.Minute)

	_, err := NewEvidenceBundle(nil, windowStart, windowEnd)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = NewEvidenceBundle([]Detection{{DetectionID: "d"}}, windowEnd, windowStart)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	outside := []Detection{{
		DetectionID: "det-late", RuleID: "r", SignalIDs: []string{"s1"},
		DetectedAt: windowEnd.Add(time.Second),
	}}
	_, err = NewEvidenceBundle(outside, windowStart, windowEnd)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestEvidenceGraph_References(t *testing.T) {
	graph := &EvidenceGraph{
		GraphID:      ComputeGraphID("cand-1", []string{"d1"}),
		CandidateID:  "cand-1",
		DetectionIDs: []string{"d1"},
		SignalIDs:    []string{"s1", "s2"},
		Nodes: []EvidenceNode{
			{Type: EvidenceNodeDetection, RefID: "d1"},
			{Type: EvidenceNodeSignal, RefID: "s1"},
			{Type: EvidenceNodeSignal, RefID: "s2"},
		},
	}

	assert.True(t, graph.References("d1"))
	assert.False(t, graph.References("s1"), "signal nodes do not satisfy detection linkage")
	assert.False(t, graph.References("d2"))
}

func TestDetectionConfidence(t *testing.T) {
	assert.InDelta(t, 0.1, DetectionConfidence(1), 1e-9)
	assert.InDelta(t, 0.5, DetectionConfidence(5), 1e-9)
	assert.Equal(t, 1.0, DetectionConfidence(10))
	assert.Equal(t, 1.0, DetectionConfidence(25))
}

func TestComputeDetectionID_OrderIndependent(t *testing.T) {
	a := ComputeDetectionID([]string{"s1", "s2"}, "rule-a", "1.0.0")
	b := ComputeDetectionID([]string{"s2", "s1"}, "rule-a", "1.0.0")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ComputeDetectionID([]string{"s1", "s2"}, "rule-a", "1.0.1"))
}
