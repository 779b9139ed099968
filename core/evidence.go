package core

import (
	"fmt"
	"strings"
	"time"
)

// EvidenceNodeType distinguishes node kinds inside an evidence graph.
type EvidenceNodeType string

const (
	EvidenceNodeDetection EvidenceNodeType = "detection"
	EvidenceNodeSignal    EvidenceNodeType = "signal"
)

// EvidenceNode is one vertex of an evidence graph: a reference to a detection
// or a signal backing the candidate.
type EvidenceNode struct {
	Type  EvidenceNodeType `json:"type"`
	RefID string           `json:"refId"`
}

// EvidenceGraph is the deterministic linkage record proving which detections
// (and, transitively, which signals) back a given candidate. Immutable and
// idempotently stored.
type EvidenceGraph struct {
	GraphID      string         `json:"graphId"`
	CandidateID  string         `json:"candidateId"`
	DetectionIDs []string       `json:"detectionIds"`
	SignalIDs    []string       `json:"signalIds"`
	Nodes        []EvidenceNode `json:"nodes"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// ComputeGraphID hashes the candidate id plus the sorted detection set.
func ComputeGraphID(candidateID string, detectionIDs []string) string {
	sorted := SortedCopy(detectionIDs)
	return HashParts(candidateID, strings.Join(sorted, ","))
}

// References reports whether the graph carries a node for the detection.
func (g *EvidenceGraph) References(detectionID string) bool {
	for _, n := range g.Nodes {
		if n.Type == EvidenceNodeDetection && n.RefID == detectionID {
			return true
		}
	}
	return false
}

// SignalSummary is the pure aggregate computed over a bundle's detections.
type SignalSummary struct {
	SignalCount          int            `json:"signalCount"`
	SeverityDistribution map[string]int `json:"severityDistribution"`
	TimeSpreadMs         int64          `json:"timeSpreadMs"`
	UniqueRules          int            `json:"uniqueRules"`
}

// EvidenceBundle aggregates detection summaries into a scored, windowed
// evidence package. Construction fails closed: a bundle with zero detections
// or a detection outside its window never exists.
type EvidenceBundle struct {
	EvidenceID    string        `json:"evidenceId"`
	DetectionIDs  []string      `json:"detectionIds"`
	Detections    []Detection   `json:"detections"`
	WindowStart   time.Time     `json:"windowStart"`
	WindowEnd     time.Time     `json:"windowEnd"`
	SignalSummary SignalSummary `json:"signalSummary"`
	BundledAt     time.Time     `json:"bundledAt"`
}

// ComputeEvidenceID hashes the sorted detection set plus the window bounds.
// Order-independent in the detection ids.
func ComputeEvidenceID(detectionIDs []string, windowStart, windowEnd time.Time) string {
	sorted := SortedCopy(detectionIDs)
	return HashParts(
		strings.Join(sorted, ","),
		windowStart.UTC().Format(time.RFC3339Nano),
		windowEnd.UTC().Format(time.RFC3339Nano),
	)
}

// NewEvidenceBundle validates and assembles a bundle over [windowStart,
// windowEnd]. Any detection whose detectedAt falls outside the window aborts
// construction; there are no partial bundles.
func NewEvidenceBundle(detections []Detection, windowStart, windowEnd time.Time) (*EvidenceBundle, error) {
	if len(detections) == 0 {
		return nil, NewValidationError("detections", "evidence bundle requires at least one detection")
	}
	if windowEnd.Before(windowStart) {
		return nil, NewValidationError("window", "windowEnd must not precede windowStart")
	}

	detectionIDs := make([]string, 0, len(detections))
	severities := make(map[string]int)
	rules := make(map[string]struct{})
	signalCount := 0
	var minAt, maxAt time.Time

	for i, det := range detections {
		if det.DetectedAt.Before(windowStart) || det.DetectedAt.After(windowEnd) {
			return nil, NewValidationError("detections",
				fmt.Sprintf("detection %s detectedAt %s outside window [%s, %s]",
					det.DetectionID, det.DetectedAt.UTC().Format(time.RFC3339),
					windowStart.UTC().Format(time.RFC3339), windowEnd.UTC().Format(time.RFC3339)))
		}
		detectionIDs = append(detectionIDs, det.DetectionID)
		severities[det.Severity]++
		rules[det.RuleID] = struct{}{}
		signalCount += len(det.SignalIDs)
		if i == 0 || det.DetectedAt.Before(minAt) {
			minAt = det.DetectedAt
		}
		if i == 0 || det.DetectedAt.After(maxAt) {
			maxAt = det.DetectedAt
		}
	}

	bundle := &EvidenceBundle{
		EvidenceID:   ComputeEvidenceID(detectionIDs, windowStart, windowEnd),
		DetectionIDs: SortedCopy(detectionIDs),
		Detections:   detections,
		WindowStart:  windowStart.UTC(),
		WindowEnd:    windowEnd.UTC(),
		SignalSummary: SignalSummary{
			SignalCount:          signalCount,
			SeverityDistribution: severities,
			TimeSpreadMs:         maxAt.Sub(minAt).Milliseconds(),
			UniqueRules:          len(rules),
		},
		BundledAt: windowEnd.UTC(),
	}
	return bundle, nil
}
