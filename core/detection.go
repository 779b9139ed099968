package core

import (
	"strings"
	"time"
)

// TraceStepTruncated marks the synthetic trace entry appended when a rule has
// more conditions than MaxTraceSteps. Evaluation still covers every condition;
// only the recorded trace is capped.
const TraceStepTruncated = "TRUNCATED"

// TraceStep records one condition check performed while evaluating a rule
// against a signal. The full ordered trace is always produced, never
// short-circuited, so replayed evaluations are byte-identical.
type TraceStep struct {
	Step     int         `json:"step"`
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Expected interface{} `json:"expected,omitempty"`
	Actual   interface{} `json:"actual,omitempty"`
	Passed   bool        `json:"passed"`
}

// Detection is an immutable record of a rule matching one or more signals.
// Its identity is a content hash, so the same signal set evaluated against the
// same rule version always converges on the same record.
type Detection struct {
	DetectionID     string      `json:"detectionId"`
	RuleID          string      `json:"ruleId"`
	RuleVersion     string      `json:"ruleVersion"`
	Service         string      `json:"service"`
	Severity        string      `json:"severity"`
	Source          string      `json:"source"`
	SignalType      string      `json:"signalType"`
	Confidence      float64     `json:"confidence"`
	SignalIDs       []string    `json:"signalIds"`
	ResourceRefs    []string    `json:"resourceRefs,omitempty"`
	DetectedAt      time.Time   `json:"detectedAt"`
	EvaluationTrace []TraceStep `json:"evaluationTrace,omitempty"`
}

// ComputeDetectionID hashes the sorted signal set plus rule identity.
// Order-independent in the signal ids.
func ComputeDetectionID(signalIDs []string, ruleID, ruleVersion string) string {
	sorted := SortedCopy(signalIDs)
	return HashParts(strings.Join(sorted, ","), ruleID, ruleVersion)
}

// DetectionConfidence maps a signal count to [0,1]: min(1, n/10).
func DetectionConfidence(signalCount int) float64 {
	c := float64(signalCount) / float64(ConfidenceSignalSaturation)
	if c > 1 {
		return 1
	}
	return c
}
