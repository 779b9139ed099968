package core

// Severity levels for signals, detections and incidents.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// severityRanks orders severities for comparisons and top-N selection.
// Higher rank means more severe. Unknown severities rank below info.
var severityRanks = map[string]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityLow:      2,
	SeverityInfo:     1,
}

// SeverityRank returns the ordinal rank of a severity, 0 for unknown.
func SeverityRank(severity string) int {
	return severityRanks[severity]
}

// IsValidSeverity reports whether severity is one of the known levels.
func IsValidSeverity(severity string) bool {
	_, ok := severityRanks[severity]
	return ok
}

const (
	// MaxTraceSteps caps the evaluation trace recorded per detection.
	// Conditions past the cap still evaluate; only the trace is truncated.
	MaxTraceSteps = 20

	// NormalizationVersion is folded into every signal ID so that a change
	// in normalization semantics never collides with previously stored signals.
	NormalizationVersion = "v1"

	// ConfidenceSignalSaturation is the signal count at which detection
	// confidence reaches 1.0 (confidence = min(1, signalCount/saturation)).
	ConfidenceSignalSaturation = 10

	// MinJustificationLength is the minimum justification required on every
	// EMERGENCY_OVERRIDE action.
	MinJustificationLength = 20

	// MaxErrorMessageLength bounds error text returned to API clients.
	MaxErrorMessageLength = 500
)
