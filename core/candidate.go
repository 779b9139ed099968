package core

import (
	"time"
)

// ConfidenceBand buckets a confidence score for ordinal policy comparisons.
type ConfidenceBand string

const (
	ConfidenceBandLow      ConfidenceBand = "LOW"
	ConfidenceBandMedium   ConfidenceBand = "MEDIUM"
	ConfidenceBandHigh     ConfidenceBand = "HIGH"
	ConfidenceBandVeryHigh ConfidenceBand = "VERY_HIGH"
)

var confidenceBandRanks = map[ConfidenceBand]int{
	ConfidenceBandLow:      1,
	ConfidenceBandMedium:   2,
	ConfidenceBandHigh:     3,
	ConfidenceBandVeryHigh: 4,
}

// Rank returns the ordinal rank of the band, 0 for unknown.
func (b ConfidenceBand) Rank() int {
	return confidenceBandRanks[b]
}

// BandForScore maps a [0,1] score onto its band.
func BandForScore(score float64) ConfidenceBand {
	switch {
	case score >= 0.9:
		return ConfidenceBandVeryHigh
	case score >= 0.7:
		return ConfidenceBandHigh
	case score >= 0.4:
		return ConfidenceBandMedium
	default:
		return ConfidenceBandLow
	}
}

// ConfidenceFactor is one weighted input to a candidate's confidence score.
type ConfidenceFactor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Value  float64 `json:"value"`
}

// ConfidenceAssessment is the scored confidence attached to a candidate and
// consumed by the promotion gate.
type ConfidenceAssessment struct {
	Band    ConfidenceBand     `json:"band"`
	Score   float64            `json:"score"`
	Factors []ConfidenceFactor `json:"factors,omitempty"`
}

// BlastRadius estimates the scope of a prospective incident.
type BlastRadius struct {
	Scope             string   `json:"scope"`
	AffectedServices  []string `json:"affectedServices"`
	AffectedResources []string `json:"affectedResources,omitempty"`
	EstimatedImpact   string   `json:"estimatedImpact"`
}

// Blast radius scopes, narrowest to widest.
const (
	ScopeSingleService  = "single-service"
	ScopeMultiService   = "multi-service"
	ScopeInfrastructure = "infrastructure-wide"
)

// IncidentCandidate is the deterministic, append-only output of candidate
// generation. Regeneration over the same detection set and rule version
// converges on the same CandidateID.
type IncidentCandidate struct {
	CandidateID      string               `json:"candidateId"`
	CorrelationKey   string               `json:"correlationKey"`
	RuleID           string               `json:"ruleId"`
	RuleVersion      string               `json:"ruleVersion"`
	Title            string               `json:"title"`
	Service          string               `json:"service"`
	Severity         string               `json:"severity"`
	EvidenceGraphIDs []string             `json:"evidenceGraphIds"`
	DetectionIDs     []string             `json:"detectionIds"`
	EvidenceID       string               `json:"evidenceId"`
	Confidence       ConfidenceAssessment `json:"confidence"`
	BlastRadius      BlastRadius          `json:"blastRadius"`
	CreatedAt        time.Time            `json:"createdAt"`
}

// ComputeCandidateID hashes the normalized correlation key plus rule identity.
func ComputeCandidateID(correlationKey, ruleID, ruleVersion string) string {
	return HashParts(correlationKey, ruleID, ruleVersion)
}
