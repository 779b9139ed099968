package core

import "strings"

// Idempotency key namespaces. Each stage hashes its natural key under its own
// prefix so identical raw ids in different stages never collide. Keys are
// permanent audit artifacts: no TTL, no bypass.
const (
	NamespaceEvidence   = "EVIDENCE"
	NamespaceConfidence = "CONFIDENCE"
	NamespacePromotion  = "PROMOTION"
	NamespaceIncident   = "INCIDENT"
)

// ComputeEvidenceKey derives the idempotency key for an evidence bundle build.
// Detection IDs are sorted first so every permutation of the same set yields
// the same key.
func ComputeEvidenceKey(detectionIDs []string) string {
	sorted := SortedCopy(detectionIDs)
	return NamespaceEvidence + ":" + HashParts(strings.Join(sorted, ","))
}

// ComputeConfidenceKey derives the idempotency key for a confidence assessment.
func ComputeConfidenceKey(evidenceID string) string {
	return NamespaceConfidence + ":" + HashParts(evidenceID)
}

// ComputePromotionKey derives the idempotency key for a promotion evaluation.
func ComputePromotionKey(candidateID string) string {
	return NamespacePromotion + ":" + HashParts(candidateID)
}

// ComputeIncidentKey derives the idempotency key for an incident create.
func ComputeIncidentKey(incidentID string) string {
	return NamespaceIncident + ":" + HashParts(incidentID)
}
