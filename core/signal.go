package core

import (
	"time"
)

// NormalizedSignal is the canonical shape every raw observability signal is
// reduced to before it enters the pipeline. Immutable once created.
type NormalizedSignal struct {
	SignalID        string                 `json:"signalId"`
	SourceID        string                 `json:"sourceId"`
	Type            string                 `json:"type"`
	Service         string                 `json:"service"`
	Severity        string                 `json:"severity"`
	ObservedAt      time.Time              `json:"observedAt"`
	IdentityWindow  string                 `json:"identityWindow"`
	ResourceRefs    []string               `json:"resourceRefs,omitempty"`
	EnvironmentRefs []string               `json:"environmentRefs,omitempty"`
	EvidenceRefs    []string               `json:"evidenceRefs,omitempty"`
	Fields          map[string]interface{} `json:"fields,omitempty"`
}

// ComputeNormalizedSignalID hashes the normalization version, source id, type
// and timestamp into the deterministic signal identity. The same raw signal
// normalized twice always yields the same id.
func ComputeNormalizedSignalID(sourceID, signalType string, observedAt time.Time) string {
	return HashParts(NormalizationVersion, sourceID, signalType, observedAt.UTC().Format(time.RFC3339Nano))
}

// ComputeIdentityWindow computes the minute-bucketed dedup key for a signal.
// Two signals for the same service and type observed within the same minute
// share an identity window.
func ComputeIdentityWindow(service, signalType string, observedAt time.Time) string {
	bucket := observedAt.UTC().Truncate(time.Minute)
	return service + ":" + signalType + ":" + bucket.Format("2006-01-02T15:04Z")
}
