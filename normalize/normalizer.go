// Package normalize reduces raw observability signals (alarms, metrics, log
// errors) to the canonical NormalizedSignal shape. Everything here is a pure
// function: no I/O, no side effects, fully replayable.
package normalize

import (
	"strings"
	"time"

	"vigil/core"
)

// RawSignal is the typed input contract for upstream producers. Reference
// fields are taken strictly as declared; nothing is ever inferred from names.
type RawSignal struct {
	SourceID        string                 `json:"sourceId"`
	Type            string                 `json:"type"`
	Service         string                 `json:"service"`
	Severity        string                 `json:"severity"`
	Timestamp       time.Time              `json:"timestamp"`
	ResourceRefs    []string               `json:"resourceRefs,omitempty"`
	EnvironmentRefs []string               `json:"environmentRefs,omitempty"`
	EvidenceRefs    []string               `json:"evidenceRefs,omitempty"`
	Fields          map[string]interface{} `json:"fields,omitempty"`
}

// Normalize canonicalizes a raw signal. Type and severity casing is folded to
// lower case, the timestamp to UTC, and the deterministic signal id plus the
// minute-bucketed identity window are computed. Fail-closed on missing
// required fields; the result is immutable once returned.
func Normalize(raw *RawSignal) (*core.NormalizedSignal, error) {
	if raw == nil {
		return nil, core.NewValidationError("signal", "raw signal is nil")
	}
	if strings.TrimSpace(raw.SourceID) == "" {
		return nil, core.NewValidationError("sourceId", "source id is required")
	}
	if strings.TrimSpace(raw.Type) == "" {
		return nil, core.NewValidationError("type", "signal type is required")
	}
	if strings.TrimSpace(raw.Service) == "" {
		return nil, core.NewValidationError("service", "service is required")
	}
	if raw.Timestamp.IsZero() {
		return nil, core.NewValidationError("timestamp", "timestamp is required")
	}

	signalType := strings.ToLower(strings.TrimSpace(raw.Type))
	severity := strings.ToLower(strings.TrimSpace(raw.Severity))
	if severity == "" {
		severity = core.SeverityInfo
	}
	if !core.IsValidSeverity(severity) {
		return nil, core.NewValidationError("severity", "unknown severity "+severity)
	}

	service := strings.ToLower(strings.TrimSpace(raw.Service))
	observedAt := raw.Timestamp.UTC()

	sig := &core.NormalizedSignal{
		SignalID:        core.ComputeNormalizedSignalID(raw.SourceID, signalType, observedAt),
		SourceID:        raw.SourceID,
		Type:            signalType,
		Service:         service,
		Severity:        severity,
		ObservedAt:      observedAt,
		IdentityWindow:  core.ComputeIdentityWindow(service, signalType, observedAt),
		ResourceRefs:    copyRefs(raw.ResourceRefs),
		EnvironmentRefs: copyRefs(raw.EnvironmentRefs),
		EvidenceRefs:    copyRefs(raw.EvidenceRefs),
		Fields:          copyFields(raw.Fields),
	}
	return sig, nil
}

func copyRefs(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
