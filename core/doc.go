// Package core defines the domain model for the Vigil incident pipeline.
//
// The core package provides:
//   - Domain types (NormalizedSignal, Detection, CorrelationRule, EvidenceGraph,
//     EvidenceBundle, IncidentCandidate, PromotionResult, Incident, EventRecord)
//   - The incident state machine and the authority/trust model
//   - Deterministic identifier and idempotency-key computation
//   - Canonical state hashing used by event-store replay verification
//   - The three-way error taxonomy (validation / business rejection / integrity)
//
// Everything in this package is pure: no I/O, no clocks except values passed in,
// no store access. Pipeline stages in normalize, detect, correlate and promote
// build on these types; storage persists them; service orchestrates them.
//
// Determinism is the ruling constraint. Every identifier is a content hash of
// its natural key, so re-running any stage over the same inputs converges on
// the same records and conditional writes arbitrate concurrent duplicates.
package core
