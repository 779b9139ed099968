package core

import (
	"fmt"
)

// AuthorityType identifies who (or what) is acting on an incident.
type AuthorityType string

const (
	AuthorityAutoEngine        AuthorityType = "AUTO_ENGINE"
	AuthorityHumanOperator     AuthorityType = "HUMAN_OPERATOR"
	AuthorityOnCallSRE         AuthorityType = "ON_CALL_SRE"
	AuthorityEmergencyOverride AuthorityType = "EMERGENCY_OVERRIDE"
)

// authorityRanks is the fixed permission table. Checks are pure ordinal
// comparisons; there are no database lookups and no dynamic policy.
var authorityRanks = map[AuthorityType]int{
	AuthorityAutoEngine:        1,
	AuthorityHumanOperator:     2,
	AuthorityOnCallSRE:         3,
	AuthorityEmergencyOverride: 4,
}

// authorityMaxSeverity caps the incident severity each authority may promote
// or act on.
var authorityMaxSeverity = map[AuthorityType]string{
	AuthorityAutoEngine:        SeverityHigh,
	AuthorityHumanOperator:     SeverityHigh,
	AuthorityOnCallSRE:         SeverityCritical,
	AuthorityEmergencyOverride: SeverityCritical,
}

// Rank returns the ordinal rank of the authority, 0 for unknown.
func (a AuthorityType) Rank() int {
	return authorityRanks[a]
}

// IsValid reports whether the authority type is known.
func (a AuthorityType) IsValid() bool {
	_, ok := authorityRanks[a]
	return ok
}

// AuthorityContext carries the acting authority on every lifecycle operation.
type AuthorityContext struct {
	Type          AuthorityType `json:"type"`
	ActorID       string        `json:"actorId"`
	Justification string        `json:"justification,omitempty"`
}

// Validate checks the context is well formed. EMERGENCY_OVERRIDE requires a
// justification of at least MinJustificationLength characters on every use;
// its absence is a validation failure, never a silent downgrade.
func (ac *AuthorityContext) Validate() error {
	if !ac.Type.IsValid() {
		return NewValidationError("authority.type", fmt.Sprintf("unknown authority type %q", ac.Type))
	}
	if ac.ActorID == "" {
		return NewValidationError("authority.actorId", "actor id is required")
	}
	if ac.Type == AuthorityEmergencyOverride && len(ac.Justification) < MinJustificationLength {
		return NewBusinessRejection(CodeMissingJustification,
			fmt.Sprintf("EMERGENCY_OVERRIDE requires a justification of at least %d characters", MinJustificationLength))
	}
	return nil
}

// CanActOnSeverity reports whether the authority may act on an incident of the
// given severity.
func (ac *AuthorityContext) CanActOnSeverity(severity string) bool {
	maxSev, ok := authorityMaxSeverity[ac.Type]
	if !ok {
		return false
	}
	return SeverityRank(severity) <= SeverityRank(maxSev)
}

// HasAtLeast reports whether the authority meets the required minimum rank.
func (ac *AuthorityContext) HasAtLeast(required AuthorityType) bool {
	return ac.Type.Rank() >= required.Rank()
}
