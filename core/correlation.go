package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// WindowAlignment selects how correlation windows anchor in time.
type WindowAlignment string

const (
	// WindowAlignmentFixed aligns windows to epoch multiples of the duration
	// (floor(t/d)*d), so the same timestamp always lands in the same window
	// regardless of arrival order. Replay-stable.
	WindowAlignmentFixed WindowAlignment = "fixed"
	// WindowAlignmentSliding anchors the window on the signal's own observedAt:
	// [observedAt-d, observedAt).
	WindowAlignmentSliding WindowAlignment = "sliding"
)

// IsValid reports whether the alignment is a known value.
func (a WindowAlignment) IsValid() bool {
	return a == WindowAlignmentFixed || a == WindowAlignmentSliding
}

// Condition is one field check inside a rule's filter list. Conditions are
// combined with AND semantics and evaluated in declared order.
type Condition struct {
	Field    string      `json:"field" yaml:"field" validate:"required"`
	Operator string      `json:"operator" yaml:"operator" validate:"required"`
	Value    interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// TimeWindow declares the correlation window of a rule.
type TimeWindow struct {
	Duration  time.Duration   `json:"duration" yaml:"duration" validate:"required,gt=0"`
	Alignment WindowAlignment `json:"alignment" yaml:"alignment" validate:"required"`
}

// GroupBy selects which signal attributes participate in the correlation key.
type GroupBy struct {
	Service        bool `json:"service" yaml:"service"`
	Severity       bool `json:"severity" yaml:"severity"`
	IdentityWindow bool `json:"identityWindow" yaml:"identityWindow"`
}

// Threshold bounds how many signals a window must collect before a rule fires.
type Threshold struct {
	MinSignals int `json:"minSignals" yaml:"minSignals" validate:"required,gt=0"`
	MaxSignals int `json:"maxSignals,omitempty" yaml:"maxSignals,omitempty" validate:"omitempty,gtefield=MinSignals"`
}

// Matcher narrows which detections inside a window are pulled into a
// candidate. Every declared field MUST affect filtering; an unenforced
// declared field is a correctness bug, not a tuning knob.
type Matcher struct {
	SameService bool     `json:"sameService" yaml:"sameService"`
	SameSource  bool     `json:"sameSource" yaml:"sameSource"`
	SameRuleID  bool     `json:"sameRuleId" yaml:"sameRuleId"`
	Severities  []string `json:"severities,omitempty" yaml:"severities,omitempty"`
	SignalTypes []string `json:"signalTypes,omitempty" yaml:"signalTypes,omitempty"`
}

// CandidateTemplate shapes the candidate a rule produces.
type CandidateTemplate struct {
	Title         string `json:"title" yaml:"title" validate:"required"`
	Scope         string `json:"scope,omitempty" yaml:"scope,omitempty"`
	MinDetections int    `json:"minDetections" yaml:"minDetections" validate:"required,gt=0"`
	MaxDetections int    `json:"maxDetections" yaml:"maxDetections" validate:"required,gtefield=MinDetections"`
}

// CorrelationRule is an immutable, versioned rule. Updates create new
// versions; a rule is never edited in place, so detection and candidate ids
// derived from (ruleId, ruleVersion) stay stable forever.
type CorrelationRule struct {
	RuleID            string            `json:"ruleId" yaml:"ruleId" validate:"required"`
	RuleVersion       string            `json:"ruleVersion" yaml:"ruleVersion" validate:"required"`
	Name              string            `json:"name" yaml:"name" validate:"required"`
	Description       string            `json:"description,omitempty" yaml:"description,omitempty"`
	Severity          string            `json:"severity" yaml:"severity" validate:"required"`
	Enabled           bool              `json:"enabled" yaml:"enabled"`
	Filters           []Condition       `json:"filters" yaml:"filters" validate:"dive"`
	TimeWindow        TimeWindow        `json:"timeWindow" yaml:"timeWindow" validate:"required"`
	GroupBy           GroupBy           `json:"groupBy" yaml:"groupBy"`
	Threshold         Threshold         `json:"threshold" yaml:"threshold" validate:"required"`
	Matcher           Matcher           `json:"matcher" yaml:"matcher"`
	CandidateTemplate CandidateTemplate `json:"candidateTemplate" yaml:"candidateTemplate" validate:"required"`
}

// semverPattern matches the MAJOR.MINOR.PATCH rule version discipline.
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Validate checks structural invariants not covered by struct tags. Returns a
// typed ValidationError, never panics across module boundaries.
func (r *CorrelationRule) Validate() error {
	if !semverPattern.MatchString(r.RuleVersion) {
		return NewValidationError("ruleVersion", fmt.Sprintf("%q is not MAJOR.MINOR.PATCH", r.RuleVersion))
	}
	if !r.TimeWindow.Alignment.IsValid() {
		return NewValidationError("timeWindow.alignment", fmt.Sprintf("unknown alignment %q", r.TimeWindow.Alignment))
	}
	if r.TimeWindow.Duration <= 0 {
		return NewValidationError("timeWindow.duration", "must be positive")
	}
	if !IsValidSeverity(r.Severity) {
		return NewValidationError("severity", fmt.Sprintf("unknown severity %q", r.Severity))
	}
	for _, s := range r.Matcher.Severities {
		if !IsValidSeverity(s) {
			return NewValidationError("matcher.severities", fmt.Sprintf("unknown severity %q", s))
		}
	}
	return nil
}

// CorrelationKeyFor builds the normalized group key for a signal under this
// rule's GroupBy declaration. Components are emitted in a fixed order so the
// key is deterministic.
func (r *CorrelationRule) CorrelationKeyFor(sig *NormalizedSignal) string {
	parts := make([]string, 0, 3)
	if r.GroupBy.Service {
		parts = append(parts, "service="+strings.ToLower(sig.Service))
	}
	if r.GroupBy.Severity {
		parts = append(parts, "severity="+strings.ToLower(sig.Severity))
	}
	if r.GroupBy.IdentityWindow {
		parts = append(parts, "identityWindow="+sig.IdentityWindow)
	}
	if len(parts) == 0 {
		parts = append(parts, "rule="+r.RuleID)
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}
