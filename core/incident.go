package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentStatusPending    IncidentStatus = "PENDING"
	IncidentStatusOpen       IncidentStatus = "OPEN"
	IncidentStatusMitigating IncidentStatus = "MITIGATING"
	IncidentStatusResolved   IncidentStatus = "RESOLVED"
	IncidentStatusClosed     IncidentStatus = "CLOSED"
)

// String returns the string representation.
func (s IncidentStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusPending, IncidentStatusOpen, IncidentStatusMitigating,
		IncidentStatusResolved, IncidentStatusClosed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentStatusClosed
}

// TransitionMetadata carries edge-specific inputs (e.g. a resolution reason).
type TransitionMetadata map[string]string

// transitionRequirement declares the minimum authority and required metadata
// keys for one edge of the state machine.
type transitionRequirement struct {
	MinAuthority     AuthorityType
	RequiredMetadata []string
}

type transitionEdge struct {
	From IncidentStatus
	To   IncidentStatus
}

// validTransitions is the complete transition table. An edge absent from this
// map is illegal; CLOSED is terminal with no outgoing edges, including no
// reopen.
var validTransitions = map[transitionEdge]transitionRequirement{
	{IncidentStatusPending, IncidentStatusOpen}:        {MinAuthority: AuthorityAutoEngine},
	{IncidentStatusOpen, IncidentStatusMitigating}:     {MinAuthority: AuthorityHumanOperator},
	{IncidentStatusOpen, IncidentStatusResolved}:       {MinAuthority: AuthorityOnCallSRE, RequiredMetadata: []string{"reason"}},
	{IncidentStatusMitigating, IncidentStatusResolved}: {MinAuthority: AuthorityOnCallSRE, RequiredMetadata: []string{"reason"}},
	{IncidentStatusResolved, IncidentStatusClosed}:     {MinAuthority: AuthorityHumanOperator},
}

// AllowedTransitions returns the legal next states from a status, sorted for
// stable error messages.
func AllowedTransitions(from IncidentStatus) []IncidentStatus {
	var out []IncidentStatus
	for edge := range validTransitions {
		if edge.From == from {
			out = append(out, edge.To)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ApprovalState folds advisory approval events into incident state.
type ApprovalState struct {
	State string `json:"state"`
	By    string `json:"by,omitempty"`
	Note  string `json:"note,omitempty"`
}

// Approval states.
const (
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Incident is the mutable-by-append lifecycle entity. It is created only by a
// PROMOTE decision and never destroyed; CLOSED is as far as it goes.
//
// JSON tags matter here: the canonical state hash is computed over this JSON
// shape with the volatile fields (version, updatedAt, updatedBy, timeline)
// excluded. Renaming a tag is a hash-breaking change.
type Incident struct {
	IncidentID  string         `json:"incidentId"`
	Status      IncidentStatus `json:"status"`
	Service     string         `json:"service"`
	Severity    string         `json:"severity"`
	Title       string         `json:"title"`
	CandidateID string         `json:"candidateId"`
	EvidenceID  string         `json:"evidenceId"`
	SignalIDs   []string       `json:"signalIds,omitempty"`
	Approval    *ApprovalState `json:"approval,omitempty"`

	CreatedAt    time.Time  `json:"createdAt"`
	OpenedAt     *time.Time `json:"openedAt,omitempty"`
	MitigatingAt *time.Time `json:"mitigatingAt,omitempty"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
	ClosedAt     *time.Time `json:"closedAt,omitempty"`

	ResolutionSummary string `json:"resolutionSummary,omitempty"`
	ResolutionType    string `json:"resolutionType,omitempty"`
	ResolvedBy        string `json:"resolvedBy,omitempty"`

	// Volatile bookkeeping, excluded from the canonical hash.
	IncidentVersion int64     `json:"version"`
	UpdatedAt       time.Time `json:"updatedAt"`
	UpdatedBy       string    `json:"updatedBy,omitempty"`
}

// Clone returns a deep copy of the incident.
func (inc *Incident) Clone() *Incident {
	out := *inc
	if inc.SignalIDs != nil {
		out.SignalIDs = append([]string(nil), inc.SignalIDs...)
	}
	if inc.Approval != nil {
		approval := *inc.Approval
		out.Approval = &approval
	}
	copyTime := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := *t
		return &v
	}
	out.OpenedAt = copyTime(inc.OpenedAt)
	out.MitigatingAt = copyTime(inc.MitigatingAt)
	out.ResolvedAt = copyTime(inc.ResolvedAt)
	out.ClosedAt = copyTime(inc.ClosedAt)
	return &out
}

// ApplyTransition validates a lifecycle transition and returns the resulting
// incident snapshot. The input incident is not mutated.
//
// Rejection order: same-state, terminal state, edge not in table (the error
// enumerates legal next states), authority rank, required metadata. Human
// actions are real-time events, so the transition timestamp comes from the
// caller's wall clock, unlike evidence timestamps which are derived.
func (inc *Incident) ApplyTransition(to IncidentStatus, authority AuthorityContext, meta TransitionMetadata, now time.Time) (*Incident, error) {
	if !to.IsValid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", to))
	}
	if to == inc.Status {
		return nil, NewBusinessRejection(CodeIllegalTransition,
			fmt.Sprintf("incident is already %s", inc.Status))
	}
	if inc.Status.IsTerminal() {
		return nil, NewBusinessRejection(CodeIllegalTransition,
			fmt.Sprintf("%s is terminal; no transitions allowed", inc.Status))
	}

	req, ok := validTransitions[transitionEdge{From: inc.Status, To: to}]
	if !ok {
		return nil, NewBusinessRejection(CodeIllegalTransition,
			fmt.Sprintf("illegal transition %s → %s (allowed: %s)",
				inc.Status, to, formatStatuses(AllowedTransitions(inc.Status))))
	}

	if !authority.HasAtLeast(req.MinAuthority) {
		return nil, NewBusinessRejection(CodeUnauthorized,
			fmt.Sprintf("%s → %s requires at least %s authority, got %s",
				inc.Status, to, req.MinAuthority, authority.Type))
	}

	for _, key := range req.RequiredMetadata {
		if strings.TrimSpace(meta[key]) == "" {
			return nil, NewValidationError("metadata."+key,
				fmt.Sprintf("transition %s → %s requires non-empty %q", inc.Status, to, key))
		}
	}

	next := inc.Clone()
	next.Status = to
	next.IncidentVersion = inc.IncidentVersion + 1
	next.UpdatedAt = now.UTC()
	next.UpdatedBy = authority.ActorID

	stamp := now.UTC()
	switch to {
	case IncidentStatusOpen:
		next.OpenedAt = &stamp
	case IncidentStatusMitigating:
		next.MitigatingAt = &stamp
	case IncidentStatusResolved:
		next.ResolvedAt = &stamp
		next.ResolutionSummary = meta["reason"]
		next.ResolutionType = meta["resolutionType"]
		next.ResolvedBy = authority.ActorID
	case IncidentStatusClosed:
		next.ClosedAt = &stamp
	}

	return next, nil
}

func formatStatuses(statuses []IncidentStatus) string {
	if len(statuses) == 0 {
		return "none"
	}
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

// ErrIncidentNotActive is returned when an operation requires a non-terminal
// incident.
var ErrIncidentNotActive = errors.New("incident is not active")

// IsActive reports whether the incident is in a non-terminal state.
func (inc *Incident) IsActive() bool {
	return !inc.Status.IsTerminal()
}
