package core

import (
	"encoding/json"
	"time"
)

// EventType enumerates the fact kinds recorded in the event store.
type EventType string

const (
	EventIncidentCreated EventType = "INCIDENT_CREATED"
	EventStateChanged    EventType = "STATE_CHANGED"
	EventSignalAdded     EventType = "SIGNAL_ADDED"
	EventApproved        EventType = "APPROVED"
	EventRejected        EventType = "REJECTED"
)

// IsValid reports whether the event type is known to the reducer.
func (t EventType) IsValid() bool {
	switch t {
	case EventIncidentCreated, EventStateChanged, EventSignalAdded, EventApproved, EventRejected:
		return true
	default:
		return false
	}
}

// EventRecord is one append-only fact about an incident, keyed by
// (IncidentID, EventSeq). EventSeq starts at 1 and increments by exactly 1
// with no gaps; the store's conditional write enforces this. The record is
// immutable and is the sole authoritative history.
type EventRecord struct {
	IncidentID     string          `json:"incidentId"`
	EventSeq       int64           `json:"eventSeq"`
	EventType      EventType       `json:"eventType"`
	Payload        json.RawMessage `json:"payload"`
	Actor          string          `json:"actor"`
	OccurredAt     time.Time       `json:"occurredAt"`
	StateHashAfter string          `json:"stateHashAfter"`
}

// StateChangedPayload is the payload of a STATE_CHANGED event. It carries
// everything the replay reducer needs to reproduce the transition without
// consulting the live incident.
type StateChangedPayload struct {
	From       IncidentStatus     `json:"from"`
	To         IncidentStatus     `json:"to"`
	Authority  AuthorityContext   `json:"authority"`
	Metadata   TransitionMetadata `json:"metadata,omitempty"`
	OccurredAt time.Time          `json:"occurredAt"`
}

// SignalAddedPayload is the payload of a SIGNAL_ADDED event.
type SignalAddedPayload struct {
	SignalIDs []string `json:"signalIds"`
}

// ApprovalPayload is the payload of APPROVED and REJECTED events.
type ApprovalPayload struct {
	By   string `json:"by"`
	Note string `json:"note,omitempty"`
}
