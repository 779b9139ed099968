// Package service holds the business logic between HTTP handlers and storage:
// incident lifecycle, event-log replay verification, and the end-to-end
// signal pipeline.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vigil/core"
	"vigil/metrics"
	"vigil/storage"
)

// IncidentService owns the incident lifecycle. Every mutation appends to the
// event log first; the live incident row is a projection updated afterwards
// under an optimistic version guard. The event log is the authority.
type IncidentService struct {
	incidents storage.IncidentStorageInterface
	events    storage.EventStorageInterface
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewIncidentService creates an incident service.
func NewIncidentService(incidents storage.IncidentStorageInterface, events storage.EventStorageInterface, logger *zap.SugaredLogger) *IncidentService {
	return &IncidentService{
		incidents: incidents,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateFromPromotion turns a PROMOTE decision into a PENDING incident. The
// incident's identity and creation time both derive from the promotion
// record, so replaying the same promotion converges instead of duplicating.
// The acting authority's severity cap is enforced here: an automated caller
// cannot create an incident above its cap, those need a human promotion.
// The bool reports whether this call created the incident.
func (s *IncidentService) CreateFromPromotion(ctx context.Context, promo *core.PromotionResult, candidate *core.IncidentCandidate, authority core.AuthorityContext) (*core.Incident, bool, error) {
	if err := authority.Validate(); err != nil {
		return nil, false, err
	}
	if promo.Decision != core.DecisionPromote {
		return nil, false, core.NewValidationError("decision",
			fmt.Sprintf("cannot create an incident from a %s decision", promo.Decision))
	}
	if promo.IncidentID == "" {
		return nil, false, core.NewValidationError("incidentId", "promotion result carries no incident id")
	}
	if !authority.CanActOnSeverity(candidate.Severity) {
		return nil, false, core.NewBusinessRejection(core.CodeUnauthorized,
			fmt.Sprintf("%s authority cannot create a %s severity incident", authority.Type, candidate.Severity))
	}

	inc := &core.Incident{
		IncidentID:      promo.IncidentID,
		Status:          core.IncidentStatusPending,
		Service:         candidate.Service,
		Severity:        candidate.Severity,
		Title:           candidate.Title,
		CandidateID:     candidate.CandidateID,
		EvidenceID:      promo.EvidenceID,
		CreatedAt:       promo.EvaluatedAt,
		IncidentVersion: 1,
		UpdatedAt:       promo.EvaluatedAt,
		UpdatedBy:       authority.ActorID,
	}

	hash, err := core.CanonicalStateHash(inc)
	if err != nil {
		return nil, false, err
	}
	payload, err := json.Marshal(inc)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal incident payload: %w", err)
	}

	err = s.events.AppendEvent(ctx, &core.EventRecord{
		IncidentID:     inc.IncidentID,
		EventSeq:       1,
		EventType:      core.EventIncidentCreated,
		Payload:        payload,
		Actor:          authority.ActorID,
		OccurredAt:     promo.EvaluatedAt,
		StateHashAfter: hash,
	})
	if err == storage.ErrSequenceConflict {
		// A concurrent promotion of the same evidence won the race. The winner
		// may not have projected the live row yet, so fall back to its
		// INCIDENT_CREATED payload, which carries the identical snapshot.
		existing, getErr := s.incidents.GetIncident(ctx, inc.IncidentID)
		if getErr == storage.ErrIncidentNotFound {
			return s.incidentFromCreationEvent(ctx, inc.IncidentID)
		}
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	created, err := s.incidents.CreateIncident(ctx, inc)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, getErr := s.incidents.GetIncident(ctx, inc.IncidentID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}

	s.logger.Infow("Incident created from promotion",
		"incidentId", inc.IncidentID,
		"candidateId", candidate.CandidateID,
		"service", inc.Service,
		"severity", inc.Severity)

	return inc, true, nil
}

// incidentFromCreationEvent rebuilds the created incident from the first event
// in the log. Only reachable when a sequence conflict proved the event exists.
func (s *IncidentService) incidentFromCreationEvent(ctx context.Context, incidentID string) (*core.Incident, bool, error) {
	events, err := s.events.GetEvents(ctx, incidentID)
	if err != nil {
		return nil, false, err
	}
	if len(events) == 0 || events[0].EventType != core.EventIncidentCreated {
		return nil, false, storage.ErrIncidentNotFound
	}
	var inc core.Incident
	if err := json.Unmarshal(events[0].Payload, &inc); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal creation event for %s: %w", incidentID, err)
	}
	return &inc, false, nil
}

// GetIncident returns the live incident view.
func (s *IncidentService) GetIncident(ctx context.Context, incidentID string) (*core.Incident, error) {
	inc, err := s.incidents.GetIncident(ctx, incidentID)
	if err == storage.ErrIncidentNotFound {
		return nil, core.NewBusinessRejection(core.CodeNotFound,
			fmt.Sprintf("incident %s not found", incidentID))
	}
	return inc, err
}

// ListIncidents returns a page of incidents, newest first.
func (s *IncidentService) ListIncidents(ctx context.Context, limit, offset int) ([]core.Incident, int64, error) {
	return s.incidents.ListIncidents(ctx, limit, offset)
}

// GetEvents returns an incident's full event history in sequence order.
func (s *IncidentService) GetEvents(ctx context.Context, incidentID string) ([]core.EventRecord, error) {
	events, err := s.events.GetEvents(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, core.NewBusinessRejection(core.CodeNotFound,
			fmt.Sprintf("incident %s has no recorded events", incidentID))
	}
	return events, nil
}

// Transition moves an incident to a new lifecycle state under the given
// authority. The pure state machine validates the edge; this layer adds the
// authority's severity cap, records the STATE_CHANGED event and updates the
// live projection.
func (s *IncidentService) Transition(ctx context.Context, incidentID string, to core.IncidentStatus, authority core.AuthorityContext, meta core.TransitionMetadata) (*core.Incident, error) {
	if err := authority.Validate(); err != nil {
		return nil, err
	}

	inc, err := s.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	if !authority.CanActOnSeverity(inc.Severity) {
		return nil, core.NewBusinessRejection(core.CodeUnauthorized,
			fmt.Sprintf("%s authority cannot act on a %s severity incident", authority.Type, inc.Severity))
	}

	next, err := inc.ApplyTransition(to, authority, meta, s.now())
	if err != nil {
		return nil, err
	}

	occurredAt := next.UpdatedAt
	payload, err := json.Marshal(core.StateChangedPayload{
		From:       inc.Status,
		To:         to,
		Authority:  authority,
		Metadata:   meta,
		OccurredAt: occurredAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transition payload: %w", err)
	}

	if err := s.appendAndProject(ctx, inc, next, core.EventStateChanged, payload, authority.ActorID, occurredAt); err != nil {
		return nil, err
	}

	metrics.IncidentTransitions.WithLabelValues(string(to)).Inc()
	s.logger.Infow("Incident transitioned",
		"incidentId", incidentID,
		"from", inc.Status,
		"to", to,
		"actor", authority.ActorID)

	return next, nil
}

// AttachSignals merges additional supporting signals into an active incident.
// Attaching already-present signals is a no-op so replayed deliveries do not
// grow the history.
func (s *IncidentService) AttachSignals(ctx context.Context, incidentID string, signalIDs []string, authority core.AuthorityContext) (*core.Incident, error) {
	if err := authority.Validate(); err != nil {
		return nil, err
	}
	if len(signalIDs) == 0 {
		return nil, core.NewValidationError("signalIds", "at least one signal id is required")
	}

	inc, err := s.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if !inc.IsActive() {
		return nil, core.NewBusinessRejection(core.CodeIllegalTransition,
			fmt.Sprintf("incident %s is %s; signals cannot be attached", incidentID, inc.Status))
	}

	existing := make(map[string]struct{}, len(inc.SignalIDs))
	for _, id := range inc.SignalIDs {
		existing[id] = struct{}{}
	}
	var added []string
	for _, id := range signalIDs {
		if _, ok := existing[id]; !ok {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return inc, nil
	}
	added = core.DedupSorted(added)

	next := inc.Clone()
	next.SignalIDs = core.DedupSorted(append(next.SignalIDs, added...))
	next.IncidentVersion = inc.IncidentVersion + 1
	occurredAt := s.now().UTC()
	next.UpdatedAt = occurredAt
	next.UpdatedBy = authority.ActorID

	payload, err := json.Marshal(core.SignalAddedPayload{SignalIDs: added})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signal payload: %w", err)
	}

	if err := s.appendAndProject(ctx, inc, next, core.EventSignalAdded, payload, authority.ActorID, occurredAt); err != nil {
		return nil, err
	}

	s.logger.Infow("Signals attached",
		"incidentId", incidentID,
		"added", len(added))

	return next, nil
}

// RecordApproval records an advisory APPROVED or REJECTED event. Approvals do
// not gate transitions; they are audit facts folded into incident state.
func (s *IncidentService) RecordApproval(ctx context.Context, incidentID string, approved bool, authority core.AuthorityContext, note string) (*core.Incident, error) {
	if err := authority.Validate(); err != nil {
		return nil, err
	}

	inc, err := s.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	state := core.ApprovalRejected
	eventType := core.EventRejected
	if approved {
		state = core.ApprovalApproved
		eventType = core.EventApproved
	}

	next := inc.Clone()
	next.Approval = &core.ApprovalState{State: state, By: authority.ActorID, Note: note}
	next.IncidentVersion = inc.IncidentVersion + 1
	occurredAt := s.now().UTC()
	next.UpdatedAt = occurredAt
	next.UpdatedBy = authority.ActorID

	payload, err := json.Marshal(core.ApprovalPayload{By: authority.ActorID, Note: note})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal approval payload: %w", err)
	}

	if err := s.appendAndProject(ctx, inc, next, eventType, payload, authority.ActorID, occurredAt); err != nil {
		return nil, err
	}

	s.logger.Infow("Approval recorded",
		"incidentId", incidentID,
		"state", state,
		"by", authority.ActorID)

	return next, nil
}

// appendAndProject appends the event at the next sequence slot and then
// updates the live projection. The event lands first: if the projection write
// loses its version race the log is still authoritative and replay
// verification will surface the divergence until the projection catches up.
func (s *IncidentService) appendAndProject(ctx context.Context, prev, next *core.Incident, eventType core.EventType, payload []byte, actor string, occurredAt time.Time) error {
	hash, err := core.CanonicalStateHash(next)
	if err != nil {
		return err
	}

	seq, err := s.events.LatestSeq(ctx, prev.IncidentID)
	if err != nil {
		return err
	}

	err = s.events.AppendEvent(ctx, &core.EventRecord{
		IncidentID:     prev.IncidentID,
		EventSeq:       seq + 1,
		EventType:      eventType,
		Payload:        payload,
		Actor:          actor,
		OccurredAt:     occurredAt,
		StateHashAfter: hash,
	})
	if err == storage.ErrSequenceConflict {
		return core.NewBusinessRejection(core.CodeIdempotencyConflict,
			fmt.Sprintf("incident %s was modified concurrently; retry with fresh state", prev.IncidentID))
	}
	if err != nil {
		return err
	}

	if err := s.incidents.UpdateIncident(ctx, next); err != nil {
		if err == storage.ErrVersionConflict {
			s.logger.Warnw("Live incident projection lagging behind event log",
				"incidentId", prev.IncidentID,
				"eventSeq", seq+1)
			return core.NewBusinessRejection(core.CodeIdempotencyConflict,
				fmt.Sprintf("incident %s was modified concurrently; retry with fresh state", prev.IncidentID))
		}
		return err
	}
	return nil
}
