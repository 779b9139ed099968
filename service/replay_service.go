package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"vigil/core"
	"vigil/metrics"
	"vigil/storage"
)

// ReplayService rebuilds incident state from the event log alone and checks
// it against the recorded hash chain and the live projection. It never
// repairs anything; a violation is reported and left for operators.
type ReplayService struct {
	events    storage.EventStorageInterface
	incidents storage.IncidentStorageInterface
	logger    *zap.SugaredLogger
}

// NewReplayService creates a replay verification service.
func NewReplayService(events storage.EventStorageInterface, incidents storage.IncidentStorageInterface, logger *zap.SugaredLogger) *ReplayService {
	return &ReplayService{
		events:    events,
		incidents: incidents,
		logger:    logger,
	}
}

// ReplayReport summarizes a successful verification.
type ReplayReport struct {
	IncidentID string         `json:"incidentId"`
	EventCount int            `json:"eventCount"`
	FinalSeq   int64          `json:"finalSeq"`
	FinalHash  string         `json:"finalHash"`
	FinalState *core.Incident `json:"finalState"`
}

// VerifyIncident replays an incident's full history and verifies, in order:
// the sequence starts at 1 with an INCIDENT_CREATED event, has no gaps, every
// event's recorded state hash matches the replayed state, and the final
// replayed state matches the live incident row. The returned error carries an
// IntegrityViolation when any check fails.
func (s *ReplayService) VerifyIncident(ctx context.Context, incidentID string) (*ReplayReport, error) {
	report, err := s.verify(ctx, incidentID)
	if err != nil {
		if iv, ok := core.IsIntegrityViolation(err); ok {
			metrics.ReplayVerifications.WithLabelValues("failed").Inc()
			metrics.IntegrityViolations.WithLabelValues(iv.Code).Inc()
			s.logger.Errorw("Replay verification failed",
				"incidentId", incidentID,
				"code", iv.Code,
				"eventSeq", iv.EventSeq)
		}
		return nil, err
	}
	metrics.ReplayVerifications.WithLabelValues("ok").Inc()
	s.logger.Infow("Replay verification passed",
		"incidentId", incidentID,
		"events", report.EventCount)
	return report, nil
}

func (s *ReplayService) verify(ctx context.Context, incidentID string) (*ReplayReport, error) {
	events, err := s.events.GetEvents(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, core.NewBusinessRejection(core.CodeNotFound,
			fmt.Sprintf("incident %s has no recorded events", incidentID))
	}

	if events[0].EventSeq != 1 {
		return nil, core.NewIntegrityViolation(core.IntegrityBadSequenceStart, incidentID, events[0].EventSeq,
			fmt.Sprintf("history starts at seq %d, expected 1", events[0].EventSeq))
	}
	if events[0].EventType != core.EventIncidentCreated {
		return nil, core.NewIntegrityViolation(core.IntegrityMissingCreated, incidentID, 1,
			fmt.Sprintf("first event is %s, expected %s", events[0].EventType, core.EventIncidentCreated))
	}

	var state *core.Incident
	for i := range events {
		rec := &events[i]
		wantSeq := int64(i) + 1
		if rec.EventSeq != wantSeq {
			return nil, core.NewIntegrityViolation(core.IntegritySequenceGap, incidentID, rec.EventSeq,
				fmt.Sprintf("found seq %d where %d was expected", rec.EventSeq, wantSeq))
		}

		state, err = applyEvent(state, rec)
		if err != nil {
			return nil, err
		}

		hash, err := core.CanonicalStateHash(state)
		if err != nil {
			return nil, err
		}
		if hash != rec.StateHashAfter {
			return nil, core.NewIntegrityViolation(core.IntegrityHashMismatch, incidentID, rec.EventSeq,
				fmt.Sprintf("replayed state hash %s does not match recorded %s", hash, rec.StateHashAfter))
		}
	}

	finalHash, err := core.CanonicalStateHash(state)
	if err != nil {
		return nil, err
	}

	live, err := s.incidents.GetIncident(ctx, incidentID)
	if err == storage.ErrIncidentNotFound {
		return nil, core.NewIntegrityViolation(core.IntegrityLiveDivergence, incidentID, events[len(events)-1].EventSeq,
			"event history exists but the live incident row is missing")
	}
	if err != nil {
		return nil, err
	}
	liveHash, err := core.CanonicalStateHash(live)
	if err != nil {
		return nil, err
	}
	if liveHash != finalHash {
		return nil, core.NewIntegrityViolation(core.IntegrityLiveDivergence, incidentID, events[len(events)-1].EventSeq,
			fmt.Sprintf("live state hash %s diverges from replayed %s", liveHash, finalHash))
	}

	return &ReplayReport{
		IncidentID: incidentID,
		EventCount: len(events),
		FinalSeq:   events[len(events)-1].EventSeq,
		FinalHash:  finalHash,
		FinalState: state,
	}, nil
}

// applyEvent folds one event into the replayed state. The reducer is pure:
// everything it needs is in the payload, and STATE_CHANGED re-runs the same
// transition logic the live path used.
func applyEvent(state *core.Incident, rec *core.EventRecord) (*core.Incident, error) {
	switch rec.EventType {
	case core.EventIncidentCreated:
		if state != nil {
			return nil, core.NewIntegrityViolation(core.IntegrityBadSequenceStart, rec.IncidentID, rec.EventSeq,
				"INCIDENT_CREATED appears after the first event")
		}
		var inc core.Incident
		if err := json.Unmarshal(rec.Payload, &inc); err != nil {
			return nil, core.NewIntegrityViolation(core.IntegrityHashMismatch, rec.IncidentID, rec.EventSeq,
				fmt.Sprintf("INCIDENT_CREATED payload is not a valid incident: %v", err))
		}
		return &inc, nil

	case core.EventStateChanged:
		var p core.StateChangedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, core.NewIntegrityViolation(core.IntegrityHashMismatch, rec.IncidentID, rec.EventSeq,
				fmt.Sprintf("STATE_CHANGED payload is malformed: %v", err))
		}
		next, err := state.ApplyTransition(p.To, p.Authority, p.Metadata, p.OccurredAt)
		if err != nil {
			return nil, core.NewIntegrityViolation(core.IntegrityHashMismatch, rec.IncidentID, rec.EventSeq,
				fmt.Sprintf("recorded transition %s -> %s does not replay: %v", p.From, p.To, err))
		}
		return next, nil

	case core.EventSignalAdded:
		var p core.SignalAddedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, core.NewIntegrityViolation(core.IntegrityHashMismatch, rec.IncidentID, rec.EventSeq,
				fmt.Sprintf("SIGNAL_ADDED payload is malformed: %v", err))
		}
		next := state.Clone()
		next.SignalIDs = core.DedupSorted(append(next.SignalIDs, p.SignalIDs...))
		return next, nil

	case core.EventApproved, core.EventRejected:
		var p core.ApprovalPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, core.NewIntegrityViolation(core.IntegrityHashMismatch, rec.IncidentID, rec.EventSeq,
				fmt.Sprintf("approval payload is malformed: %v", err))
		}
		approvalState := core.ApprovalRejected
		if rec.EventType == core.EventApproved {
			approvalState = core.ApprovalApproved
		}
		next := state.Clone()
		next.Approval = &core.ApprovalState{State: approvalState, By: p.By, Note: p.Note}
		return next, nil

	default:
		return nil, core.NewIntegrityViolation(core.IntegrityUnknownEventType, rec.IncidentID, rec.EventSeq,
			fmt.Sprintf("event type %q is not known to the reducer", rec.EventType))
	}
}
