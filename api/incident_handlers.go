package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"vigil/core"
)

// createIncidentRequest promotes a stored candidate into an incident.
type createIncidentRequest struct {
	CandidateID string `json:"candidateId"`
}

// createIncidentResponse reports the gate decision and the incident.
// Replayed is true whenever the call converged on an incident some earlier
// request created, whether through the idempotency record or through the
// gate's dedup on the evidence-derived incident id.
type createIncidentResponse struct {
	Promotion *core.PromotionResult `json:"promotion"`
	Incident  *core.Incident        `json:"incident,omitempty"`
	Created   bool                  `json:"created"`
	Replayed  bool                  `json:"replayed"`
}

// createIncident evaluates a candidate at the promotion gate and, on PROMOTE,
// creates the incident under the caller's authority. The Idempotency-Key
// header makes the whole operation replay-safe: an identical retry returns
// the recorded response, a reused key with a different body is a conflict.
func (a *API) createIncident(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}

	call, done := a.beginIdempotent(w, r, core.NamespaceIncident, body)
	if done {
		return
	}

	var req createIncidentRequest
	if err := unmarshalStrict(body, &req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    core.CodeValidationError,
			Message: "invalid JSON body",
		})
		return
	}
	if req.CandidateID == "" {
		a.writeAPIError(w, core.NewValidationError("candidateId", "candidate id is required"))
		return
	}

	candidate, err := a.candidates.GetCandidate(r.Context(), req.CandidateID)
	if err != nil {
		a.writeAPIError(w, err)
		return
	}

	promo, err := a.gate.Evaluate(r.Context(), candidate)
	if err != nil {
		a.writeAPIError(w, err)
		return
	}

	resp := createIncidentResponse{Promotion: promo}
	status := http.StatusUnprocessableEntity
	switch {
	case promo.Decision == core.DecisionPromote:
		inc, created, err := a.incidents.CreateFromPromotion(r.Context(), promo, candidate, authorityFromRequest(r))
		if err != nil {
			a.writeAPIError(w, err)
			return
		}
		resp.Incident = inc
		resp.Created = created
		resp.Replayed = !created
		status = http.StatusOK
		if created {
			status = http.StatusCreated
		}

	case promo.RejectionCode == core.RejectActiveIncidentExists:
		// The dedup is keyed on the evidence-derived incident id, so this
		// evidence already has its incident. Converge on it instead of failing:
		// N identical creates yield one 201 and N-1 replays.
		inc, err := a.incidents.GetIncident(r.Context(), core.ComputeIncidentID(candidate.Service, candidate.EvidenceID))
		if err != nil {
			a.writeAPIError(w, err)
			return
		}
		resp.Incident = inc
		resp.Replayed = true
		status = http.StatusOK
	}

	// The recorded response is what identical retries receive. When this call
	// resolved to an incident, retries must see the replay shape, not this
	// request's create outcome; a plain rejection is recorded as-is.
	recorded := resp
	recordedStatus := status
	if resp.Incident != nil {
		recorded.Created = false
		recorded.Replayed = true
		recordedStatus = http.StatusOK
	}
	a.finishIdempotent(r, call, recordedStatus, recorded)
	a.writeJSON(w, status, resp)
}

func (a *API) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := a.incidents.GetIncident(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeAPIError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, inc)
}

// listIncidentsResponse pages the incident list, newest first.
type listIncidentsResponse struct {
	Incidents []core.Incident `json:"incidents"`
	Total     int64           `json:"total"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
}

func (a *API) listIncidents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	incidents, total, err := a.incidents.ListIncidents(r.Context(), limit, offset)
	if err != nil {
		a.writeAPIError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, listIncidentsResponse{
		Incidents: incidents,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

func (a *API) getIncidentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.incidents.GetEvents(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeAPIError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, events)
}

// transitionRequest carries optional edge metadata, e.g. a resolution reason.
type transitionRequest struct {
	Metadata core.TransitionMetadata `json:"metadata,omitempty"`
}

// transitionHandler builds the handler for one lifecycle verb.
func (a *API) transitionHandler(to core.IncidentStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transitionRequest
		if r.ContentLength > 0 {
			if err := a.decodeJSONBody(w, r, &req); err != nil {
				return
			}
		}

		inc, err := a.incidents.Transition(r.Context(), mux.Vars(r)["id"], to, authorityFromRequest(r), req.Metadata)
		if err != nil {
			a.writeAPIError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, inc)
	}
}

type attachSignalsRequest struct {
	SignalIDs []string `json:"signalIds"`
}

func (a *API) attachSignals(w http.ResponseWriter, r *http.Request) {
	var req attachSignalsRequest
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		return
	}

	inc, err := a.incidents.AttachSignals(r.Context(), mux.Vars(r)["id"], req.SignalIDs, authorityFromRequest(r))
	if err != nil {
		a.writeAPIError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, inc)
}

type approvalRequest struct {
	Approved bool   `json:"approved"`
	Note     string `json:"note,omitempty"`
}

func (a *API) recordApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		return
	}

	inc, err := a.incidents.RecordApproval(r.Context(), mux.Vars(r)["id"], req.Approved, authorityFromRequest(r), req.Note)
	if err != nil {
		a.writeAPIError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, inc)
}

func (a *API) replayIncident(w http.ResponseWriter, r *http.Request) {
	report, err := a.replay.VerifyIncident(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeAPIError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, report)
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
