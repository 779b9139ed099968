package api

import (
	"encoding/json"
	"net/http"

	"vigil/core"
	"vigil/storage"
)

// errorResponse is the JSON error shape returned to clients.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeJSON writes v as a JSON response with the given status.
func (a *API) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Errorw("Failed to encode response", "error", err)
	}
}

// statusForRejection maps stable business rejection codes onto HTTP statuses.
func statusForRejection(code string) int {
	switch code {
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeUnauthorized:
		return http.StatusForbidden
	case core.CodeMissingJustification:
		return http.StatusUnprocessableEntity
	case core.CodeIllegalTransition, core.CodeIdempotencyConflict, core.CodeActiveIncidentExists:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// writeAPIError converts a pipeline error into a typed JSON response. Storage
// internals are logged, never surfaced to the client.
func (a *API) writeAPIError(w http.ResponseWriter, err error) {
	if core.IsValidation(err) {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    core.CodeValidationError,
			Message: truncateMessage(err.Error()),
		})
		return
	}

	if br, ok := core.IsBusinessRejection(err); ok {
		a.writeJSON(w, statusForRejection(br.Code), errorResponse{
			Code:    br.Code,
			Message: truncateMessage(br.Message),
		})
		return
	}

	if iv, ok := core.IsIntegrityViolation(err); ok {
		a.writeJSON(w, http.StatusConflict, errorResponse{
			Code:    core.CodeIntegrityViolation,
			Message: truncateMessage(iv.Message),
			Detail:  iv.Code,
		})
		return
	}

	switch err {
	case storage.ErrIncidentNotFound, storage.ErrCandidateNotFound,
		storage.ErrEvidenceBundleNotFound, storage.ErrDetectionNotFound,
		storage.ErrEvidenceGraphNotFound, storage.ErrNotFound:
		a.writeJSON(w, http.StatusNotFound, errorResponse{
			Code:    core.CodeNotFound,
			Message: "resource not found",
		})
		return
	}

	a.logger.Errorw("Request failed", "error", err)
	a.writeJSON(w, http.StatusInternalServerError, errorResponse{
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
	})
}

// truncateMessage bounds error text returned to clients.
func truncateMessage(message string) string {
	if len(message) > core.MaxErrorMessageLength {
		return message[:core.MaxErrorMessageLength-3] + "..."
	}
	return message
}

// decodeJSONBody decodes a size-limited JSON request body, rejecting unknown
// fields.
func (a *API) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.API.MaxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    core.CodeValidationError,
			Message: "invalid JSON body",
		})
		return err
	}
	return nil
}

// authorityFromRequest builds the acting authority from request headers. The
// context is validated by the service layer, not here.
func authorityFromRequest(r *http.Request) core.AuthorityContext {
	return core.AuthorityContext{
		Type:          core.AuthorityType(r.Header.Get("X-Vigil-Authority")),
		ActorID:       r.Header.Get("X-Vigil-Actor"),
		Justification: r.Header.Get("X-Vigil-Justification"),
	}
}
