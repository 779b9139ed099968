package api

import (
	"net/http"

	"vigil/normalize"
)

// ingestSignal runs one raw signal through the full pipeline: normalize,
// detect, correlate, promote. The response reports everything the signal
// produced; a signal with no rule match still returns 202 with empty slices.
func (a *API) ingestSignal(w http.ResponseWriter, r *http.Request) {
	var raw normalize.RawSignal
	if err := a.decodeJSONBody(w, r, &raw); err != nil {
		return
	}

	result, err := a.pipeline.ProcessRawSignal(r.Context(), &raw)
	if err != nil {
		a.writeAPIError(w, err)
		return
	}
	a.writeJSON(w, http.StatusAccepted, result)
}

func (a *API) healthCheck(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
