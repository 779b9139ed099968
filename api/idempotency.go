package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"vigil/core"
	"vigil/storage"
)

const idempotencyKeyHeader = "Idempotency-Key"

// readBody reads the size-limited request body. The body is needed up front
// because the idempotency request hash covers it byte for byte.
func (a *API) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.API.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Code:    core.CodeValidationError,
			Message: "request body too large",
		})
		return nil, false
	}
	return body, true
}

// unmarshalStrict decodes JSON rejecting unknown fields.
func unmarshalStrict(data []byte, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// idempotentCall tracks one in-flight idempotent request.
type idempotentCall struct {
	key         string
	namespace   string
	requestHash string
}

// beginIdempotent enforces Idempotency-Key semantics before the handler does
// any work. When the key was seen before with the same request hash, the
// recorded response is replayed at its recorded status and done is true. A
// reused key with a different body is a 409 conflict. Without the header the
// call is a no-op.
func (a *API) beginIdempotent(w http.ResponseWriter, r *http.Request, namespace string, body []byte) (*idempotentCall, bool) {
	key := r.Header.Get(idempotencyKeyHeader)
	if key == "" {
		return nil, false
	}

	call := &idempotentCall{
		key:         key,
		namespace:   namespace,
		requestHash: core.HashParts(r.Method, r.URL.Path, string(body)),
	}

	rec, err := a.idempotency.GetRecord(r.Context(), key)
	if err == storage.ErrNotFound {
		return call, false
	}
	if err != nil {
		a.writeAPIError(w, err)
		return nil, true
	}

	if rec.RequestHash != call.requestHash {
		a.writeJSON(w, http.StatusConflict, errorResponse{
			Code:    core.CodeIdempotencyConflict,
			Message: "idempotency key reused with a different request body",
		})
		return nil, true
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rec.StatusCode)
	if _, err := w.Write(rec.ResponseBody); err != nil {
		a.logger.Errorw("Failed to replay idempotent response", "key", key, "error", err)
	}
	return nil, true
}

// finishIdempotent records the handler's response under the idempotency key.
// A concurrent racer may have recorded first; the conditional put makes that
// harmless because both computed the same response from idempotent services.
func (a *API) finishIdempotent(r *http.Request, call *idempotentCall, statusCode int, response interface{}) {
	if call == nil {
		return
	}
	body, err := json.Marshal(response)
	if err != nil {
		a.logger.Errorw("Failed to marshal idempotent response", "key", call.key, "error", err)
		return
	}

	_, _, err = a.idempotency.PutIfAbsent(r.Context(), &storage.IdempotencyRecord{
		Key:          call.key,
		Namespace:    call.namespace,
		RequestHash:  call.requestHash,
		StatusCode:   statusCode,
		ResponseBody: body,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		a.logger.Errorw("Failed to record idempotent response", "key", call.key, "error", err)
	}
}
