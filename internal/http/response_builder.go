package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"bollette/internal/core"
	"bollette/internal/log"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type totalBody struct {
	Amount core.Money `json:"amount"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes. Internal failures are
// logged and never echoed to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, core.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: map[string]string{}})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, errBadBody):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errBadBody.Error()})
	default:
		log.LogError(r.Context(), "Request failed", err, r.Method+" "+r.URL.Path,
			log.NewFields().WithOwner(ownerID(r)))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
}
