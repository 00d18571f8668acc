package api

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in Error.Code.
const (
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// Error is the body of every non-2xx response.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, Error{Code: code, Message: msg, RequestID: requestID(r)})
}

func writeNotFound(w http.ResponseWriter, r *http.Request, what string) {
	writeError(w, r, http.StatusNotFound, ErrCodeNotFound, what+" not found")
}

func writeInternalError(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, http.StatusInternalServerError, ErrCodeInternal, msg)
}
