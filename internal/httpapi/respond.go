// Package httpapi exposes the JSON HTTP surface of each service.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// errorResponse is the JSON error payload shared by all endpoints.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeInternalError logs the cause and responds with a generic 500. The
// cause never leaks to the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}
