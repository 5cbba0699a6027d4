// Package httpapi holds the JSON response helpers shared by every handler
// package. Errors go out as {"error": {"code": "...", "detail": "..."}}.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/labworks/platform/pkg/observability/metrics"
)

type errorBody struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status >= http.StatusInternalServerError {
		metrics.IncHTTPServerErrors()
	}
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func WriteError(w http.ResponseWriter, status int, code, detail string) {
	WriteJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Detail: detail}})
}
