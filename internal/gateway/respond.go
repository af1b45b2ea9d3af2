package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.WarnContext(r.Context(), "writing response", "error", err)
	}
}

// detail is the error envelope: a message or a list of field errors.
type detail struct {
	Detail any `json:"detail"`
}

func writeDetail(w http.ResponseWriter, r *http.Request, status int, d any) {
	writeJSON(w, r, status, detail{Detail: d})
}
