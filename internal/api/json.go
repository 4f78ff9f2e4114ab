package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// The status line is already out, so all we can do is log.
		slog.Error("encode response", slog.String("error", err.Error()))
	}
}

// errorBody is the error envelope every handler returns on failure.
func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
