package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type resetResponse struct {
	Status       string `json:"status"`
	CallsAllowed bool   `json:"calls_allowed"`
}

// resetGlobalStop clears the global call stop.
func (h *Handler) resetGlobalStop(w http.ResponseWriter, _ *http.Request) {
	h.deps.Policy.Reset()
	slog.Info("gateway: global call stop reset by admin")
	writeJSON(w, http.StatusOK, resetResponse{Status: "ok", CallsAllowed: h.deps.Policy.IsCallsAllowed()})
}

func (h *Handler) globalStop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Policy.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("gateway: write response failed", "err", err)
	}
}
