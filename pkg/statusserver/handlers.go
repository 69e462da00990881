package statusserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uploadkit/engine/pkg/progress"
	"github.com/uploadkit/engine/pkg/store"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

type handlers struct {
	store   store.Store
	metrics http.Handler
}

func newHandlers(s store.Store) *handlers {
	return &handlers{store: s, metrics: promhttp.Handler()}
}

// liveness reports that the process is up. It performs no store access so it
// never fails because of backing store trouble.
func (h *handlers) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness reports that the store is reachable.
func (h *handlers) readiness(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.GetActiveSessions(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// session returns the current Progress Projection (§4.8) for one session, a
// read-only window onto the same state observe_progress exposes over the
// in-process API (§6).
func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	snap, err := progress.Observe(r.Context(), h.store, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// sessions returns the Progress Projection for every non-terminal session.
func (h *handlers) sessions(w http.ResponseWriter, r *http.Request) {
	snaps, err := progress.ObserveAll(r.Context(), h.store)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, uploadmodel.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, uploadmodel.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, uploadmodel.ErrInvalidState):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
