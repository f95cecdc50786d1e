package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"templog-server/internal/modules/templog/repository"
	"templog-server/internal/utils"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	store Pinger
}

func NewHealthchecker(store Pinger) healthchecker {
	return &healthcheckerImpl{store: store}
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		slog.Error("failed to check store connectivity", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrConnectionUnavailable) || errors.Is(err, repository.ErrStoreClosed) ||
			errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		utils.WriteError(w, status, "store unavailable")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registerHealthcheck(mux *http.ServeMux, store Pinger) {
	healthchecker := NewHealthchecker(store)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
