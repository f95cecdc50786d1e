package templog

import (
	"log/slog"
	"net/http"

	"templog-server/internal/modules/templog/controller"
)

// RegisterFeature mounts the TempLog pages on mux.
func RegisterFeature(mux *http.ServeMux, service controller.LogService, logger *slog.Logger) {
	templogController := controller.NewTempLogController(service, logger)
	templogController.RegisterRoutes(mux)
}
