package controller

import (
	"context"
	"log/slog"
	"net/http"

	"templog-server/internal/modules/templog/types"
)

// LogService is the part of the service layer the pages drive.
type LogService interface {
	Submit(ctx context.Context, rawTemp string) (types.Record, error)
	Query(ctx context.Context, rawBottom, rawTop string) (types.TempRange, []types.Record, error)
}

type TempLogController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type tempLogControllerImpl struct {
	service LogService
	logger  *slog.Logger
}

func NewTempLogController(service LogService, logger *slog.Logger) TempLogController {
	if logger == nil {
		logger = slog.Default()
	}
	return &tempLogControllerImpl{service: service, logger: logger}
}

func (c *tempLogControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleHome)
	mux.HandleFunc("GET /log", c.handleLogForm)
	mux.HandleFunc("POST /log", c.handleLogPost)
	mux.HandleFunc("GET /logSubmitted", c.handleLogSubmitted)
	mux.HandleFunc("GET /getLogs", c.handleGetLogsForm)
	mux.HandleFunc("POST /getLogs", c.handleGetLogsPost)
	mux.HandleFunc("GET /showLogs", c.handleShowLogs)
}
