// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/liftmap/internal/app"
	"github.com/okian/liftmap/internal/domain/model"
	"github.com/okian/liftmap/internal/domain/trajectory"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	SampleDependencies
	ViewDependencies
}

// SessionDependencies covers the session lifecycle.
type SessionDependencies interface {
	Elevators(ctx context.Context) []model.Elevator
	StartSession(ctx context.Context, elevatorID, technician string) (model.Session, error)
	ListSessions(ctx context.Context) ([]model.Session, error)
	Session(ctx context.Context, id string) (model.Session, error)
	FinishSession(ctx context.Context, id string) (model.Report, error)
	ResetSession(ctx context.Context, id string) error
}

// SampleDependencies accepts sample batches. Enqueue reports duplicate for
// retransmitted batches.
type SampleDependencies interface {
	Enqueue(ctx context.Context, b model.SampleBatch) (duplicate bool, err error)
}

// ViewDependencies exposes the analytics of a session.
type ViewDependencies interface {
	Summary(ctx context.Context, id string) (trajectory.Summary, error)
	VerticalHeatmap(ctx context.Context, id string) (trajectory.VerticalHeatmap, error)
	FloorHeatmap(ctx context.Context, id string, floor int) ([]trajectory.PositionedSample, error)
	WorkflowAnalysis(ctx context.Context, id string) ([]trajectory.FloorStats, error)
	Path(ctx context.Context, id string) ([]trajectory.PathStep, error)
	Report(ctx context.Context, id string) (model.Report, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionsHandler *SessionsHandler
	samplesHandler  *SamplesHandler
	viewsHandler    *ViewsHandler
}

// NewServer creates a new API server with all handlers. maxBatchSize bounds
// the readings accepted in one POST.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxBatchSize int) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		sessionsHandler: NewSessionsHandler(deps),
		samplesHandler:  NewSamplesHandler(deps, maxBatchSize),
		viewsHandler:    NewViewsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /elevators", MetricsMiddleware(s.sessionsHandler.HandleListElevators, "elevators"))

	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleStartSession, "sessions"))
	mux.HandleFunc("GET /sessions", MetricsMiddleware(s.sessionsHandler.HandleListSessions, "sessions"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGetSession, "session"))
	mux.HandleFunc("POST /sessions/{id}/finish", MetricsMiddleware(s.sessionsHandler.HandleFinishSession, "finish"))
	mux.HandleFunc("POST /sessions/{id}/reset", MetricsMiddleware(s.sessionsHandler.HandleResetSession, "reset"))

	mux.HandleFunc("POST /sessions/{id}/samples", MetricsMiddleware(s.samplesHandler.HandlePostSamples, "samples"))

	mux.HandleFunc("GET /sessions/{id}/summary", MetricsMiddleware(s.viewsHandler.HandleSummary, "summary"))
	mux.HandleFunc("GET /sessions/{id}/vertical", MetricsMiddleware(s.viewsHandler.HandleVertical, "vertical"))
	mux.HandleFunc("GET /sessions/{id}/floors/{floor}", MetricsMiddleware(s.viewsHandler.HandleFloor, "floor"))
	mux.HandleFunc("GET /sessions/{id}/workflow", MetricsMiddleware(s.viewsHandler.HandleWorkflow, "workflow"))
	mux.HandleFunc("GET /sessions/{id}/path", MetricsMiddleware(s.viewsHandler.HandlePath, "path"))
	mux.HandleFunc("GET /sessions/{id}/report", MetricsMiddleware(s.viewsHandler.HandleReport, "report"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates service error kinds to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrUnknownElevator), errors.Is(err, service.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrBatchTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err)
	case errors.Is(err, service.ErrSessionClosed):
		writeError(w, http.StatusConflict, "session_closed", err)
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
