package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// ViewsHandler serves the analytics of a session.
type ViewsHandler struct {
	deps ViewDependencies
}

// NewViewsHandler creates a new views handler.
func NewViewsHandler(deps ViewDependencies) *ViewsHandler {
	return &ViewsHandler{deps: deps}
}

// HandleSummary handles GET /sessions/{id}/summary.
func (h *ViewsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleVertical handles GET /sessions/{id}/vertical. Floors are listed in
// ascending order.
func (h *ViewsHandler) HandleVertical(w http.ResponseWriter, r *http.Request) {
	heatmap, err := h.deps.VerticalHeatmap(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, heatmap.Floors())
}

// HandleFloor handles GET /sessions/{id}/floors/{floor}.
func (h *ViewsHandler) HandleFloor(w http.ResponseWriter, r *http.Request) {
	floor, err := strconv.Atoi(r.PathValue("floor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: floor must be an integer", ErrBadRequest))
		return
	}
	points, err := h.deps.FloorHeatmap(r.Context(), r.PathValue("id"), floor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// HandleWorkflow handles GET /sessions/{id}/workflow.
func (h *ViewsHandler) HandleWorkflow(w http.ResponseWriter, r *http.Request) {
	ranked, err := h.deps.WorkflowAnalysis(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

// HandlePath handles GET /sessions/{id}/path.
func (h *ViewsHandler) HandlePath(w http.ResponseWriter, r *http.Request) {
	path, err := h.deps.Path(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}

// HandleReport handles GET /sessions/{id}/report.
func (h *ViewsHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
