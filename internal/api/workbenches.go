package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fidde/oxminer/internal/graph"
	"github.com/fidde/oxminer/internal/reshape"
	"github.com/fidde/oxminer/internal/searchplan"
	"github.com/fidde/oxminer/internal/workbench"
	"github.com/fidde/oxminer/pkg/models"
)

// EditorResponse reports a pattern editor operation.
type EditorResponse struct {
	Outcome searchplan.Outcome   `json:"outcome"`
	Editor  workbench.EditorView `json:"editor"`
}

// PlanResponse carries a freshly loaded search plan.
type PlanResponse struct {
	Outcome searchplan.Outcome `json:"outcome"`
	Plan    *models.SearchPlan `json:"plan"`
}

// ModelViewResponse reports a graph recomputation.
type ModelViewResponse struct {
	Status     reshape.Status `json:"status"`
	Generation uint64         `json:"generation"`
	Error      string         `json:"error,omitempty"`
}

// EdgesRequest is a geometry snapshot of one rendered graph panel.
type EdgesRequest struct {
	Panel int `json:"panel"`
	graph.Geometry
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// workbench resolves the {id} URL parameter.
func (s *Server) workbench(w http.ResponseWriter, r *http.Request) (*workbench.Session, bool) {
	wb, err := s.workbenches.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err, http.StatusInternalServerError)
		return nil, false
	}
	return wb, true
}

// listWorkbenches returns all live workbenches.
// GET /api/v1/workbenches
func (s *Server) listWorkbenches(w http.ResponseWriter, r *http.Request) {
	list := s.workbenches.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"workbenches": list,
		"total":       len(list),
	})
}

// createWorkbench opens a new workbench.
// POST /api/v1/workbenches
func (s *Server) createWorkbench(w http.ResponseWriter, r *http.Request) {
	wb, err := s.workbenches.Create()
	if err != nil {
		respondErr(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, wb.Snapshot())
}

// getWorkbench returns the state of a workbench.
// GET /api/v1/workbenches/{id}
func (s *Server) getWorkbench(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, wb.Snapshot())
}

// deleteWorkbench closes a workbench.
// DELETE /api/v1/workbenches/{id}
func (s *Server) deleteWorkbench(w http.ResponseWriter, r *http.Request) {
	if err := s.workbenches.Delete(chi.URLParam(r, "id")); err != nil {
		respondErr(w, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadLog forwards a multipart OCEL upload to the mining backend.
// POST /api/v1/workbenches/{id}/upload
func (s *Server) uploadLog(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "Log file too large")
			return
		}
		respondError(w, http.StatusBadRequest, "Missing log file: "+err.Error())
		return
	}
	defer file.Close()

	resp, err := wb.Upload(r.Context(), header.Filename, file)
	if err != nil {
		respondErr(w, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// confirmEventTypes selects the event types to analyze.
// POST /api/v1/workbenches/{id}/event-types
func (s *Server) confirmEventTypes(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	var body struct {
		EventTypes []models.EventType `json:"event_types"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	plan, err := wb.ConfirmEventTypes(r.Context(), body.EventTypes)
	if err != nil {
		respondErr(w, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, PlanResponse{Outcome: searchplan.Applied, Plan: plan})
}

// loadTables asks the backend to build the event tables.
// POST /api/v1/workbenches/{id}/tables
func (s *Server) loadTables(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	resp, err := wb.LoadTables(r.Context())
	if err != nil {
		respondErr(w, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"outcome": searchplan.Applied,
		"resp":    resp,
	})
}

// loadSearchPlans reloads the default search plans.
// POST /api/v1/workbenches/{id}/search-plans
func (s *Server) loadSearchPlans(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	plan, err := wb.LoadSearchPlans(r.Context())
	if err != nil {
		respondErr(w, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, PlanResponse{Outcome: searchplan.Applied, Plan: plan})
}

// setCursor moves the pattern editor.
// PUT /api/v1/workbenches/{id}/cursor
func (s *Server) setCursor(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	var cursor searchplan.Cursor
	if !decodeBody(w, r, &cursor) {
		return
	}
	respondJSON(w, http.StatusOK, wb.SetCursor(cursor))
}

// getPatterns returns the pattern editor state.
// GET /api/v1/workbenches/{id}/patterns
func (s *Server) getPatterns(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, wb.Editor())
}

// updatePatterns stores the kept patterns of the edited list.
// PUT /api/v1/workbenches/{id}/patterns
func (s *Server) updatePatterns(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	var body struct {
		Selected []models.PatternID `json:"selected"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	outcome, view := wb.UpdateSelection(body.Selected)
	respondJSON(w, http.StatusOK, EditorResponse{Outcome: outcome, Editor: view})
}

// resetPatterns restores the baseline plan.
// POST /api/v1/workbenches/{id}/patterns/reset
func (s *Server) resetPatterns(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	outcome, view := wb.ResetSelection()
	respondJSON(w, http.StatusOK, EditorResponse{Outcome: outcome, Editor: view})
}

// confirmCustomPattern registers a user-written pattern.
// POST /api/v1/workbenches/{id}/custom-patterns
func (s *Server) confirmCustomPattern(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	var body struct {
		PatternID models.PatternID `json:"pattern_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	outcome, view, err := wb.ConfirmCustomPattern(r.Context(), body.PatternID)
	if err != nil {
		respondErr(w, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, EditorResponse{Outcome: outcome, Editor: view})
}

// getOptions returns the mining options.
// GET /api/v1/workbenches/{id}/options
func (s *Server) getOptions(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, wb.Options())
}

// setOptions replaces the mining options.
// PUT /api/v1/workbenches/{id}/options
func (s *Server) setOptions(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	opts := wb.Options()
	if !decodeBody(w, r, &opts) {
		return
	}
	if err := wb.SetMiningOptions(opts); err != nil {
		respondErr(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, opts)
}

// startModelSearch mines a model over the curated plan.
// POST /api/v1/workbenches/{id}/search
func (s *Server) startModelSearch(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	run, err := wb.StartModelSearch(r.Context())
	if err != nil {
		respondErr(w, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// startRuleSearch mines rules over the curated plan.
// POST /api/v1/workbenches/{id}/search-rules
func (s *Server) startRuleSearch(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	run, err := wb.StartRuleSearch(r.Context())
	if err != nil {
		respondErr(w, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// setModelView changes the graph filter and recomputes the graph.
// PUT /api/v1/workbenches/{id}/model-view
func (s *Server) setModelView(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	var view workbench.ModelView
	if !decodeBody(w, r, &view) {
		return
	}

	status, err := wb.SetModelView(r.Context(), view)
	resp := ModelViewResponse{Status: status, Generation: wb.Snapshot().Generation}
	if err != nil {
		resp.Error = err.Error()
		respondJSON(w, errorStatus(err, http.StatusBadGateway), resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// getGraph returns the render-ready graph.
// GET /api/v1/workbenches/{id}/graph
func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, wb.Graph())
}

// graphEdges resolves the drawable edges of one panel against the
// geometry the browser measured.
// POST /api/v1/workbenches/{id}/graph/edges
func (s *Server) graphEdges(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	var req EdgesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	edges, err := wb.Edges(req.Panel, req.Geometry)
	if err != nil {
		respondErr(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"edges": edges,
		"total": len(edges),
	})
}

// getRules returns the rule content of the graph.
// GET /api/v1/workbenches/{id}/rules
func (s *Server) getRules(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	rules, err := wb.Rules()
	if err != nil {
		respondErr(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rules":       rules.Rules,
		"antecedents": rules.AntecedentFormulas(),
	})
}

// downloadRules streams the rules file of the last rule search.
// GET /api/v1/workbenches/{id}/rules/download
func (s *Server) downloadRules(w http.ResponseWriter, r *http.Request) {
	wb, ok := s.workbench(w, r)
	if !ok {
		return
	}

	data, contentType, err := wb.DownloadRules(r.Context())
	if err != nil {
		respondErr(w, err, http.StatusBadGateway)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="rules"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write rules download", "error", err)
	}
}
