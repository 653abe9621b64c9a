package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fidde/oxminer/pkg/models"
)

// listRuns returns the run history, optionally filtered by backend session.
// Supports pagination via ?limit=N&offset=M query parameters.
// GET /api/v1/runs?session-key=K
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionKey := r.URL.Query().Get("session-key")
	params := parsePaginationParams(r)

	runs, err := s.runs.ListRuns(ctx, sessionKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, paginateSlice(runs, params))
}

// getRun returns one run.
// GET /api/v1/runs/{runID}
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	if err := models.ValidateRunID(id); err != nil {
		respondErr(w, err, http.StatusBadRequest)
		return
	}

	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		respondErr(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, run)
}
