package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/fidde/oxminer/internal/backend"
	"github.com/fidde/oxminer/internal/editor"
	"github.com/fidde/oxminer/internal/searchplan"
	"github.com/fidde/oxminer/internal/validate"
	"github.com/fidde/oxminer/internal/workbench"
	"github.com/fidde/oxminer/pkg/models"
)

// errorStatus maps an error to an HTTP status. fallback is used for errors
// nothing else claims; handlers that call the mining backend pass 502.
func errorStatus(err error, fallback int) int {
	var (
		remote *backend.RemoteError
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.Is(err, workbench.ErrSessionNotFound), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workbench.ErrTooManySessions):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidOptions), errors.Is(err, models.ErrInvalidRunID),
		errors.Is(err, workbench.ErrNoPanel):
		return http.StatusBadRequest
	case errors.Is(err, workbench.ErrNotRuleMode), errors.Is(err, searchplan.ErrNotLoaded):
		return http.StatusConflict
	case errors.Is(err, editor.ErrPatternRejected):
		return http.StatusUnprocessableEntity
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &remote), errors.Is(err, validate.ErrInvalidPayload):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return fallback
}

// respondErr writes err with its mapped status. A missing backend session
// is not an error: the operation is reported as skipped.
func respondErr(w http.ResponseWriter, err error, fallback int) {
	if errors.Is(err, workbench.ErrNoSession) {
		respondSkipped(w)
		return
	}
	respondError(w, errorStatus(err, fallback), err.Error())
}

func respondSkipped(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]string{
		"outcome": searchplan.Skipped.String(),
	})
}
