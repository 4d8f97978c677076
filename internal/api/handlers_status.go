package api

import (
	"errors"
	"net/http"

	"taskauto/internal/core"
	"taskauto/internal/store"

	"github.com/go-chi/chi/v5"
)

// handleStatusReport is the read-only operator projection over all
// automations. It never advances run markers; a misconfigured automation
// degrades to an error entry instead of failing the report.
func (s *Server) handleStatusReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.driver.StatusReport(r.Context())
	if err != nil {
		s.logger.Error("status report", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to build status report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type forceRunResponse struct {
	Message string          `json:"message"`
	Result  core.FireResult `json:"result"`
}

// handleForceRun clears the automation's run marker and immediately runs one
// due-check/fire cycle. The period check is bypassed; the trigger day and the
// approval gate still apply.
func (s *Server) handleForceRun(w http.ResponseWriter, r *http.Request) {
	automationID := chi.URLParam(r, "automationID")

	result, err := s.driver.ForceRun(r.Context(), automationID)
	if err != nil {
		if errors.Is(err, store.ErrAutomationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "automation not found")
			return
		}
		s.logger.Error("force run", "automation_id", automationID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to force run")
		return
	}

	message := "force run completed"
	switch result.Outcome {
	case core.OutcomeFired:
		message = "automation fired"
	case core.OutcomeAwaitingApproval:
		message = "automation is due but has no approved templates"
	case core.OutcomeNotDue:
		message = "automation is not due"
	case core.OutcomeError:
		message = "automation failed to fire"
	}
	writeJSON(w, http.StatusOK, forceRunResponse{Message: message, Result: result})
}
