package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"taskauto/internal/core"
	"taskauto/internal/store"

	"github.com/go-chi/chi/v5"
)

type addTemplateRequest struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

type reviewTemplateRequest struct {
	Decision string `json:"decision"`
}

func (s *Server) handleAddTemplate(w http.ResponseWriter, r *http.Request) {
	automationID := chi.URLParam(r, "automationID")
	a, err := s.store.GetAutomation(r.Context(), automationID)
	if err != nil {
		if errors.Is(err, store.ErrAutomationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "automation not found")
		} else {
			s.logger.Error("get automation for template", "automation_id", automationID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load automation")
		}
		return
	}

	var req addTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "title is required")
		return
	}

	tpl := &core.TemplateEntry{
		ID:            core.NewID(),
		AutomationID:  a.ID,
		Position:      len(a.Templates),
		Title:         title,
		Body:          req.Body,
		ApprovalState: core.ApprovalPending,
	}
	if err := s.store.InsertTemplate(r.Context(), tpl); err != nil {
		s.logger.Error("insert template", "automation_id", a.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to insert template")
		return
	}
	writeJSON(w, http.StatusCreated, templateToResponse(tpl))
}

// handleReviewTemplate applies a human review decision to a template entry.
// This is the out-of-band approval step the engine gates instantiation on.
func (s *Server) handleReviewTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateID")

	var req reviewTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	state := core.ApprovalState(strings.TrimSpace(req.Decision))
	switch state {
	case core.ApprovalApproved, core.ApprovalRejected, core.ApprovalPending:
	default:
		writeError(w, http.StatusBadRequest, "invalid_input", "decision must be approved, rejected or pending")
		return
	}

	if err := s.store.UpdateTemplateApproval(r.Context(), templateID, state); err != nil {
		if errors.Is(err, store.ErrTemplateNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "template not found")
		} else {
			s.logger.Error("review template", "template_id", templateID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to update template")
		}
		return
	}

	tpl, err := s.store.GetTemplate(r.Context(), templateID)
	if err != nil {
		s.logger.Error("get template after review", "template_id", templateID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load template")
		return
	}
	writeJSON(w, http.StatusOK, templateToResponse(tpl))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateID")
	if err := s.store.DeleteTemplate(r.Context(), templateID); err != nil {
		if errors.Is(err, store.ErrTemplateNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "template not found")
		} else {
			s.logger.Error("delete template", "template_id", templateID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete template")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
