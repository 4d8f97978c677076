package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskauto/internal/core"
	"taskauto/internal/store"

	"github.com/go-chi/chi/v5"
)

// cadencePayload is the wire form of a cadence, discriminated by kind.
type cadencePayload struct {
	Kind   string     `json:"kind"`
	Day    int        `json:"day,omitempty"`
	Month  int        `json:"month,omitempty"`
	Months []int      `json:"months,omitempty"`
	At     *time.Time `json:"at,omitempty"`
}

func (p cadencePayload) toCadence() (core.Cadence, error) {
	var c core.Cadence
	switch core.CadenceKind(p.Kind) {
	case core.KindDayOfMonth:
		c = core.DayOfMonth{Day: p.Day}
	case core.KindQuarterly:
		c = core.Quarterly{Months: toMonths(p.Months), Day: p.Day}
	case core.KindHalfYearly:
		c = core.HalfYearly{Months: toMonths(p.Months), Day: p.Day}
	case core.KindYearly:
		c = core.Yearly{Month: time.Month(p.Month), Day: p.Day}
	case core.KindOneShot:
		if p.At == nil {
			return nil, errors.New("one_shot cadence requires at")
		}
		c = core.OneShot{At: p.At.UTC()}
	default:
		return nil, errors.New("kind must be one of day_of_month, quarterly, half_yearly, yearly, one_shot")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func fromCadence(c core.Cadence) cadencePayload {
	p := cadencePayload{Kind: string(c.Kind())}
	switch v := c.(type) {
	case core.DayOfMonth:
		p.Day = v.Day
	case core.Quarterly:
		p.Day = v.Day
		p.Months = fromMonths(v.Months)
	case core.HalfYearly:
		p.Day = v.Day
		p.Months = fromMonths(v.Months)
	case core.Yearly:
		p.Day = v.Day
		p.Month = int(v.Month)
	case core.OneShot:
		at := v.At
		p.At = &at
	}
	return p
}

func toMonths(values []int) []time.Month {
	months := make([]time.Month, 0, len(values))
	for _, v := range values {
		months = append(months, time.Month(v))
	}
	return months
}

func fromMonths(months []time.Month) []int {
	values := make([]int, 0, len(months))
	for _, m := range months {
		values = append(values, int(m))
	}
	return values
}

type createAutomationRequest struct {
	Name      string            `json:"name"`
	Cadence   *cadencePayload   `json:"cadence"`
	Templates []templatePayload `json:"templates,omitempty"`
}

type updateAutomationRequest struct {
	Name    *string         `json:"name"`
	Cadence *cadencePayload `json:"cadence"`
}

type templatePayload struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

type templateResponse struct {
	ID            string `json:"id"`
	Position      int    `json:"position"`
	Title         string `json:"title"`
	Body          string `json:"body,omitempty"`
	ApprovalState string `json:"approval_state"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type automationResponse struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Cadence      cadencePayload     `json:"cadence"`
	LastRun      *string            `json:"last_run,omitempty"`
	Templates    []templateResponse `json:"templates"`
	TasksCreated int                `json:"tasks_created"`
	CreatedAt    string             `json:"created_at"`
	UpdatedAt    string             `json:"updated_at"`
}

func (s *Server) handleCreateAutomation(w http.ResponseWriter, r *http.Request) {
	var req createAutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "name is required")
		return
	}
	if req.Cadence == nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "cadence is required")
		return
	}
	cadence, err := req.Cadence.toCadence()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_cadence", err.Error())
		return
	}

	a := &core.Automation{
		ID:      core.NewID(),
		Name:    req.Name,
		Cadence: cadence,
	}
	if err := s.store.InsertAutomation(r.Context(), a); err != nil {
		s.logger.Error("insert automation", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to insert automation")
		return
	}

	for i, tpl := range req.Templates {
		title := strings.TrimSpace(tpl.Title)
		if title == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "template title is required")
			return
		}
		entry := &core.TemplateEntry{
			ID:            core.NewID(),
			AutomationID:  a.ID,
			Position:      i,
			Title:         title,
			Body:          tpl.Body,
			ApprovalState: core.ApprovalPending,
		}
		if err := s.store.InsertTemplate(r.Context(), entry); err != nil {
			s.logger.Error("insert template", "automation_id", a.ID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to insert template")
			return
		}
		a.Templates = append(a.Templates, entry)
	}

	writeJSON(w, http.StatusCreated, automationToResponse(a))
}

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	automations, err := s.store.ListAutomations(r.Context())
	if err != nil {
		s.logger.Error("list automations", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list automations")
		return
	}
	res := make([]automationResponse, 0, len(automations))
	for _, a := range automations {
		res = append(res, automationToResponse(a))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	automationID := chi.URLParam(r, "automationID")
	a, err := s.store.GetAutomation(r.Context(), automationID)
	if err != nil {
		if errors.Is(err, store.ErrAutomationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "automation not found")
		} else {
			s.logger.Error("get automation", "automation_id", automationID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load automation")
		}
		return
	}
	writeJSON(w, http.StatusOK, automationToResponse(a))
}

func (s *Server) handleUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	automationID := chi.URLParam(r, "automationID")
	a, err := s.store.GetAutomation(r.Context(), automationID)
	if err != nil {
		if errors.Is(err, store.ErrAutomationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "automation not found")
		} else {
			s.logger.Error("get automation for update", "automation_id", automationID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load automation")
		}
		return
	}

	var req updateAutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "name cannot be empty")
			return
		}
		a.Name = name
	}
	if req.Cadence != nil {
		cadence, err := req.Cadence.toCadence()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_cadence", err.Error())
			return
		}
		a.Cadence = cadence
		// A new recurrence rule starts a fresh schedule.
		a.LastRunPeriod = nil
		a.LastRunAt = nil
	}

	if err := s.store.UpdateAutomation(r.Context(), a); err != nil {
		if errors.Is(err, store.ErrAutomationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "automation not found")
			return
		}
		s.logger.Error("update automation", "automation_id", automationID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update automation")
		return
	}
	writeJSON(w, http.StatusOK, automationToResponse(a))
}

func (s *Server) handleDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	automationID := chi.URLParam(r, "automationID")
	if err := s.store.DeleteAutomation(r.Context(), automationID); err != nil {
		if errors.Is(err, store.ErrAutomationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "automation not found")
		} else {
			s.logger.Error("delete automation", "automation_id", automationID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete automation")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type generatedTaskResponse struct {
	ID          string `json:"id"`
	TemplateID  string `json:"template_id,omitempty"`
	Title       string `json:"title"`
	Body        string `json:"body,omitempty"`
	Status      string `json:"status"`
	FiredPeriod string `json:"fired_period,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func (s *Server) handleListGeneratedTasks(w http.ResponseWriter, r *http.Request) {
	automationID := chi.URLParam(r, "automationID")
	if _, err := s.store.GetAutomation(r.Context(), automationID); err != nil {
		if errors.Is(err, store.ErrAutomationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "automation not found")
		} else {
			s.logger.Error("get automation for tasks list", "automation_id", automationID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load automation")
		}
		return
	}

	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	tasks, err := s.store.ListGeneratedTasks(r.Context(), automationID, limit, offset)
	if err != nil {
		s.logger.Error("list generated tasks", "automation_id", automationID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list tasks")
		return
	}

	res := make([]generatedTaskResponse, 0, len(tasks))
	for _, task := range tasks {
		res = append(res, generatedTaskResponse{
			ID:          task.ID,
			TemplateID:  task.TemplateID,
			Title:       task.Title,
			Body:        task.Body,
			Status:      string(task.Status),
			FiredPeriod: task.FiredPeriod,
			CreatedAt:   task.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, res)
}

func automationToResponse(a *core.Automation) automationResponse {
	templates := make([]templateResponse, 0, len(a.Templates))
	for _, tpl := range a.Templates {
		templates = append(templates, templateToResponse(tpl))
	}
	res := automationResponse{
		ID:           a.ID,
		Name:         a.Name,
		Cadence:      fromCadence(a.Cadence),
		Templates:    templates,
		TasksCreated: a.TasksCreated,
		CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if a.LastRunPeriod != nil {
		formatted := a.LastRunPeriod.String()
		res.LastRun = &formatted
	} else if a.LastRunAt != nil {
		formatted := a.LastRunAt.UTC().Format(time.RFC3339)
		res.LastRun = &formatted
	}
	return res
}

func templateToResponse(tpl *core.TemplateEntry) templateResponse {
	return templateResponse{
		ID:            tpl.ID,
		Position:      tpl.Position,
		Title:         tpl.Title,
		Body:          tpl.Body,
		ApprovalState: string(tpl.ApprovalState),
		CreatedAt:     tpl.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     tpl.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
