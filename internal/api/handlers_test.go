package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskauto/internal/core"
	"taskauto/internal/store"
)

func newTestServer(t *testing.T, authToken string) *Server {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.DB.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	driver := core.NewDriver(st, logger, nil, time.UTC)

	srv, err := NewServer("127.0.0.1:0", authToken, st, driver, logger, time.UTC)
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dest))
}

func createAutomation(t *testing.T, srv *Server, body map[string]any) automationResponse {
	t.Helper()
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/automations", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res automationResponse
	decodeBody(t, rec, &res)
	return res
}

func TestCreateAndGetAutomation(t *testing.T) {
	srv := newTestServer(t, "")

	created := createAutomation(t, srv, map[string]any{
		"name": "Monthly close",
		"cadence": map[string]any{
			"kind": "day_of_month",
			"day":  15,
		},
		"templates": []map[string]any{
			{"title": "Reconcile ledgers", "body": "All client accounts"},
			{"title": "File summary"},
		},
	})
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Monthly close", created.Name)
	assert.Equal(t, "day_of_month", created.Cadence.Kind)
	assert.Equal(t, 15, created.Cadence.Day)
	require.Len(t, created.Templates, 2)
	assert.Equal(t, "pending", created.Templates[0].ApprovalState)
	assert.Nil(t, created.LastRun)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/automations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var loaded automationResponse
	decodeBody(t, rec, &loaded)
	assert.Equal(t, created.ID, loaded.ID)
	assert.Len(t, loaded.Templates, 2)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/v1/automations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []automationResponse
	decodeBody(t, rec, &list)
	assert.Len(t, list, 1)
}

func TestCreateAutomationValidation(t *testing.T) {
	srv := newTestServer(t, "")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"cadence": map[string]any{"kind": "day_of_month", "day": 1}}},
		{"missing cadence", map[string]any{"name": "x"}},
		{"unknown kind", map[string]any{"name": "x", "cadence": map[string]any{"kind": "weekly", "day": 1}}},
		{"quarterly without months", map[string]any{"name": "x", "cadence": map[string]any{"kind": "quarterly", "day": 1}}},
		{"day out of range", map[string]any{"name": "x", "cadence": map[string]any{"kind": "day_of_month", "day": 42}}},
		{"one_shot without instant", map[string]any{"name": "x", "cadence": map[string]any{"kind": "one_shot"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/automations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStatusReportEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	created := createAutomation(t, srv, map[string]any{
		"name":    "Quarter billing",
		"cadence": map[string]any{"kind": "day_of_month", "day": 1},
		"templates": []map[string]any{
			{"title": "Send invoices"},
		},
	})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/automations/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		CurrentTime      time.Time `json:"currentTime"`
		TotalAutomations int       `json:"totalAutomations"`
		StatusReport     []struct {
			ID                    string  `json:"id"`
			Name                  string  `json:"name"`
			CadenceKind           string  `json:"cadenceKind"`
			Status                string  `json:"status"`
			NextRunDate           *string `json:"nextRunDate"`
			LastRunDate           *string `json:"lastRunDate"`
			TemplateCount         int     `json:"templateCount"`
			ApprovedTemplateCount int     `json:"approvedTemplateCount"`
			TasksCreatedCount     int     `json:"tasksCreatedCount"`
		} `json:"statusReport"`
	}
	decodeBody(t, rec, &report)

	assert.False(t, report.CurrentTime.IsZero())
	assert.Equal(t, 1, report.TotalAutomations)
	require.Len(t, report.StatusReport, 1)
	entry := report.StatusReport[0]
	assert.Equal(t, created.ID, entry.ID)
	assert.Equal(t, "Quarter billing", entry.Name)
	assert.Equal(t, "day_of_month", entry.CadenceKind)
	// Due on every day of the month but nothing approved yet.
	assert.Equal(t, "pending approval", entry.Status)
	assert.Equal(t, 1, entry.TemplateCount)
	assert.Equal(t, 0, entry.ApprovedTemplateCount)
	assert.Equal(t, 0, entry.TasksCreatedCount)
	assert.Nil(t, entry.LastRunDate)
	require.NotNil(t, entry.NextRunDate)
}

func TestForceRunFlow(t *testing.T) {
	srv := newTestServer(t, "")

	created := createAutomation(t, srv, map[string]any{
		"name":    "Monthly reporting",
		"cadence": map[string]any{"kind": "day_of_month", "day": 1},
		"templates": []map[string]any{
			{"title": "Draft report"},
			{"title": "Collect timesheets"},
		},
	})
	forcePath := fmt.Sprintf("/v1/automations/%s/force-run", created.ID)

	// Nothing approved yet: due, but blocked by the approval gate.
	rec := doJSON(t, srv.Handler(), http.MethodPost, forcePath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var blocked forceRunResponse
	decodeBody(t, rec, &blocked)
	assert.Equal(t, core.OutcomeAwaitingApproval, blocked.Result.Outcome)
	assert.Equal(t, 0, blocked.Result.TasksCreated)

	// Approve one template; force-run now fires with exactly one task.
	reviewPath := fmt.Sprintf("/v1/automations/%s/templates/%s/review", created.ID, created.Templates[0].ID)
	rec = doJSON(t, srv.Handler(), http.MethodPost, reviewPath, map[string]any{"decision": "approved"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, forcePath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fired forceRunResponse
	decodeBody(t, rec, &fired)
	assert.Equal(t, core.OutcomeFired, fired.Result.Outcome)
	assert.Equal(t, 1, fired.Result.TasksCreated)

	// The period is consumed, yet force-run bypasses the period check.
	rec = doJSON(t, srv.Handler(), http.MethodPost, forcePath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var again forceRunResponse
	decodeBody(t, rec, &again)
	assert.Equal(t, core.OutcomeFired, again.Result.Outcome)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/v1/automations/"+created.ID+"/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []generatedTaskResponse
	decodeBody(t, rec, &tasks)
	assert.Len(t, tasks, 2)
	assert.Equal(t, "Draft report", tasks[0].Title)
	assert.Equal(t, "new", tasks[0].Status)
}

func TestForceRunUnknownAutomation(t *testing.T) {
	srv := newTestServer(t, "")
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/automations/missing/force-run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewTemplateValidation(t *testing.T) {
	srv := newTestServer(t, "")
	created := createAutomation(t, srv, map[string]any{
		"name":      "Weekly sync notes",
		"cadence":   map[string]any{"kind": "day_of_month", "day": 1},
		"templates": []map[string]any{{"title": "Publish notes"}},
	})
	reviewPath := fmt.Sprintf("/v1/automations/%s/templates/%s/review", created.ID, created.Templates[0].ID)

	rec := doJSON(t, srv.Handler(), http.MethodPost, reviewPath, map[string]any{"decision": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, reviewPath, map[string]any{"decision": "rejected"})
	require.Equal(t, http.StatusOK, rec.Code)
	var tpl templateResponse
	decodeBody(t, rec, &tpl)
	assert.Equal(t, "rejected", tpl.ApprovalState)
}

func TestAdminAuthRequired(t *testing.T) {
	srv := newTestServer(t, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/v1/automations/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/automations/status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/automations/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateAutomationResetsMarkerOnCadenceChange(t *testing.T) {
	srv := newTestServer(t, "")
	created := createAutomation(t, srv, map[string]any{
		"name":      "Ad hoc batch",
		"cadence":   map[string]any{"kind": "day_of_month", "day": 1},
		"templates": []map[string]any{{"title": "Generate batch"}},
	})

	reviewPath := fmt.Sprintf("/v1/automations/%s/templates/%s/review", created.ID, created.Templates[0].ID)
	rec := doJSON(t, srv.Handler(), http.MethodPost, reviewPath, map[string]any{"decision": "approved"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/v1/automations/"+created.ID+"/force-run", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/v1/automations/"+created.ID, nil)
	var withMarker automationResponse
	decodeBody(t, rec, &withMarker)
	require.NotNil(t, withMarker.LastRun)

	rec = doJSON(t, srv.Handler(), http.MethodPatch, "/v1/automations/"+created.ID, map[string]any{
		"cadence": map[string]any{"kind": "yearly", "month": 4, "day": 1},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated automationResponse
	decodeBody(t, rec, &updated)
	assert.Equal(t, "yearly", updated.Cadence.Kind)
	assert.Nil(t, updated.LastRun)
}
