package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskauto/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.DB.Close() })
	return s
}

func insertTestAutomation(t *testing.T, s *Store, cadence core.Cadence) *core.Automation {
	t.Helper()
	a := &core.Automation{
		ID:      core.NewID(),
		Name:    "monthly reporting",
		Cadence: cadence,
	}
	require.NoError(t, s.InsertAutomation(context.Background(), a))
	return a
}

func TestAutomationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cadences := []core.Cadence{
		core.DayOfMonth{Day: 15},
		core.Quarterly{Months: []time.Month{time.January, time.April, time.July, time.October}, Day: 1},
		core.HalfYearly{Months: []time.Month{time.February, time.August}, Day: 28},
		core.Yearly{Month: time.December, Day: 31},
		core.OneShot{At: time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, cadence := range cadences {
		a := insertTestAutomation(t, s, cadence)
		loaded, err := s.GetAutomation(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.Name, loaded.Name)
		assert.Equal(t, cadence.Kind(), loaded.Cadence.Kind())
		assert.Equal(t, cadence, loaded.Cadence)
		assert.Nil(t, loaded.LastRunPeriod)
		assert.Nil(t, loaded.LastRunAt)
	}
}

func TestGetAutomationNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetAutomation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAutomationNotFound)
}

func TestAutomationWithTemplates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := insertTestAutomation(t, s, core.DayOfMonth{Day: 1})

	first := &core.TemplateEntry{
		ID: core.NewID(), AutomationID: a.ID, Position: 0,
		Title: "Reconcile ledgers", Body: "All client accounts",
	}
	second := &core.TemplateEntry{
		ID: core.NewID(), AutomationID: a.ID, Position: 1,
		Title: "File summary",
	}
	require.NoError(t, s.InsertTemplate(ctx, first))
	require.NoError(t, s.InsertTemplate(ctx, second))

	loaded, err := s.GetAutomation(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Templates, 2)
	assert.Equal(t, "Reconcile ledgers", loaded.Templates[0].Title)
	assert.Equal(t, core.ApprovalPending, loaded.Templates[0].ApprovalState)
	assert.Equal(t, "File summary", loaded.Templates[1].Title)

	require.NoError(t, s.UpdateTemplateApproval(ctx, first.ID, core.ApprovalApproved))
	loaded, err = s.GetAutomation(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ApprovalApproved, loaded.Templates[0].ApprovalState)
	assert.Equal(t, core.ApprovalPending, loaded.Templates[1].ApprovalState)
}

func TestCommitFireAndReset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := insertTestAutomation(t, s, core.DayOfMonth{Day: 1})

	marker := core.FireMarker{Period: &core.PeriodKey{Year: 2024, Month: time.January}}
	tasks := []*core.GeneratedTask{
		{
			ID: core.NewID(), AutomationID: a.ID, TemplateID: "tpl-1",
			Title: "Reconcile ledgers", Status: core.TaskStatusNew,
			FiredPeriod: "2024-01", CreatedAt: time.Now().UTC(),
		},
		{
			ID: core.NewID(), AutomationID: a.ID, TemplateID: "tpl-2",
			Title: "File summary", Status: core.TaskStatusNew,
			FiredPeriod: "2024-01", CreatedAt: time.Now().UTC(),
		},
	}
	require.NoError(t, s.CommitFire(ctx, a.ID, marker, tasks))

	loaded, err := s.GetAutomation(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.LastRunPeriod)
	assert.Equal(t, core.PeriodKey{Year: 2024, Month: time.January}, *loaded.LastRunPeriod)
	assert.Equal(t, 2, loaded.TasksCreated)

	stored, err := s.ListGeneratedTasks(ctx, a.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "2024-01", stored[0].FiredPeriod)

	require.NoError(t, s.ResetLastRun(ctx, a.ID))
	loaded, err = s.GetAutomation(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.LastRunPeriod)
	assert.Nil(t, loaded.LastRunAt)
	// Generated tasks survive a marker reset.
	assert.Equal(t, 2, loaded.TasksCreated)
}

func TestCommitFireUnknownAutomationRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := insertTestAutomation(t, s, core.DayOfMonth{Day: 1})

	marker := core.FireMarker{Period: &core.PeriodKey{Year: 2024, Month: time.January}}
	tasks := []*core.GeneratedTask{{
		ID: core.NewID(), AutomationID: a.ID, TemplateID: "tpl-1",
		Title: "Orphan", Status: core.TaskStatusNew, CreatedAt: time.Now().UTC(),
	}}
	err := s.CommitFire(ctx, "missing", marker, tasks)
	assert.ErrorIs(t, err, ErrAutomationNotFound)

	// The task insert from the aborted transaction must not be visible.
	stored, err := s.ListGeneratedTasks(ctx, a.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCommitFireOneShotMarker(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
	a := insertTestAutomation(t, s, core.OneShot{At: at})

	fired := at.Add(time.Minute)
	require.NoError(t, s.CommitFire(ctx, a.ID, core.FireMarker{At: &fired}, nil))

	loaded, err := s.GetAutomation(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.LastRunPeriod)
	require.NotNil(t, loaded.LastRunAt)
	assert.True(t, loaded.LastRunAt.Equal(fired))
}

func TestDeleteAutomationCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := insertTestAutomation(t, s, core.DayOfMonth{Day: 1})
	tpl := &core.TemplateEntry{ID: core.NewID(), AutomationID: a.ID, Title: "To be removed"}
	require.NoError(t, s.InsertTemplate(ctx, tpl))

	require.NoError(t, s.DeleteAutomation(ctx, a.ID))
	_, err := s.GetAutomation(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAutomationNotFound)
	_, err = s.GetTemplate(ctx, tpl.ID)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestListAutomations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	insertTestAutomation(t, s, core.DayOfMonth{Day: 1})
	insertTestAutomation(t, s, core.Yearly{Month: time.June, Day: 1})

	list, err := s.ListAutomations(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(ctx, dir)
	require.NoError(t, err)
	insertTestAutomation(t, s, core.DayOfMonth{Day: 1})
	require.NoError(t, s.DB.Close())

	reopened, err := Open(ctx, dir)
	require.NoError(t, err)
	defer reopened.DB.Close()
	list, err := reopened.ListAutomations(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
