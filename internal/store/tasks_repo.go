package store

import (
	"context"
	"fmt"
	"time"

	"taskauto/internal/core"
)

// ListGeneratedTasks returns the automation's generated tasks, newest first.
func (s *Store) ListGeneratedTasks(ctx context.Context, automationID string, limit, offset int) ([]*core.GeneratedTask, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, automation_id, template_id, title, body, status, fired_period, created_at
		FROM generated_tasks
		WHERE automation_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, automationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query generated tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*core.GeneratedTask
	for rows.Next() {
		var (
			task        core.GeneratedTask
			status      string
			firedPeriod *string
			createdAt   string
		)
		if err := rows.Scan(&task.ID, &task.AutomationID, &task.TemplateID, &task.Title, &task.Body,
			&status, &firedPeriod, &createdAt); err != nil {
			return nil, fmt.Errorf("scan generated task: %w", err)
		}
		task.Status = core.TaskStatus(status)
		if firedPeriod != nil {
			task.FiredPeriod = *firedPeriod
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			task.CreatedAt = t
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}
