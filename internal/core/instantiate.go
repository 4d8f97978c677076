package core

import (
	"fmt"
	"strings"
	"time"
)

// InstantiateTasks materializes one fresh task per approved template for a
// fire at now. Template content is copied, never mutated. The whole batch is
// built before anything is persisted: any invalid template aborts the fire
// with no tasks produced, so a fire is always all-or-nothing.
func InstantiateTasks(approved []*TemplateEntry, a *Automation, now time.Time) ([]*GeneratedTask, error) {
	marker := MarkRun(a.Cadence, now)
	period := ""
	if marker.Period != nil {
		period = marker.Period.String()
	}

	tasks := make([]*GeneratedTask, 0, len(approved))
	for _, tpl := range approved {
		if strings.TrimSpace(tpl.Title) == "" {
			return nil, fmt.Errorf("template %s has no title", tpl.ID)
		}
		tasks = append(tasks, &GeneratedTask{
			ID:           NewID(),
			AutomationID: a.ID,
			TemplateID:   tpl.ID,
			Title:        tpl.Title,
			Body:         tpl.Body,
			Status:       TaskStatusNew,
			FiredPeriod:  period,
			CreatedAt:    now.UTC(),
		})
	}
	return tasks, nil
}
