package core

import (
	"time"
)

// ApprovalState describes the review state of a template entry.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// TaskStatus describes the lifecycle state of a generated task. The engine
// only ever creates tasks as TaskStatusNew; downstream systems advance them.
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "new"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// PeriodKey identifies the granularity at which "already ran" is tracked.
// Month == 0 means the key covers a whole year (yearly cadences).
type PeriodKey struct {
	Year  int
	Month time.Month
}

// Equal reports whether two period keys identify the same period.
func (p PeriodKey) Equal(other PeriodKey) bool {
	return p.Year == other.Year && p.Month == other.Month
}

// String renders the key as "2024-01" for monthly granularity or "2024" for
// yearly granularity. Used for the fired_period column and status reporting.
func (p PeriodKey) String() string {
	if p.Month == 0 {
		return time.Date(p.Year, time.January, 1, 0, 0, 0, 0, time.UTC).Format("2006")
	}
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// Automation is the scheduling unit: a cadence, a set of reviewed template
// entries, and the run marker that enforces at-most-once-per-period firing.
type Automation struct {
	ID      string
	Name    string
	Cadence Cadence

	// LastRunPeriod is set for period-based cadences; LastRunAt for one-shot.
	// Both nil means the automation has never fired. Only the fire path
	// advances these; status reporting never does.
	LastRunPeriod *PeriodKey
	LastRunAt     *time.Time

	Templates []*TemplateEntry

	// TasksCreated counts generated tasks across all past fires.
	TasksCreated int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TemplateEntry is a content unit owned by an automation. Its content is
// immutable from the engine's point of view; only the out-of-band review
// action moves ApprovalState.
type TemplateEntry struct {
	ID            string
	AutomationID  string
	Position      int
	Title         string
	Body          string
	ApprovalState ApprovalState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GeneratedTask is a concrete task materialized from an approved template
// during a fire.
type GeneratedTask struct {
	ID           string
	AutomationID string
	TemplateID   string
	Title        string
	Body         string
	Status       TaskStatus
	FiredPeriod  string
	CreatedAt    time.Time
}
