package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskauto/internal/notify"
	"taskauto/internal/telemetry"
)

// Store abstracts the persistence layer used by the driver.
type Store interface {
	GetAutomation(ctx context.Context, id string) (*Automation, error)
	ListAutomations(ctx context.Context) ([]*Automation, error)

	// CommitFire persists one fire as a single atomic unit: all generated
	// tasks plus the advanced run marker, or nothing.
	CommitFire(ctx context.Context, automationID string, marker FireMarker, tasks []*GeneratedTask) error

	// ResetLastRun clears the run marker, making the automation due again
	// regardless of period.
	ResetLastRun(ctx context.Context, automationID string) error
}

// Outcome classifies the driver's per-automation result for one tick.
type Outcome string

const (
	OutcomeNotDue           Outcome = "not_due"
	OutcomeAwaitingApproval Outcome = "awaiting_approval"
	OutcomeFired            Outcome = "fired"
	OutcomeError            Outcome = "error"
)

// FireResult is the per-automation outcome of one due-check/fire cycle.
type FireResult struct {
	AutomationID string  `json:"automation_id"`
	Outcome      Outcome `json:"outcome"`
	TasksCreated int     `json:"tasks_created"`
	Error        string  `json:"error,omitempty"`
}

var tickParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseTickSpec validates the driver's tick interval, a 5-field cron
// expression like "* * * * *".
func ParseTickSpec(expr string) (cron.Schedule, error) {
	schedule, err := tickParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid tick expression: %w", err)
	}
	return schedule, nil
}

// Driver orchestrates the engine: on every tick it walks all automations,
// consults the run guard, and fires the due ones through the approval gate
// and the instantiator. It is stateless between ticks; all scheduling state
// lives in each automation's persisted run marker.
type Driver struct {
	store    Store
	logger   *slog.Logger
	notifier notify.Notifier
	location *time.Location

	cron *cron.Cron

	// locks serializes the read-check-act sequence per automation so a
	// concurrent force-run and a scheduled tick cannot both fire.
	locks sync.Map // automation ID -> *sync.Mutex

	ctx context.Context
}

// NewDriver constructs a driver with the given dependencies.
func NewDriver(store Store, logger *slog.Logger, notifier notify.Notifier, location *time.Location) *Driver {
	if location == nil {
		location = time.Local
	}
	if notifier == nil {
		notifier = &notify.NoOpNotifier{}
	}
	return &Driver{
		store:    store,
		logger:   logger,
		notifier: notifier,
		location: location,
		cron: cron.New(
			cron.WithParser(tickParser),
			cron.WithLocation(location),
		),
	}
}

// Start begins the periodic tick loop. tickExpr is a deployment parameter, a
// 5-field cron expression. One tick runs immediately before the first
// scheduled one.
func (d *Driver) Start(ctx context.Context, tickExpr string) error {
	if _, err := ParseTickSpec(tickExpr); err != nil {
		return err
	}
	d.ctx = ctx
	if _, err := d.cron.AddFunc(tickExpr, func() {
		d.Tick(d.ctxOrBackground())
	}); err != nil {
		return err
	}
	d.cron.Start()
	go d.Tick(ctx)
	return nil
}

// Stop stops the tick loop. The returned context is done once the in-flight
// tick has drained.
func (d *Driver) Stop() context.Context {
	return d.cron.Stop()
}

// Tick runs one due-check/fire cycle over every automation. A failure in one
// automation never aborts processing of the others. Firing order among due
// automations is unspecified.
func (d *Driver) Tick(ctx context.Context) []FireResult {
	telemetry.EngineTicks.Inc()
	now := time.Now().In(d.location)

	automations, err := d.store.ListAutomations(ctx)
	if err != nil {
		d.logger.Error("list automations", "err", err)
		return nil
	}

	results := make([]FireResult, 0, len(automations))
	for _, a := range automations {
		result := d.processOne(ctx, a.ID, now)
		if result.Outcome == OutcomeError {
			d.logger.Error("process automation", "automation_id", a.ID, "err", result.Error)
		}
		results = append(results, result)
	}
	return results
}

// ForceRun clears the automation's run marker and immediately re-evaluates it
// through the ordinary due->fire path. Only the period check is bypassed:
// trigger-day and approval gating still apply.
func (d *Driver) ForceRun(ctx context.Context, automationID string) (FireResult, error) {
	mu := d.lockFor(automationID)
	mu.Lock()
	defer mu.Unlock()

	if err := d.store.ResetLastRun(ctx, automationID); err != nil {
		return FireResult{}, fmt.Errorf("reset last run: %w", err)
	}
	return d.processLocked(ctx, automationID, time.Now().In(d.location)), nil
}

func (d *Driver) processOne(ctx context.Context, automationID string, now time.Time) FireResult {
	mu := d.lockFor(automationID)
	mu.Lock()
	defer mu.Unlock()
	return d.processLocked(ctx, automationID, now)
}

// processLocked performs the read-check-act sequence for one automation. The
// caller holds the automation's lock; the record is re-read under it so the
// decision is made against fresh state.
func (d *Driver) processLocked(ctx context.Context, automationID string, now time.Time) FireResult {
	result := FireResult{AutomationID: automationID}

	a, err := d.store.GetAutomation(ctx, automationID)
	if err != nil {
		result.Outcome = OutcomeError
		result.Error = err.Error()
		return result
	}

	due, err := IsDue(a, now)
	if err != nil {
		result.Outcome = OutcomeError
		result.Error = err.Error()
		telemetry.EngineFires.WithLabelValues(string(OutcomeError)).Inc()
		return result
	}
	if !due {
		result.Outcome = OutcomeNotDue
		return result
	}

	approved := ApprovedTemplates(a)
	if len(approved) == 0 {
		// Due but nothing approved: report it, do not advance the marker.
		// The automation stays due until a template is approved.
		d.logger.Info("automation due but awaiting approval", "automation_id", a.ID)
		result.Outcome = OutcomeAwaitingApproval
		telemetry.EngineFires.WithLabelValues(string(OutcomeAwaitingApproval)).Inc()
		return result
	}

	started := time.Now()
	tasks, err := InstantiateTasks(approved, a, now)
	if err == nil {
		err = d.store.CommitFire(ctx, a.ID, MarkRun(a.Cadence, now), tasks)
	}
	if err != nil {
		// The fire is treated as not-happened: no marker advance, no
		// partial task append. It stays due for the next tick.
		result.Outcome = OutcomeError
		result.Error = err.Error()
		telemetry.EngineFires.WithLabelValues(string(OutcomeError)).Inc()
		d.notifyFire(a, result)
		return result
	}

	telemetry.EngineFires.WithLabelValues(string(OutcomeFired)).Inc()
	telemetry.EngineTasksCreated.Add(float64(len(tasks)))
	telemetry.EngineFireDuration.Observe(time.Since(started).Seconds())

	d.logger.Info("automation fired",
		"automation_id", a.ID,
		"name", a.Name,
		"cadence", a.Cadence.Kind(),
		"tasks_created", len(tasks))

	result.Outcome = OutcomeFired
	result.TasksCreated = len(tasks)
	d.notifyFire(a, result)
	return result
}

func (d *Driver) notifyFire(a *Automation, result FireResult) {
	var body string
	if result.Outcome == OutcomeFired {
		body = fmt.Sprintf("%s fired, %d tasks created", a.Name, result.TasksCreated)
	} else {
		body = fmt.Sprintf("%s failed to fire: %s", a.Name, result.Error)
	}
	if err := d.notifier.Send(d.ctxOrBackground(), "automation fire", body); err != nil {
		d.logger.Warn("notify fire outcome", "automation_id", a.ID, "err", err)
	}
}

func (d *Driver) lockFor(automationID string) *sync.Mutex {
	mu, _ := d.locks.LoadOrStore(automationID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (d *Driver) ctxOrBackground() context.Context {
	if d.ctx != nil {
		return d.ctx
	}
	return context.Background()
}

// StatusEntry is one automation's row in the operator status report.
type StatusEntry struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	CadenceKind           string     `json:"cadenceKind"`
	Status                string     `json:"status"`
	NextRunDate           *time.Time `json:"nextRunDate,omitempty"`
	LastRunDate           *string    `json:"lastRunDate,omitempty"`
	TemplateCount         int        `json:"templateCount"`
	ApprovedTemplateCount int        `json:"approvedTemplateCount"`
	TasksCreatedCount     int        `json:"tasksCreatedCount"`
	Error                 string     `json:"error,omitempty"`
}

// StatusReport is the read-only operator projection over all automations.
type StatusReport struct {
	CurrentTime      time.Time     `json:"currentTime"`
	TotalAutomations int           `json:"totalAutomations"`
	StatusReport     []StatusEntry `json:"statusReport"`
}

// StatusReport builds the operator projection without mutating any state.
// Misconfigured automations degrade to an error entry instead of failing the
// whole report.
func (d *Driver) StatusReport(ctx context.Context) (*StatusReport, error) {
	now := time.Now().In(d.location)
	automations, err := d.store.ListAutomations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}

	report := &StatusReport{
		CurrentTime:      now,
		TotalAutomations: len(automations),
		StatusReport:     make([]StatusEntry, 0, len(automations)),
	}
	for _, a := range automations {
		report.StatusReport = append(report.StatusReport, statusEntry(a, now))
	}
	return report, nil
}

func statusEntry(a *Automation, now time.Time) StatusEntry {
	entry := StatusEntry{
		ID:                    a.ID,
		Name:                  a.Name,
		CadenceKind:           string(a.Cadence.Kind()),
		TemplateCount:         len(a.Templates),
		ApprovedTemplateCount: len(ApprovedTemplates(a)),
		TasksCreatedCount:     a.TasksCreated,
	}
	if a.LastRunPeriod != nil {
		formatted := a.LastRunPeriod.String()
		entry.LastRunDate = &formatted
	} else if a.LastRunAt != nil {
		formatted := a.LastRunAt.UTC().Format(time.RFC3339)
		entry.LastRunDate = &formatted
	}

	res, err := Resolve(a.Cadence, now, a.LastRunPeriod, a.LastRunAt)
	if err != nil {
		entry.Status = "invalid configuration"
		entry.Error = err.Error()
		return entry
	}
	entry.Status = res.Status
	next := res.NextRun
	entry.NextRunDate = &next

	// A due automation with nothing approved is a distinct condition, not
	// "completed" and not a plain pending state.
	if due, err := IsDue(a, now); err == nil && due && entry.ApprovedTemplateCount == 0 {
		entry.Status = "pending approval"
	}
	return entry
}
