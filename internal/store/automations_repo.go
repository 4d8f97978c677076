package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"taskauto/internal/core"
)

var ErrAutomationNotFound = errors.New("automation not found")

func (s *Store) InsertAutomation(ctx context.Context, a *core.Automation) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	enc, err := encodeCadence(a.Cadence)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO automations (id, name, cadence_kind, cadence_day, cadence_month, cadence_months, cadence_at,
			last_run_year, last_run_month, last_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, enc.kind, enc.day, enc.month, enc.months, enc.at,
		lastRunYear(a.LastRunPeriod), lastRunMonth(a.LastRunPeriod), nullableTime(a.LastRunAt),
		a.CreatedAt.Format(time.RFC3339Nano), a.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert automation: %w", err)
	}
	return nil
}

func (s *Store) UpdateAutomation(ctx context.Context, a *core.Automation) error {
	a.UpdatedAt = time.Now().UTC()
	enc, err := encodeCadence(a.Cadence)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE automations
		SET name = ?, cadence_kind = ?, cadence_day = ?, cadence_month = ?, cadence_months = ?, cadence_at = ?,
			last_run_year = ?, last_run_month = ?, last_run_at = ?, updated_at = ?
		WHERE id = ?
	`, a.Name, enc.kind, enc.day, enc.month, enc.months, enc.at,
		lastRunYear(a.LastRunPeriod), lastRunMonth(a.LastRunPeriod), nullableTime(a.LastRunAt),
		a.UpdatedAt.Format(time.RFC3339Nano), a.ID)
	if err != nil {
		return fmt.Errorf("update automation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update automation rows: %w", err)
	}
	if rows == 0 {
		return ErrAutomationNotFound
	}
	return nil
}

func (s *Store) DeleteAutomation(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM automations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete automation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAutomationNotFound
	}
	return nil
}

func (s *Store) GetAutomation(ctx context.Context, id string) (*core.Automation, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, cadence_kind, cadence_day, cadence_month, cadence_months, cadence_at,
			last_run_year, last_run_month, last_run_at, created_at, updated_at
		FROM automations WHERE id = ?
	`, id)
	a, err := scanAutomation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAutomationNotFound
		}
		return nil, err
	}
	if err := s.attachDetails(ctx, []*core.Automation{a}); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) ListAutomations(ctx context.Context) ([]*core.Automation, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, cadence_kind, cadence_day, cadence_month, cadence_months, cadence_at,
			last_run_year, last_run_month, last_run_at, created_at, updated_at
		FROM automations
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query automations: %w", err)
	}
	defer rows.Close()
	var automations []*core.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		automations = append(automations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachDetails(ctx, automations); err != nil {
		return nil, err
	}
	return automations, nil
}

// CommitFire records one fire as a single transaction: every generated task
// is inserted and the run marker is advanced, or neither happens.
func (s *Store) CommitFire(ctx context.Context, automationID string, marker core.FireMarker, tasks []*core.GeneratedTask) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fire tx: %w", err)
	}
	defer tx.Rollback()

	for _, task := range tasks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO generated_tasks (id, automation_id, template_id, title, body, status, fired_period, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, task.ID, task.AutomationID, task.TemplateID, task.Title, task.Body, task.Status,
			task.FiredPeriod, task.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert generated task: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE automations
		SET last_run_year = ?, last_run_month = ?, last_run_at = ?, updated_at = ?
		WHERE id = ?
	`, lastRunYear(marker.Period), lastRunMonth(marker.Period), nullableTime(marker.At),
		time.Now().UTC().Format(time.RFC3339Nano), automationID)
	if err != nil {
		return fmt.Errorf("advance run marker: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance run marker rows: %w", err)
	}
	if rows == 0 {
		return ErrAutomationNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fire: %w", err)
	}
	return nil
}

// ResetLastRun clears the run marker, making the automation due again
// regardless of period. The administrator's force-run entry point.
func (s *Store) ResetLastRun(ctx context.Context, automationID string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE automations
		SET last_run_year = NULL, last_run_month = NULL, last_run_at = NULL, updated_at = ?
		WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339Nano), automationID)
	if err != nil {
		return fmt.Errorf("reset last run: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAutomationNotFound
	}
	return nil
}

// attachDetails loads templates and task counts for the given automations.
func (s *Store) attachDetails(ctx context.Context, automations []*core.Automation) error {
	if len(automations) == 0 {
		return nil
	}
	byID := make(map[string]*core.Automation, len(automations))
	for _, a := range automations {
		byID[a.ID] = a
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, automation_id, position, title, body, approval_state, created_at, updated_at
		FROM templates
		ORDER BY automation_id, position, created_at
	`)
	if err != nil {
		return fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return err
		}
		if a, ok := byID[tpl.AutomationID]; ok {
			a.Templates = append(a.Templates, tpl)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	countRows, err := s.DB.QueryContext(ctx, `
		SELECT automation_id, COUNT(1) FROM generated_tasks GROUP BY automation_id
	`)
	if err != nil {
		return fmt.Errorf("count generated tasks: %w", err)
	}
	defer countRows.Close()
	for countRows.Next() {
		var id string
		var count int
		if err := countRows.Scan(&id, &count); err != nil {
			return fmt.Errorf("scan task count: %w", err)
		}
		if a, ok := byID[id]; ok {
			a.TasksCreated = count
		}
	}
	return countRows.Err()
}

type cadenceColumns struct {
	kind   string
	day    any
	month  any
	months any
	at     any
}

func encodeCadence(c core.Cadence) (cadenceColumns, error) {
	if c == nil {
		return cadenceColumns{}, fmt.Errorf("automation has no cadence")
	}
	cols := cadenceColumns{kind: string(c.Kind())}
	switch v := c.(type) {
	case core.DayOfMonth:
		cols.day = v.Day
	case core.Quarterly:
		cols.day = v.Day
		cols.months = joinMonths(v.Months)
	case core.HalfYearly:
		cols.day = v.Day
		cols.months = joinMonths(v.Months)
	case core.Yearly:
		cols.day = v.Day
		cols.month = int(v.Month)
	case core.OneShot:
		cols.at = v.At.UTC().Format(time.RFC3339Nano)
	default:
		return cadenceColumns{}, fmt.Errorf("unknown cadence kind %q", c.Kind())
	}
	return cols, nil
}

func decodeCadence(kind string, day, month sql.NullInt64, months, at sql.NullString) (core.Cadence, error) {
	switch core.CadenceKind(kind) {
	case core.KindDayOfMonth:
		return core.DayOfMonth{Day: int(day.Int64)}, nil
	case core.KindQuarterly:
		parsed, err := splitMonths(months.String)
		if err != nil {
			return nil, err
		}
		return core.Quarterly{Months: parsed, Day: int(day.Int64)}, nil
	case core.KindHalfYearly:
		parsed, err := splitMonths(months.String)
		if err != nil {
			return nil, err
		}
		return core.HalfYearly{Months: parsed, Day: int(day.Int64)}, nil
	case core.KindYearly:
		return core.Yearly{Month: time.Month(month.Int64), Day: int(day.Int64)}, nil
	case core.KindOneShot:
		t, err := time.Parse(time.RFC3339Nano, at.String)
		if err != nil {
			return nil, fmt.Errorf("parse one-shot instant: %w", err)
		}
		return core.OneShot{At: t}, nil
	default:
		return nil, fmt.Errorf("unknown cadence kind %q", kind)
	}
}

func joinMonths(months []time.Month) string {
	parts := make([]string, 0, len(months))
	for _, m := range months {
		parts = append(parts, strconv.Itoa(int(m)))
	}
	return strings.Join(parts, ",")
}

func splitMonths(value string) ([]time.Month, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	months := make([]time.Month, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parse month list %q: %w", value, err)
		}
		months = append(months, time.Month(n))
	}
	return months, nil
}

func scanAutomation(scanner interface {
	Scan(dest ...any) error
}) (*core.Automation, error) {
	var (
		id            string
		name          string
		cadenceKind   string
		cadenceDay    sql.NullInt64
		cadenceMonth  sql.NullInt64
		cadenceMonths sql.NullString
		cadenceAt     sql.NullString
		lastYear      sql.NullInt64
		lastMonth     sql.NullInt64
		lastAt        sql.NullString
		createdAt     string
		updatedAt     string
	)
	if err := scanner.Scan(&id, &name, &cadenceKind, &cadenceDay, &cadenceMonth, &cadenceMonths, &cadenceAt,
		&lastYear, &lastMonth, &lastAt, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan automation: %w", err)
	}
	cadence, err := decodeCadence(cadenceKind, cadenceDay, cadenceMonth, cadenceMonths, cadenceAt)
	if err != nil {
		return nil, fmt.Errorf("automation %s: %w", id, err)
	}
	a := &core.Automation{
		ID:      id,
		Name:    name,
		Cadence: cadence,
	}
	if lastYear.Valid {
		a.LastRunPeriod = &core.PeriodKey{
			Year:  int(lastYear.Int64),
			Month: time.Month(lastMonth.Int64),
		}
	}
	if lastAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastAt.String); err == nil {
			a.LastRunAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		a.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		a.UpdatedAt = t
	}
	return a, nil
}

func lastRunYear(p *core.PeriodKey) any {
	if p == nil {
		return nil
	}
	return p.Year
}

func lastRunMonth(p *core.PeriodKey) any {
	if p == nil {
		return nil
	}
	return int(p.Month)
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}
