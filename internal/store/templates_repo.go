package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskauto/internal/core"
)

var ErrTemplateNotFound = errors.New("template not found")

func (s *Store) InsertTemplate(ctx context.Context, tpl *core.TemplateEntry) error {
	now := time.Now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	if tpl.ApprovalState == "" {
		tpl.ApprovalState = core.ApprovalPending
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO templates (id, automation_id, position, title, body, approval_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, tpl.ID, tpl.AutomationID, tpl.Position, tpl.Title, tpl.Body, tpl.ApprovalState,
		tpl.CreatedAt.Format(time.RFC3339Nano), tpl.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*core.TemplateEntry, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, automation_id, position, title, body, approval_state, created_at, updated_at
		FROM templates WHERE id = ?
	`, id)
	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return tpl, nil
}

// UpdateTemplateApproval applies the out-of-band review decision to a
// template entry. The engine itself only ever reads approval_state.
func (s *Store) UpdateTemplateApproval(ctx context.Context, id string, state core.ApprovalState) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE templates
		SET approval_state = ?, updated_at = ?
		WHERE id = ?
	`, state, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update template approval: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func scanTemplate(scanner interface {
	Scan(dest ...any) error
}) (*core.TemplateEntry, error) {
	var (
		id            string
		automationID  string
		position      int
		title         string
		body          string
		approvalState string
		createdAt     string
		updatedAt     string
	)
	if err := scanner.Scan(&id, &automationID, &position, &title, &body, &approvalState, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	tpl := &core.TemplateEntry{
		ID:            id,
		AutomationID:  automationID,
		Position:      position,
		Title:         title,
		Body:          body,
		ApprovalState: core.ApprovalState(approvalState),
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		tpl.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		tpl.UpdatedAt = t
	}
	return tpl, nil
}
