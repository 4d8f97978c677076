// Package notify is the engine's outbound notification port. The engine
// emits fire outcomes through it; concrete delivery (chat, email, push) is an
// external collaborator and lives behind this interface.
package notify

import (
	"context"
	"errors"
)

// Notifier receives fire-outcome events from the engine.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// MultiNotifier fans an event out to several notifiers. Every notifier is
// attempted; errors are collected rather than short-circuiting.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Send(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpNotifier discards events. The default wiring when no delivery system is
// attached.
type NoOpNotifier struct{}

func (n *NoOpNotifier) Send(ctx context.Context, title, body string) error {
	return nil
}
