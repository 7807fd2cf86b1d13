package notify

import (
	"context"
	"errors"

	gaugeapp "energy-gauge/internal/gauge/application"
)

// MultiNotifier dispatches readings to multiple notifiers.
type MultiNotifier struct {
	notifiers []gaugeapp.Notifier
}

// NewMultiNotifier constructs a MultiNotifier. Nil notifiers are skipped.
func NewMultiNotifier(notifiers ...gaugeapp.Notifier) *MultiNotifier {
	out := make([]gaugeapp.Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			out = append(out, notifier)
		}
	}
	return &MultiNotifier{notifiers: out}
}

// Len returns the number of wired notifiers.
func (m *MultiNotifier) Len() int {
	if m == nil {
		return 0
	}
	return len(m.notifiers)
}

// Publish forwards the reading to all notifiers and joins their errors.
func (m *MultiNotifier) Publish(ctx context.Context, reading gaugeapp.Reading) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Publish(ctx, reading); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
