package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/solestore/api/internal/services"
)

type namedNotifier struct {
	name     string
	notifier services.OrderNotifier
}

// MultiNotifier delivers to every sink and joins their errors; one failing sink does not stop
// the others.
type MultiNotifier struct {
	sinks []namedNotifier
}

func (m *MultiNotifier) add(name string, notifier services.OrderNotifier) {
	m.sinks = append(m.sinks, namedNotifier{name: name, notifier: notifier})
}

func (m *MultiNotifier) Len() int { return len(m.sinks) }

func (m *MultiNotifier) Notify(ctx context.Context, n services.OrderNotification) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.notifier.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources.
func (m *MultiNotifier) Close() error {
	var errs []error
	for _, sink := range m.sinks {
		if closer, ok := sink.notifier.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sink.name, err))
			}
		}
	}
	return errors.Join(errs...)
}
