package alerting

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Multi fans a notification out to every channel concurrently. A failing
// channel never stops the others.
type Multi struct {
	notifiers []Notifier
}

// NewMulti groups notifiers; nil entries are dropped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) Name() string { return "multi" }

// Len returns the number of channels.
func (m *Multi) Len() int { return len(m.notifiers) }

// Notify returns every channel failure joined, each as a *NotificationError.
func (m *Multi) Notify(ctx context.Context, note Notification) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, n := range m.notifiers {
		n := n
		g.Go(func() error {
			if err := n.Notify(ctx, note); err != nil {
				mu.Lock()
				errs = append(errs, &NotificationError{Channel: n.Name(), Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

var _ Notifier = (*Multi)(nil)
