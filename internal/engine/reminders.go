package engine

import (
	"context"
	"errors"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/platform/notify"
)

// RemindIdle notifies owners of resources that have been stopped for longer
// than the configured idle period. A resource is reminded about at most once
// per reminder interval. It returns the number of reminders sent.
func (e *Engine) RemindIdle(ctx context.Context) (int, error) {
	if e.notifier == nil {
		return 0, nil
	}
	logger := log.FromContext(ctx)

	now := e.now()
	idle, err := e.store.IdleResources(ctx, now.Add(-e.cfg.Reminders.IdleAfter), now.Add(-e.cfg.Reminders.Interval))
	if err != nil {
		return 0, fmt.Errorf("list idle resources: %w", err)
	}

	sent := 0
	var errs []error
	for _, item := range idle {
		days := int(now.Sub(item.Resource.StatusChangedAt).Hours() / 24)
		to := notify.Recipient{Email: item.Owner.Email, Name: item.Owner.Name}
		if err := e.notifier.IdleReminder(ctx, to, item.Resource.Name, days); err != nil {
			errs = append(errs, fmt.Errorf("remind owner of %s: %w", item.Resource.ID, err))
			continue
		}
		if err := e.store.MarkIdleNotified(ctx, item.Resource.ID, now); err != nil {
			errs = append(errs, fmt.Errorf("mark %s reminded: %w", item.Resource.ID, err))
			continue
		}
		sent++
	}

	logger.Info("idle reminders sent", "sent", sent, "candidates", len(idle))
	return sent, errors.Join(errs...)
}
