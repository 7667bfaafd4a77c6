package engine

import (
	"context"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/model"
)

// StartResource powers on a stopped resource. The owner must have a positive
// balance unless exempt from metering. Starting an online resource is a no-op.
func (e *Engine) StartResource(ctx context.Context, resourceID string) error {
	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	switch res.Status {
	case model.StatusOnline:
		return nil
	case model.StatusStopped:
	default:
		return fmt.Errorf("start %s: %w: resource is %s", res.ID, model.ErrInvalidTransition, res.Status)
	}

	owner, err := e.store.GetAccount(ctx, res.OwnerID)
	if err != nil {
		return err
	}
	if owner.Banned {
		return ErrAccountBanned
	}
	if !owner.Exempt() && !owner.Balance.IsPositive() {
		return ErrInsufficientBalance
	}

	task, err := e.hv.Start(ctx, res.HypervisorID)
	if err == nil {
		err = e.waitTask(ctx, task, e.timeouts.Task)
	}
	if err != nil {
		return fmt.Errorf("start container %d: %w", res.HypervisorID, err)
	}
	if err := e.store.SetResourceStatus(ctx, res.ID, model.StatusOnline, "started by owner"); err != nil {
		return err
	}
	e.invalidateStats(ctx, res.ID)
	log.FromContext(ctx).Info("resource started", "resource", res.ID)
	return nil
}

// StopResource powers off an online resource. Stopping a stopped resource is
// a no-op.
func (e *Engine) StopResource(ctx context.Context, resourceID string) error {
	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	switch res.Status {
	case model.StatusStopped:
		return nil
	case model.StatusOnline:
	default:
		return fmt.Errorf("stop %s: %w", res.ID, res.Status.CheckTransition(model.StatusStopped))
	}

	if err := e.stopContainer(ctx, res.HypervisorID); err != nil {
		return fmt.Errorf("stop container %d: %w", res.HypervisorID, err)
	}
	if err := e.store.SetResourceStatus(ctx, res.ID, model.StatusStopped, "stopped by owner"); err != nil {
		return err
	}
	e.invalidateStats(ctx, res.ID)
	log.FromContext(ctx).Info("resource stopped", "resource", res.ID)
	return nil
}
