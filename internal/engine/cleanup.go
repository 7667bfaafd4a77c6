package engine

import (
	"context"
	"errors"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/util/async"
	"github.com/imamik/leasehold/internal/util/naming"
)

// teardownParallelism bounds concurrent container teardowns of one account.
const teardownParallelism = 4

// DeleteResource tears a resource down and removes it. Every external call is
// best-effort: failures are logged and the datastore rows are removed anyway.
func (e *Engine) DeleteResource(ctx context.Context, resourceID string) error {
	logger := log.FromContext(ctx).WithValues("resource", resourceID)
	ctx = log.IntoContext(ctx, logger)

	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}

	bindings, err := e.store.ListIngressBindings(ctx, res.ID)
	if err != nil {
		logger.Error(err, "failed to list ingress bindings")
	}

	if err := e.teardownContainer(ctx, res); err != nil {
		logger.Error(err, "container teardown incomplete")
	}

	e.removeHostnames(ctx, e.hostnamesFor([]model.Resource{*res}, bindings))

	// The rows go even when the caller gave up during teardown.
	finalCtx := context.WithoutCancel(ctx)
	if err := e.store.DeleteResourceCascade(finalCtx, res.ID); err != nil {
		return fmt.Errorf("delete resource rows: %w", err)
	}
	e.invalidateStats(finalCtx, res.ID)
	logger.Info("resource deleted", "hypervisorID", res.HypervisorID)
	return nil
}

// DeleteAccount tears down every resource of an account and removes the
// account with all dependent rows. All hostnames are removed in one batched
// call before the containers are torn down.
func (e *Engine) DeleteAccount(ctx context.Context, accountID string) error {
	logger := log.FromContext(ctx).WithValues("account", accountID)
	ctx = log.IntoContext(ctx, logger)

	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return err
	}

	resources, err := e.store.ListResourcesByOwner(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}

	ids := make([]string, len(resources))
	for i, r := range resources {
		ids[i] = r.ID
	}
	bindings, err := e.store.ListIngressBindings(ctx, ids...)
	if err != nil {
		logger.Error(err, "failed to list ingress bindings")
	}
	e.removeHostnames(ctx, e.hostnamesFor(resources, bindings))

	tasks := make([]async.Task, len(resources))
	for i := range resources {
		r := &resources[i]
		tasks[i] = async.Task{
			Name: fmt.Sprintf("resource %s (hypervisor id %d)", r.ID, r.HypervisorID),
			Func: func(ctx context.Context) error { return e.teardownContainer(ctx, r) },
		}
	}
	if err := async.RunAll(ctx, teardownParallelism, tasks); err != nil {
		logger.Error(err, "account teardown incomplete")
	}

	finalCtx := context.WithoutCancel(ctx)
	if err := e.store.DeleteAccountCascade(finalCtx, accountID); err != nil {
		return fmt.Errorf("delete account rows: %w", err)
	}
	for _, id := range ids {
		e.invalidateStats(finalCtx, id)
	}
	logger.Info("account deleted", "resources", len(resources))
	return nil
}

// teardownContainer stops and deletes the container and revokes its VPN
// client. It attempts every step and returns the joined failures.
func (e *Engine) teardownContainer(ctx context.Context, r *model.Resource) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Delete)
	defer cancel()

	var errs []error
	if err := e.stopContainer(ctx, r.HypervisorID); err != nil {
		errs = append(errs, fmt.Errorf("stop: %w", err))
	}

	task, err := e.hv.Delete(ctx, r.HypervisorID)
	if err == nil {
		err = e.waitTask(ctx, task, e.timeouts.Task)
	}
	if err != nil && !hypervisor.IsNotFound(err) {
		errs = append(errs, fmt.Errorf("delete: %w", err))
	}

	if e.vpn != nil && r.VPNConfig != "" {
		if err := e.vpn.DeleteClient(ctx, r.VPNConfig); err != nil {
			errs = append(errs, fmt.Errorf("revoke vpn client: %w", err))
		}
	}
	return errors.Join(errs...)
}

// hostnamesFor collects the custom binding hostnames and the derived panel
// hostname of every resource.
func (e *Engine) hostnamesFor(resources []model.Resource, bindings []model.IngressBinding) []string {
	hostnames := make([]string, 0, len(bindings)+len(resources))
	for _, b := range bindings {
		hostnames = append(hostnames, b.Hostname)
	}
	if domain := e.cfg.Ingress.BaseDomain; domain != "" {
		for _, r := range resources {
			hostnames = append(hostnames, naming.PanelSubdomain(r.ID, domain))
		}
	}
	return hostnames
}

func (e *Engine) removeHostnames(ctx context.Context, hostnames []string) {
	if e.ingress == nil || len(hostnames) == 0 {
		return
	}
	if err := e.ingress.RemoveMultipleIngress(ctx, hostnames); err != nil {
		log.FromContext(ctx).Error(err, "failed to remove ingress hostnames", "hostnames", hostnames)
	}
}
