package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/config"
	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/platform/cache"
	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/store"
)

const tracerName = "github.com/imamik/leasehold/internal/engine"

// Sentinel errors surfaced to callers.
var (
	ErrInvalidTemplate     = errors.New("unknown template")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountBanned       = errors.New("account is banned")
	ErrNotReady            = errors.New("resource is not ready")
	ErrNoAddress           = errors.New("resource has no network address")
)

// Dependencies are the collaborators of an Engine. Store, Hypervisor and
// Shell are required; a nil optional collaborator disables its feature.
type Dependencies struct {
	Store      *store.Store
	Hypervisor Hypervisor
	Shell      Shell

	VPN      VPNProvider
	Ingress  IngressProvider
	Notifier Notifier
	Archive  Archive
	Cache    *cache.Cache

	Timeouts       *config.Timeouts
	TracerProvider trace.TracerProvider
	Now            func() time.Time
}

// Engine drives resource lifecycles.
type Engine struct {
	cfg      *config.Config
	timeouts *config.Timeouts

	store    *store.Store
	hv       Hypervisor
	shell    Shell
	vpn      VPNProvider
	ingress  IngressProvider
	notifier Notifier
	archive  Archive
	cache    *cache.Cache

	allocations  *Executor
	provisioning *Executor

	// snapshotLocks serializes snapshot operations per resource.
	snapshotLocks keyedLocks

	tracer trace.Tracer
	now    func() time.Time
}

// New creates an engine. Call Start before submitting work.
func New(cfg *config.Config, deps Dependencies) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Store == nil || deps.Hypervisor == nil || deps.Shell == nil {
		return nil, errors.New("store, hypervisor and shell are required")
	}

	e := &Engine{
		cfg:          cfg,
		timeouts:     deps.Timeouts,
		store:        deps.Store,
		hv:           deps.Hypervisor,
		shell:        deps.Shell,
		vpn:          deps.VPN,
		ingress:      deps.Ingress,
		notifier:     deps.Notifier,
		archive:      deps.Archive,
		cache:        deps.Cache,
		allocations:  NewExecutor("allocation"),
		provisioning: NewExecutor("provisioning"),
		now:          deps.Now,
	}
	if e.timeouts == nil {
		e.timeouts = config.LoadTimeouts()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	e.tracer = tp.Tracer(tracerName)
	return e, nil
}

// Start launches the allocation and provisioning workers.
func (e *Engine) Start(ctx context.Context) {
	e.allocations.Start(ctx)
	e.provisioning.Start(ctx)
}

// Stop rejects new work and drains both queues.
func (e *Engine) Stop(ctx context.Context) error {
	return errors.Join(
		e.allocations.Stop(ctx),
		e.provisioning.Stop(ctx),
	)
}

// PendingProvisions returns the number of queued provisioning runs.
func (e *Engine) PendingProvisions() int {
	return e.provisioning.Len()
}

// RecoverInterrupted marks resources left in provisioning by a previous
// process as failed. Runs are never resumed; a failed resource is removed
// through the normal delete path. Call before Start.
func (e *Engine) RecoverInterrupted(ctx context.Context) (int, error) {
	logger := log.FromContext(ctx)

	stuck, err := e.store.ListResourcesByStatus(ctx, model.StatusProvisioning)
	if err != nil {
		return 0, fmt.Errorf("list interrupted resources: %w", err)
	}

	var errs []error
	recovered := 0
	for _, r := range stuck {
		if err := e.store.SetResourceStatus(ctx, r.ID, model.StatusError, "provisioning interrupted by restart"); err != nil {
			errs = append(errs, fmt.Errorf("resource %s: %w", r.ID, err))
			continue
		}
		recovered++
		logger.Info("marked interrupted resource as failed", "resource", r.ID, "hypervisorID", r.HypervisorID)
	}
	return recovered, errors.Join(errs...)
}

// waitTask waits for a hypervisor task with a bounded context.
func (e *Engine) waitTask(ctx context.Context, task hypervisor.Task, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.hv.WaitForTask(ctx, task)
}

// stopContainer stops a container and waits for it. A container that is
// already stopped or gone is not an error.
func (e *Engine) stopContainer(ctx context.Context, vmid int) error {
	task, err := e.hv.Stop(ctx, vmid)
	if err == nil {
		err = e.waitTask(ctx, task, e.timeouts.Task)
	}
	if err != nil && !hypervisor.IsNotRunning(err) && !hypervisor.IsNotFound(err) {
		return err
	}
	return nil
}
