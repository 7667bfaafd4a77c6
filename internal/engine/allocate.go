package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/config"
	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/util/keygen"
)

// AllocateRequest asks for a new resource.
type AllocateRequest struct {
	OwnerID  string
	Name     string
	Template string
}

// Allocation is the reserved identity of a new resource.
type Allocation struct {
	ResourceID   string `json:"resourceId"`
	HypervisorID int    `json:"hypervisorId"`
	Credential   string `json:"credential"`
}

// Allocate reserves a hypervisor id and creates the resource row in status
// provisioning. The check-and-create sequence runs on the allocation queue so
// concurrent requests never receive the same id. Nothing is persisted when
// the hypervisor cannot be reached.
func (e *Engine) Allocate(ctx context.Context, req AllocateRequest) (*Allocation, error) {
	tmpl, ok := e.cfg.Templates[req.Template]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTemplate, req.Template)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("resource name is required")
	}

	owner, err := e.store.GetAccount(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if owner.Banned {
		return nil, ErrAccountBanned
	}
	if !owner.Exempt() && !owner.Balance.IsPositive() {
		return nil, ErrInsufficientBalance
	}

	// The job observes ctx itself: a caller that gave up while queued gets
	// ctx.Err() and no row is created.
	var alloc *Allocation
	err = e.allocations.Do(context.WithoutCancel(ctx), "allocate "+req.Name, func(jobCtx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(jobCtx, cancel)
		defer stop()

		a, err := e.allocate(runCtx, req, tmpl)
		alloc = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

func (e *Engine) allocate(ctx context.Context, req AllocateRequest, tmpl config.Template) (*Allocation, error) {
	candidate, err := e.hv.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query next hypervisor id: %w", err)
	}

	// The hypervisor only counts containers it has seen; ids handed out to
	// rows whose clone has not started yet are skipped here.
	for {
		taken, err := e.store.HypervisorIDExists(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("check hypervisor id %d: %w", candidate, err)
		}
		if !taken {
			break
		}
		candidate++
	}

	password, err := keygen.GeneratePassword(keygen.DefaultPasswordLength)
	if err != nil {
		return nil, fmt.Errorf("generate credential: %w", err)
	}

	r := &model.Resource{
		ID:       uuid.NewString(),
		OwnerID:  req.OwnerID,
		Name:     req.Name,
		Template: req.Template,
		Capacity: datatypes.NewJSONType(model.Capacity{
			Cores:    tmpl.Cores,
			MemoryMB: tmpl.MemoryMB,
			DiskGB:   tmpl.DiskGB,
		}),
		DailyCost:    tmpl.DailyCost,
		Status:       model.StatusProvisioning,
		HypervisorID: candidate,
		RootPassword: password,
	}
	if err := e.store.CreateResource(ctx, r); err != nil {
		return nil, fmt.Errorf("create resource row: %w", err)
	}

	log.FromContext(ctx).Info("allocated resource", "resource", r.ID, "hypervisorID", candidate, "template", req.Template)
	return &Allocation{ResourceID: r.ID, HypervisorID: candidate, Credential: password}, nil
}

// Launch allocates a resource and queues its provisioning run. It returns as
// soon as the run is queued.
func (e *Engine) Launch(ctx context.Context, req AllocateRequest) (*Allocation, error) {
	alloc, err := e.Allocate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := e.EnqueueProvision(ctx, alloc.ResourceID); err != nil {
		return nil, err
	}
	return alloc, nil
}
