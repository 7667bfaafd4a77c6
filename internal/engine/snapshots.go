package engine

import (
	"context"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/store"
	"github.com/imamik/leasehold/internal/util/naming"
)

func capturable(r *model.Resource) error {
	if r.Status != model.StatusOnline && r.Status != model.StatusStopped {
		return fmt.Errorf("resource %s is %s: %w", r.ID, r.Status, ErrNotReady)
	}
	return nil
}

// CreateSnapshot takes a snapshot of a resource. When the retention limit is
// reached the oldest snapshots are evicted first; a failed hypervisor-side
// eviction is logged and the local record is pruned regardless.
func (e *Engine) CreateSnapshot(ctx context.Context, resourceID, description string) (*model.SnapshotRecord, error) {
	logger := log.FromContext(ctx).WithValues("resource", resourceID)

	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if err := capturable(res); err != nil {
		return nil, err
	}

	defer e.snapshotLocks.lock(res.ID)()

	// Snapshots taken at the node by hand count towards the limit.
	if err := e.reconcileSnapshots(ctx, res); err != nil {
		logger.Error(err, "snapshot reconcile failed, evicting by local records")
	}
	records, err := e.store.ListSnapshotRecords(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("list snapshot records: %w", err)
	}
	for len(records) >= e.cfg.Retention.Snapshots {
		oldest := records[0]
		err := e.deleteHypervisorSnapshot(ctx, res.HypervisorID, oldest.Name)
		recordRotation("snapshot", "evict", err)
		if err != nil {
			logger.Error(err, "failed to evict snapshot at hypervisor", "snapshot", oldest.Name)
		}
		if err := e.store.DeleteSnapshotRecord(ctx, res.ID, oldest.Name); err != nil {
			return nil, fmt.Errorf("prune snapshot record %s: %w", oldest.Name, err)
		}
		records = records[1:]
	}

	now := e.now()
	name := naming.SnapshotName(now)
	task, err := e.hv.CreateSnapshot(ctx, res.HypervisorID, name, description)
	if err == nil {
		err = e.waitTask(ctx, task, e.timeouts.Task)
	}
	recordRotation("snapshot", "create", err)
	if err != nil {
		return nil, fmt.Errorf("create snapshot %s: %w", name, err)
	}

	rec := &model.SnapshotRecord{ResourceID: res.ID, Name: name, Description: description, CreatedAt: now}
	if err := e.store.CreateSnapshotRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist snapshot record: %w", err)
	}
	logger.Info("snapshot created", "snapshot", name)
	return rec, nil
}

// ListSnapshots reconciles the local records with the hypervisor and returns
// them oldest first. Hypervisor snapshots without a record are backfilled and
// records without a hypervisor snapshot are pruned.
func (e *Engine) ListSnapshots(ctx context.Context, resourceID string) ([]model.SnapshotRecord, error) {
	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	defer e.snapshotLocks.lock(res.ID)()
	if err := e.reconcileSnapshots(ctx, res); err != nil {
		return nil, err
	}
	return e.store.ListSnapshotRecords(ctx, res.ID)
}

func (e *Engine) reconcileSnapshots(ctx context.Context, res *model.Resource) error {
	logger := log.FromContext(ctx).WithValues("resource", res.ID)

	remote, err := e.hv.ListSnapshots(ctx, res.HypervisorID)
	if err != nil {
		return fmt.Errorf("list hypervisor snapshots: %w", err)
	}
	local, err := e.store.ListSnapshotRecords(ctx, res.ID)
	if err != nil {
		return fmt.Errorf("list snapshot records: %w", err)
	}

	known := make(map[string]bool, len(local))
	for _, rec := range local {
		known[rec.Name] = true
	}
	present := make(map[string]bool, len(remote))
	for _, snap := range remote {
		present[snap.Name] = true
		if known[snap.Name] {
			continue
		}
		rec := &model.SnapshotRecord{
			ResourceID:  res.ID,
			Name:        snap.Name,
			Description: snap.Description,
			CreatedAt:   snap.CreatedAt(),
		}
		if err := e.store.CreateSnapshotRecord(ctx, rec); err != nil {
			return fmt.Errorf("backfill snapshot record %s: %w", snap.Name, err)
		}
		logger.Info("backfilled snapshot record", "snapshot", snap.Name)
	}

	for _, rec := range local {
		if present[rec.Name] {
			continue
		}
		if err := e.store.DeleteSnapshotRecord(ctx, res.ID, rec.Name); err != nil {
			return fmt.Errorf("prune snapshot record %s: %w", rec.Name, err)
		}
		logger.Info("pruned orphaned snapshot record", "snapshot", rec.Name)
	}
	return nil
}

// DeleteSnapshot removes a snapshot at the hypervisor and locally.
func (e *Engine) DeleteSnapshot(ctx context.Context, resourceID, name string) error {
	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	defer e.snapshotLocks.lock(res.ID)()
	if _, err := e.findSnapshot(ctx, res.ID, name); err != nil {
		return err
	}

	err = e.deleteHypervisorSnapshot(ctx, res.HypervisorID, name)
	recordRotation("snapshot", "delete", err)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", name, err)
	}
	return e.store.DeleteSnapshotRecord(ctx, res.ID, name)
}

// RollbackSnapshot restores a resource to a snapshot. A resource that was
// online is started again afterwards.
func (e *Engine) RollbackSnapshot(ctx context.Context, resourceID, name string) error {
	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	if err := capturable(res); err != nil {
		return err
	}
	defer e.snapshotLocks.lock(res.ID)()
	if _, err := e.findSnapshot(ctx, res.ID, name); err != nil {
		return err
	}

	task, err := e.hv.RollbackSnapshot(ctx, res.HypervisorID, name)
	if err == nil {
		err = e.waitTask(ctx, task, e.timeouts.Task)
	}
	recordRotation("snapshot", "rollback", err)
	if err != nil {
		return fmt.Errorf("rollback to snapshot %s: %w", name, err)
	}

	if res.Status == model.StatusOnline {
		task, err := e.hv.Start(ctx, res.HypervisorID)
		if err == nil {
			err = e.waitTask(ctx, task, e.timeouts.Task)
		}
		if err != nil {
			return fmt.Errorf("restart after rollback: %w", err)
		}
	}
	log.FromContext(ctx).Info("rolled back to snapshot", "resource", res.ID, "snapshot", name)
	return nil
}

func (e *Engine) findSnapshot(ctx context.Context, resourceID, name string) (*model.SnapshotRecord, error) {
	records, err := e.store.ListSnapshotRecords(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Name == name {
			return &records[i], nil
		}
	}
	return nil, fmt.Errorf("snapshot %s: %w", name, store.ErrNotFound)
}

// deleteHypervisorSnapshot deletes a snapshot and waits for it. A snapshot
// that no longer exists is not an error.
func (e *Engine) deleteHypervisorSnapshot(ctx context.Context, vmid int, name string) error {
	task, err := e.hv.DeleteSnapshot(ctx, vmid, name)
	if err == nil {
		err = e.waitTask(ctx, task, e.timeouts.Task)
	}
	if err != nil && !hypervisor.IsNotFound(err) {
		return err
	}
	return nil
}
