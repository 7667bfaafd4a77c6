package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/platform/s3"
	"github.com/imamik/leasehold/internal/util/async"
)

// rotationParallelism bounds concurrent backup dumps on the node.
const rotationParallelism = 2

// RotationResult summarizes a backup rotation.
type RotationResult struct {
	Resources int
	Created   int
	Evicted   int
	Failed    int
}

// BackupsToEvict returns how many of existing backups must go so that
// limit-1 remain before a new one is added.
func BackupsToEvict(existing, limit int) int {
	return max(0, existing-(limit-1))
}

// RotateBackups takes a fresh backup of every online or stopped resource,
// evicting the oldest backups first to respect the retention limit. Failures
// are isolated per resource and reported joined.
func (e *Engine) RotateBackups(ctx context.Context) (RotationResult, error) {
	resources, err := e.store.ListResourcesByStatus(ctx, model.StatusOnline, model.StatusStopped)
	if err != nil {
		return RotationResult{}, fmt.Errorf("list resources: %w", err)
	}

	var (
		mu     sync.Mutex
		result = RotationResult{Resources: len(resources)}
	)
	tasks := make([]async.Task, len(resources))
	for i := range resources {
		r := &resources[i]
		tasks[i] = async.Task{
			Name: fmt.Sprintf("resource %s (hypervisor id %d)", r.ID, r.HypervisorID),
			Func: func(ctx context.Context) error {
				evicted, created, err := e.rotateBackup(ctx, r)
				mu.Lock()
				defer mu.Unlock()
				result.Evicted += evicted
				if created {
					result.Created++
				}
				if err != nil {
					result.Failed++
				}
				return err
			},
		}
	}

	err = async.RunAll(ctx, rotationParallelism, tasks)
	log.FromContext(ctx).Info("backup rotation finished",
		"resources", result.Resources, "created", result.Created, "evicted", result.Evicted, "failed", result.Failed)
	return result, err
}

func (e *Engine) rotateBackup(ctx context.Context, r *model.Resource) (evicted int, created bool, err error) {
	logger := log.FromContext(ctx).WithValues("resource", r.ID, "hypervisorID", r.HypervisorID)
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Backup)
	defer cancel()

	manifest := s3.Manifest{ResourceID: r.ID, HypervisorID: r.HypervisorID, RotatedAt: e.now()}
	defer func() {
		if err != nil {
			manifest.Error = err.Error()
		}
		e.archiveManifest(ctx, manifest)
	}()

	existing, err := e.hv.ListBackups(ctx, r.HypervisorID)
	if err != nil {
		return 0, false, fmt.Errorf("list backups: %w", err)
	}
	slices.SortFunc(existing, func(a, b hypervisor.Backup) int { return cmp.Compare(a.CTime, b.CTime) })

	for _, b := range existing[:BackupsToEvict(len(existing), e.cfg.Retention.Backups)] {
		derr := e.hv.DeleteBackup(ctx, b.VolID)
		recordRotation("backup", "evict", derr)
		if derr != nil {
			logger.Error(derr, "failed to evict backup", "volume", b.VolID)
			continue
		}
		evicted++
		manifest.Evicted = append(manifest.Evicted, b.VolID)
		if derr := e.store.DeleteBackupRecord(ctx, b.VolID); derr != nil {
			logger.Error(derr, "failed to prune backup record", "volume", b.VolID)
		}
	}

	task, err := e.hv.CreateBackup(ctx, r.HypervisorID)
	if err == nil {
		err = e.hv.WaitForTask(ctx, task)
	}
	recordRotation("backup", "create", err)
	if err != nil {
		return evicted, false, fmt.Errorf("create backup: %w", err)
	}

	if b, ferr := e.newestBackup(ctx, r.HypervisorID, existing); ferr != nil {
		logger.Error(ferr, "backup created but not recorded")
	} else {
		manifest.Created = b.VolID
		rec := &model.BackupRecord{ResourceID: r.ID, VolumeID: b.VolID, SizeBytes: b.Size, CreatedAt: b.CreatedAt()}
		if ferr := e.store.CreateBackupRecord(ctx, rec); ferr != nil {
			logger.Error(ferr, "failed to persist backup record", "volume", b.VolID)
		}
	}
	return evicted, true, nil
}

// newestBackup finds the backup that was not among before.
func (e *Engine) newestBackup(ctx context.Context, vmid int, before []hypervisor.Backup) (*hypervisor.Backup, error) {
	after, err := e.hv.ListBackups(ctx, vmid)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(before))
	for _, b := range before {
		seen[b.VolID] = true
	}
	var newest *hypervisor.Backup
	for i := range after {
		if seen[after[i].VolID] {
			continue
		}
		if newest == nil || after[i].CTime > newest.CTime {
			newest = &after[i]
		}
	}
	if newest == nil {
		return nil, errors.New("new backup not listed by the hypervisor")
	}
	return newest, nil
}

func (e *Engine) archiveManifest(ctx context.Context, m s3.Manifest) {
	if e.archive == nil {
		return
	}
	if err := e.archive.PutManifest(context.WithoutCancel(ctx), m); err != nil {
		log.FromContext(ctx).Error(err, "failed to archive rotation manifest", "resource", m.ResourceID)
	}
}
