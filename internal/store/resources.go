package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imamik/leasehold/internal/model"
)

// CreateResource inserts a resource and its initial status event.
func (s *Store) CreateResource(ctx context.Context, r *model.Resource) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		return tx.Create(&model.StatusEvent{
			ResourceID: r.ID,
			AccountID:  r.OwnerID,
			To:         r.Status,
			Reason:     "created",
		}).Error
	})
}

// GetResource loads a resource by id.
func (s *Store) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	var r model.Resource
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, notFound(err, "resource "+id)
	}
	return &r, nil
}

// ListResourcesByOwner returns the resources of an account, oldest first.
func (s *Store) ListResourcesByOwner(ctx context.Context, ownerID string) ([]model.Resource, error) {
	var resources []model.Resource
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).
		Order("created_at ASC").Find(&resources).Error
	return resources, err
}

// ListResourcesByStatus returns every resource in one of the given statuses.
func (s *Store) ListResourcesByStatus(ctx context.Context, statuses ...model.ResourceStatus) ([]model.Resource, error) {
	var resources []model.Resource
	err := s.db.WithContext(ctx).Where("status IN ?", statuses).
		Order("created_at ASC").Find(&resources).Error
	return resources, err
}

// OnlineResourcesByOwner returns the online resources of an account.
func (s *Store) OnlineResourcesByOwner(ctx context.Context, ownerID string) ([]model.Resource, error) {
	var resources []model.Resource
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, model.StatusOnline).
		Find(&resources).Error
	return resources, err
}

// HypervisorIDExists reports whether any resource already holds the hypervisor id.
func (s *Store) HypervisorIDExists(ctx context.Context, hypervisorID int) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Resource{}).
		Where("hypervisor_id = ?", hypervisorID).Count(&count).Error
	return count > 0, err
}

// SetResourceStatus moves a resource to a new status along the status machine
// and records the change. Writing the current status again is a no-op.
func (s *Store) SetResourceStatus(ctx context.Context, id string, to model.ResourceStatus, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r model.Resource
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&r).Error; err != nil {
			return notFound(err, "resource "+id)
		}
		if r.Status == to {
			return nil
		}
		if err := r.Status.CheckTransition(to); err != nil {
			return err
		}

		if err := tx.Model(&model.Resource{}).Where("id = ?", id).Updates(map[string]any{
			"status":            to,
			"status_changed_at": time.Now().UTC(),
		}).Error; err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return tx.Create(&model.StatusEvent{
			ResourceID: id,
			AccountID:  r.OwnerID,
			From:       r.Status,
			To:         to,
			Reason:     reason,
		}).Error
	})
}

// BulkSetStatus moves every listed resource that is currently in status from to
// status to. Resources in any other status are left alone. It returns the
// number of resources changed.
func (s *Store) BulkSetStatus(ctx context.Context, ids []string, from, to model.ResourceStatus, reason string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := from.CheckTransition(to); err != nil {
		return 0, err
	}

	var changed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var affected []model.Resource
		if err := tx.Select("id", "owner_id").
			Where("id IN ? AND status = ?", ids, from).Find(&affected).Error; err != nil {
			return err
		}
		if len(affected) == 0 {
			return nil
		}

		affectedIDs := make([]string, len(affected))
		events := make([]model.StatusEvent, len(affected))
		for i, r := range affected {
			affectedIDs[i] = r.ID
			events[i] = model.StatusEvent{ResourceID: r.ID, AccountID: r.OwnerID, From: from, To: to, Reason: reason}
		}

		res := tx.Model(&model.Resource{}).Where("id IN ?", affectedIDs).Updates(map[string]any{
			"status":            to,
			"status_changed_at": time.Now().UTC(),
		})
		if res.Error != nil {
			return fmt.Errorf("bulk update status: %w", res.Error)
		}
		changed = res.RowsAffected
		return tx.Create(&events).Error
	})
	return changed, err
}

// SetNetwork records the address a resource obtained.
func (s *Store) SetNetwork(ctx context.Context, id, ipAddress, hostname string) error {
	return s.updateResource(ctx, id, map[string]any{"ip_address": ipAddress, "hostname": hostname})
}

// SetVPNConfig stores the VPN client configuration issued for a resource.
func (s *Store) SetVPNConfig(ctx context.Context, id, config string) error {
	return s.updateResource(ctx, id, map[string]any{"vpn_config": config})
}

// MarkIdleNotified records when an idle reminder was last sent.
func (s *Store) MarkIdleNotified(ctx context.Context, id string, at time.Time) error {
	return s.updateResource(ctx, id, map[string]any{"last_idle_notified_at": at})
}

func (s *Store) updateResource(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&model.Resource{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	return nil
}

// StatusHistory returns the status events of a resource, oldest first.
func (s *Store) StatusHistory(ctx context.Context, resourceID string) ([]model.StatusEvent, error) {
	var events []model.StatusEvent
	err := s.db.WithContext(ctx).Where("resource_id = ?", resourceID).
		Order("id ASC").Find(&events).Error
	return events, err
}

// DeleteResourceCascade removes a resource with its snapshot, backup and
// ingress rows and its status history.
func (s *Store) DeleteResourceCascade(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{&model.SnapshotRecord{}, &model.BackupRecord{}, &model.IngressBinding{}, &model.StatusEvent{}} {
			if err := tx.Where("resource_id = ?", id).Delete(m).Error; err != nil {
				return fmt.Errorf("delete %T rows: %w", m, err)
			}
		}
		return tx.Where("id = ?", id).Delete(&model.Resource{}).Error
	})
}
