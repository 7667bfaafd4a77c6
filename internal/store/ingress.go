package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/imamik/leasehold/internal/model"
)

// CreateIngressBinding inserts a binding. A free binding is rejected with
// ErrIngressQuota when the resource already holds freeCap free bindings.
func (s *Store) CreateIngressBinding(ctx context.Context, b *model.IngressBinding, freeCap int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !b.Paid {
			var free int64
			if err := tx.Model(&model.IngressBinding{}).
				Where("resource_id = ? AND paid = ?", b.ResourceID, false).
				Count(&free).Error; err != nil {
				return err
			}
			if free >= int64(freeCap) {
				return fmt.Errorf("resource %s has %d free bindings: %w", b.ResourceID, free, ErrIngressQuota)
			}
		}
		return tx.Create(b).Error
	})
}

// ListIngressBindings returns the bindings of the given resources.
func (s *Store) ListIngressBindings(ctx context.Context, resourceIDs ...string) ([]model.IngressBinding, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	var bindings []model.IngressBinding
	err := s.db.WithContext(ctx).Where("resource_id IN ?", resourceIDs).
		Order("created_at ASC").Find(&bindings).Error
	return bindings, err
}

// GetIngressBinding loads a binding by hostname.
func (s *Store) GetIngressBinding(ctx context.Context, hostname string) (*model.IngressBinding, error) {
	var b model.IngressBinding
	if err := s.db.WithContext(ctx).Where("hostname = ?", hostname).First(&b).Error; err != nil {
		return nil, notFound(err, "ingress binding "+hostname)
	}
	return &b, nil
}

// DeleteIngressBinding removes a binding by hostname.
func (s *Store) DeleteIngressBinding(ctx context.Context, hostname string) error {
	return s.db.WithContext(ctx).Where("hostname = ?", hostname).
		Delete(&model.IngressBinding{}).Error
}
