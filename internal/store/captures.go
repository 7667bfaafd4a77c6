package store

import (
	"context"

	"github.com/imamik/leasehold/internal/model"
)

// ListSnapshotRecords returns the snapshot records of a resource, oldest first.
func (s *Store) ListSnapshotRecords(ctx context.Context, resourceID string) ([]model.SnapshotRecord, error) {
	var records []model.SnapshotRecord
	err := s.db.WithContext(ctx).Where("resource_id = ?", resourceID).
		Order("created_at ASC").Find(&records).Error
	return records, err
}

// CreateSnapshotRecord inserts a snapshot record.
func (s *Store) CreateSnapshotRecord(ctx context.Context, rec *model.SnapshotRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// DeleteSnapshotRecord removes the record of a named snapshot.
func (s *Store) DeleteSnapshotRecord(ctx context.Context, resourceID, name string) error {
	return s.db.WithContext(ctx).
		Where("resource_id = ? AND name = ?", resourceID, name).
		Delete(&model.SnapshotRecord{}).Error
}

// ListBackupRecords returns the backup records of a resource, oldest first.
func (s *Store) ListBackupRecords(ctx context.Context, resourceID string) ([]model.BackupRecord, error) {
	var records []model.BackupRecord
	err := s.db.WithContext(ctx).Where("resource_id = ?", resourceID).
		Order("created_at ASC").Find(&records).Error
	return records, err
}

// CreateBackupRecord inserts a backup record.
func (s *Store) CreateBackupRecord(ctx context.Context, rec *model.BackupRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// DeleteBackupRecord removes the record of a backup volume.
func (s *Store) DeleteBackupRecord(ctx context.Context, volumeID string) error {
	return s.db.WithContext(ctx).Where("volume_id = ?", volumeID).
		Delete(&model.BackupRecord{}).Error
}
