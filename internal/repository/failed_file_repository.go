package repository

import (
	"context"
	"time"

	"zalo-hub/internal/domain/upload"

	"gorm.io/gorm"
)

type PostgresFailedFileRepository struct {
	db *gorm.DB
}

func NewFailedFileRepository(db *gorm.DB) FailedFileRepository {
	return &PostgresFailedFileRepository{db: db}
}

func (r *PostgresFailedFileRepository) Create(ctx context.Context, f *upload.FailedFileStorage) error {
	return translate(r.db.WithContext(ctx).Create(f).Error)
}

func (r *PostgresFailedFileRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]upload.FailedFileStorage, error) {
	var rows []upload.FailedFileStorage
	q := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PostgresFailedFileRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&upload.FailedFileStorage{}).Error
}

// ParkedMessageIDs returns the subset of messageIDs that still own a
// dead-letter row outside excludeRowIDs.
func (r *PostgresFailedFileRepository) ParkedMessageIDs(ctx context.Context, messageIDs, excludeRowIDs []uint) ([]uint, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).
		Model(&upload.FailedFileStorage{}).
		Where("message_id IN ?", messageIDs)
	if len(excludeRowIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeRowIDs)
	}
	var ids []uint
	if err := q.Distinct().Pluck("message_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
