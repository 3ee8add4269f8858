package repository

import (
	"context"

	"zalo-hub/internal/domain/sticker"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresStickerRepository struct {
	db *gorm.DB
}

func NewStickerRepository(db *gorm.DB) StickerRepository {
	return &PostgresStickerRepository{db: db}
}

func (r *PostgresStickerRepository) Get(ctx context.Context, stickerID, cateID int64, stickerType int) (sticker.Sticker, error) {
	var s sticker.Sticker
	err := r.db.WithContext(ctx).
		Where("sticker_id = ? AND cate_id = ? AND type = ?", stickerID, cateID, stickerType).
		First(&s).Error
	if err != nil {
		return sticker.Sticker{}, translate(err)
	}
	return s, nil
}

func (r *PostgresStickerRepository) CreateIfAbsent(ctx context.Context, s *sticker.Sticker) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sticker_id"}, {Name: "cate_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(s)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}
