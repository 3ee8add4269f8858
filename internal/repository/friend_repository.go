package repository

import (
	"context"

	"zalo-hub/internal/domain/contact"

	"gorm.io/gorm"
)

type PostgresFriendRepository struct {
	db *gorm.DB
}

func NewFriendRepository(db *gorm.DB) FriendRepository {
	return &PostgresFriendRepository{db: db}
}

func (r *PostgresFriendRepository) Create(ctx context.Context, f *contact.Friend) error {
	return translate(r.db.WithContext(ctx).Create(f).Error)
}

func (r *PostgresFriendRepository) GetByID(ctx context.Context, id uint) (contact.Friend, error) {
	var f contact.Friend
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return contact.Friend{}, translate(err)
	}
	return f, nil
}

func (r *PostgresFriendRepository) GetByUserKey(ctx context.Context, accountID uint, userKey string) (contact.Friend, error) {
	var f contact.Friend
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND user_key = ?", accountID, userKey).
		First(&f).Error
	if err != nil {
		return contact.Friend{}, translate(err)
	}
	return f, nil
}

func (r *PostgresFriendRepository) UpdateFriendship(ctx context.Context, id uint, isFr int) error {
	res := r.db.WithContext(ctx).
		Model(&contact.Friend{}).
		Where("id = ?", id).
		Update("is_fr", isFr)
	return affected(res)
}

func (r *PostgresFriendRepository) SetBlocked(ctx context.Context, id uint, blocked bool) error {
	res := r.db.WithContext(ctx).
		Model(&contact.Friend{}).
		Where("id = ?", id).
		Update("is_blocked", blocked)
	return affected(res)
}
