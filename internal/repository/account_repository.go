package repository

import (
	"context"
	"time"

	"zalo-hub/internal/domain/account"

	"gorm.io/gorm"
)

type PostgresAccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &PostgresAccountRepository{db: db}
}

func (r *PostgresAccountRepository) Create(ctx context.Context, a *account.Account) error {
	return translate(r.db.WithContext(ctx).Create(a).Error)
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id uint) (account.Account, error) {
	var a account.Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return account.Account{}, translate(err)
	}
	return a, nil
}

func (r *PostgresAccountRepository) ListEligible(ctx context.Context) ([]account.Account, error) {
	var accounts []account.Account
	err := r.db.WithContext(ctx).
		Where("cookie IS NOT NULL AND TRIM(cookie) <> ''").
		Where("imei IS NOT NULL AND TRIM(imei) <> ''").
		Where("user_agent IS NOT NULL AND TRIM(user_agent) <> ''").
		Order("id ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *PostgresAccountRepository) SetConnectivity(ctx context.Context, id uint, connected bool) error {
	updates := map[string]interface{}{"is_connected": connected}
	if connected {
		updates["last_connected_at"] = time.Now()
	}
	res := r.db.WithContext(ctx).
		Model(&account.Account{}).
		Where("id = ?", id).
		Updates(updates)
	return affected(res)
}

func (r *PostgresAccountRepository) UpdateZaloUserID(ctx context.Context, id uint, zaloUserID string) error {
	res := r.db.WithContext(ctx).
		Model(&account.Account{}).
		Where("id = ?", id).
		Update("zalo_user_id", zaloUserID)
	return affected(res)
}
