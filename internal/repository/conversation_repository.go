package repository

import (
	"context"
	"time"

	"zalo-hub/internal/domain/contact"
	"zalo-hub/internal/domain/conversation"

	"gorm.io/gorm"
)

type PostgresConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

func (r *PostgresConversationRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	return translate(r.db.WithContext(ctx).Create(c).Error)
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id uint) (conversation.Conversation, error) {
	var c conversation.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return conversation.Conversation{}, translate(err)
	}
	return c, nil
}

func (r *PostgresConversationRepository) GetByFriend(ctx context.Context, accountID, friendID uint) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND friend_id = ?", accountID, friendID).
		First(&c).Error
	if err != nil {
		return conversation.Conversation{}, translate(err)
	}
	return c, nil
}

func (r *PostgresConversationRepository) FindByPair(ctx context.Context, accountID uint, userZaloID, userKey string) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND user_zalo_id = ? AND user_key = ?", accountID, userZaloID, userKey).
		Order("id ASC").
		First(&c).Error
	if err != nil {
		return conversation.Conversation{}, translate(err)
	}
	return c, nil
}

func (r *PostgresConversationRepository) CreateWithFriend(ctx context.Context, f *contact.Friend, c *conversation.Conversation) error {
	return WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Create(f).Error; err != nil {
			return translate(err)
		}
		c.FriendID = f.ID
		if err := tx.Create(c).Error; err != nil {
			return translate(err)
		}
		return nil
	})
}

func (r *PostgresConversationRepository) UpdateFriendship(ctx context.Context, id uint, isFr int) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", id).
		Update("is_fr", isFr)
	return affected(res)
}

func (r *PostgresConversationRepository) TouchLastMessage(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", id, at).
		Update("last_message_at", at)
	return translate(res.Error)
}
