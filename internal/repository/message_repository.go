package repository

import (
	"context"

	"zalo-hub/internal/domain/message"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	return translate(r.db.WithContext(ctx).Create(m).Error)
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uint) (message.Message, error) {
	var m message.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return message.Message{}, translate(err)
	}
	return m, nil
}

// Update writes every column of m, zero values included.
func (r *PostgresMessageRepository) Update(ctx context.Context, m message.Message) error {
	res := r.db.WithContext(ctx).
		Model(&message.Message{ID: m.ID}).
		Select("*").
		Omit("ID", "CreatedAt", "Conversation").
		Updates(&m)
	return affected(res)
}

func (r *PostgresMessageRepository) Delete(ctx context.Context, id uint) error {
	return affected(r.db.WithContext(ctx).Delete(&message.Message{}, "id = ?", id))
}

func (r *PostgresMessageRepository) FindByNaturalKey(ctx context.Context, msgID string, isSelf bool) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Where("msg_id = ? AND is_self = ?", msgID, isSelf).
		First(&m).Error
	if err != nil {
		return message.Message{}, translate(err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) FindByAccountMsgID(ctx context.Context, accountID uint, msgID string) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND msg_id = ?", accountID, msgID).
		Order("id ASC").
		First(&m).Error
	if err != nil {
		return message.Message{}, translate(err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) FindQuoted(ctx context.Context, accountID uint, globalMsgID, cliMsgID, uidFrom, idTo string) (message.Message, error) {
	var m message.Message
	q := r.db.WithContext(ctx).
		Where("account_id = ? AND msg_id = ? AND uid_from = ? AND id_to = ?", accountID, globalMsgID, uidFrom, idTo)
	if cliMsgID != "" {
		q = q.Where("cli_msg_id = ?", cliMsgID)
	}
	if err := q.Order("id ASC").First(&m).Error; err != nil {
		return message.Message{}, translate(err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) FindForUndo(ctx context.Context, accountID uint, globalMsgID, cliMsgID, uidFrom, idTo string) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND msg_id = ? AND cli_msg_id = ? AND uid_from = ? AND id_to = ?",
			accountID, globalMsgID, cliMsgID, uidFrom, idTo).
		First(&m).Error
	if err != nil {
		return message.Message{}, translate(err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) MarkUndo(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ?", id).
		Update("undo", true)
	return affected(res)
}

func (r *PostgresMessageRepository) ConversationIDsByMsgIDs(ctx context.Context, accountID uint, msgIDs []string) ([]uint, error) {
	if len(msgIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("account_id = ? AND msg_id IN ?", accountID, msgIDs).
		Distinct().
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresMessageRepository) MarkConversationsRead(ctx context.Context, conversationIDs []uint) (int64, error) {
	if len(conversationIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("conversation_id IN ? AND is_read = ?", conversationIDs, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *PostgresMessageRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ?", id).
		Update("status", status)
	return affected(res)
}

func (r *PostgresMessageRepository) SetExpired(ctx context.Context, ids []uint, expired bool) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id IN ?", ids).
		Update("is_expired", expired).Error
}

type PostgresReactionRepository struct {
	db *gorm.DB
}

func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &PostgresReactionRepository{db: db}
}

// Upsert inserts the reaction or overwrites the existing row for the same key.
func (r *PostgresReactionRepository) Upsert(ctx context.Context, reaction *message.Reaction) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "account_id"}, {Name: "g_msg_id"}, {Name: "c_msg_id"}, {Name: "thread_id"}, {Name: "uid_from"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"message_id", "d_name", "r_icon", "r_type", "source", "is_self", "ts", "updated_at",
			}),
		}).
		Create(reaction).Error
	return translate(err)
}

func (r *PostgresReactionRepository) DeleteByKey(ctx context.Context, key message.ReactionKey) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("account_id = ? AND g_msg_id = ? AND c_msg_id = ? AND thread_id = ? AND uid_from = ?",
			key.AccountID, key.GMsgID, key.CMsgID, key.ThreadID, key.UIDFrom).
		Delete(&message.Reaction{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *PostgresReactionRepository) ListByKey(ctx context.Context, key message.ReactionKey) ([]message.Reaction, error) {
	var reactions []message.Reaction
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND g_msg_id = ? AND c_msg_id = ? AND thread_id = ? AND uid_from = ?",
			key.AccountID, key.GMsgID, key.CMsgID, key.ThreadID, key.UIDFrom).
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	return reactions, nil
}
