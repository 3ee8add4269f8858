package repository

import (
	"context"
	"time"

	"zalo-hub/internal/domain/account"
	"zalo-hub/internal/domain/contact"
	"zalo-hub/internal/domain/conversation"
	"zalo-hub/internal/domain/message"
	"zalo-hub/internal/domain/sticker"
	"zalo-hub/internal/domain/upload"
)

type AccountRepository interface {
	Create(ctx context.Context, a *account.Account) error
	GetByID(ctx context.Context, id uint) (account.Account, error)
	// ListEligible returns accounts whose cookie, imei and user agent are all set.
	ListEligible(ctx context.Context) ([]account.Account, error)
	SetConnectivity(ctx context.Context, id uint, connected bool) error
	UpdateZaloUserID(ctx context.Context, id uint, zaloUserID string) error
}

type FriendRepository interface {
	Create(ctx context.Context, f *contact.Friend) error
	GetByID(ctx context.Context, id uint) (contact.Friend, error)
	GetByUserKey(ctx context.Context, accountID uint, userKey string) (contact.Friend, error)
	UpdateFriendship(ctx context.Context, id uint, isFr int) error
	SetBlocked(ctx context.Context, id uint, blocked bool) error
}

type ConversationRepository interface {
	Create(ctx context.Context, c *conversation.Conversation) error
	GetByID(ctx context.Context, id uint) (conversation.Conversation, error)
	GetByFriend(ctx context.Context, accountID, friendID uint) (conversation.Conversation, error)
	// FindByPair looks a thread up by the account's own id and the friend's key.
	FindByPair(ctx context.Context, accountID uint, userZaloID, userKey string) (conversation.Conversation, error)
	// CreateWithFriend inserts a friend and its conversation atomically.
	CreateWithFriend(ctx context.Context, f *contact.Friend, c *conversation.Conversation) error
	UpdateFriendship(ctx context.Context, id uint, isFr int) error
	TouchLastMessage(ctx context.Context, id uint, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uint) (message.Message, error)
	Update(ctx context.Context, m message.Message) error
	Delete(ctx context.Context, id uint) error

	FindByNaturalKey(ctx context.Context, msgID string, isSelf bool) (message.Message, error)
	FindByAccountMsgID(ctx context.Context, accountID uint, msgID string) (message.Message, error)
	// FindQuoted matches a quoted message with a fixed sender/receiver order.
	FindQuoted(ctx context.Context, accountID uint, globalMsgID, cliMsgID, uidFrom, idTo string) (message.Message, error)
	FindForUndo(ctx context.Context, accountID uint, globalMsgID, cliMsgID, uidFrom, idTo string) (message.Message, error)
	MarkUndo(ctx context.Context, id uint) error

	ConversationIDsByMsgIDs(ctx context.Context, accountID uint, msgIDs []string) ([]uint, error)
	MarkConversationsRead(ctx context.Context, conversationIDs []uint) (int64, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
	SetExpired(ctx context.Context, ids []uint, expired bool) error
}

type ReactionRepository interface {
	Upsert(ctx context.Context, r *message.Reaction) error
	DeleteByKey(ctx context.Context, key message.ReactionKey) (int64, error)
	ListByKey(ctx context.Context, key message.ReactionKey) ([]message.Reaction, error)
}

type StickerRepository interface {
	Get(ctx context.Context, stickerID, cateID int64, stickerType int) (sticker.Sticker, error)
	// CreateIfAbsent inserts s unless the identity triple already exists.
	CreateIfAbsent(ctx context.Context, s *sticker.Sticker) (bool, error)
}

type FailedFileRepository interface {
	Create(ctx context.Context, f *upload.FailedFileStorage) error
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]upload.FailedFileStorage, error)
	DeleteByIDs(ctx context.Context, ids []uint) error
	ParkedMessageIDs(ctx context.Context, messageIDs, excludeRowIDs []uint) ([]uint, error)
}
