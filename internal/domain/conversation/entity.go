package conversation

import (
	"time"

	"zalo-hub/internal/domain/account"
	"zalo-hub/internal/domain/contact"
)

// Conversation is the 1:1 thread between an Account and a Friend.
// UserZaloID is the account's own id in this thread and UserKey the friend's
// session scoped key.
type Conversation struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	AccountID     uint             `gorm:"not null;uniqueIndex:idx_conversations_account_friend,priority:1;index:idx_conversations_pair,priority:1" json:"account_id"`
	Account       *account.Account `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
	FriendID      uint             `gorm:"not null;uniqueIndex:idx_conversations_account_friend,priority:2" json:"friend_id"`
	Friend        *contact.Friend  `gorm:"foreignKey:FriendID;constraint:OnDelete:CASCADE" json:"friend,omitempty"`
	UserZaloID    string           `gorm:"size:64;not null;index:idx_conversations_pair,priority:2" json:"user_zalo_id"`
	UserKey       string           `gorm:"size:64;not null;index:idx_conversations_pair,priority:3" json:"user_key"`
	IsFr          int              `gorm:"not null;default:0" json:"is_fr"`
	IsPinned      bool             `gorm:"not null;default:false" json:"is_pinned"`
	LastMessageAt *time.Time       `json:"last_message_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Room is the socket room name for a thread.
func Room(threadID string) string {
	return "conversation_" + threadID
}
