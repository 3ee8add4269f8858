package contact

import (
	"time"

	"zalo-hub/internal/domain/account"
)

// Friendship flag values stored on Friend.IsFr and Conversation.IsFr.
const (
	FriendshipStranger  = 0
	FriendshipFriend    = 1
	FriendshipRequested = 2
	FriendshipCancelled = 3
)

// Friend is a contact known to one Account, unique per (account_id, user_key).
type Friend struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	AccountID   uint             `gorm:"not null;uniqueIndex:idx_friends_account_user_key,priority:1" json:"account_id"`
	Account     *account.Account `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
	UserID      string           `gorm:"size:64;index" json:"user_id"`
	UserKey     string           `gorm:"size:64;not null;uniqueIndex:idx_friends_account_user_key,priority:2" json:"user_key"`
	DisplayName string           `gorm:"size:255" json:"display_name"`
	ZaloName    string           `gorm:"size:255" json:"zalo_name"`
	Avatar      string           `gorm:"type:text" json:"avatar"`
	Gender      int              `json:"gender"`
	IsFr        int              `gorm:"not null;default:0" json:"is_fr"`
	IsBlocked   bool             `gorm:"not null;default:false" json:"is_blocked"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (Friend) TableName() string {
	return "friends"
}
