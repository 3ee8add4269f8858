package message

import (
	"time"

	"zalo-hub/internal/domain/conversation"

	"gorm.io/datatypes"
)

const (
	StatusSending = "sending"
	StatusSent    = "sent"
	StatusFailed  = "failed"

	OriginBackend = "backend"
	OriginSocket  = "socket"
)

// Message is one protocol message. (MsgID, IsSelf) is the natural key; rows
// written by the send path carry a "pending-" placeholder until confirmed.
type Message struct {
	ID             uint                       `gorm:"primaryKey" json:"id"`
	ConversationID uint                       `gorm:"not null;index" json:"conversation_id"`
	Conversation   *conversation.Conversation `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
	AccountID      uint                       `gorm:"not null;index" json:"account_id"`
	MsgID          string                     `gorm:"size:64;not null;uniqueIndex:idx_messages_natural_key,priority:1" json:"msg_id"`
	IsSelf         bool                       `gorm:"not null;uniqueIndex:idx_messages_natural_key,priority:2" json:"is_self"`
	CliMsgID       string                     `gorm:"size:64;index" json:"cli_msg_id"`
	UIDFrom        string                     `gorm:"size:64" json:"uid_from"`
	IDTo           string                     `gorm:"size:64" json:"id_to"`
	DName          string                     `gorm:"size:255" json:"d_name"`
	Content        string                     `gorm:"type:text" json:"content"`
	MsgType        string                     `gorm:"size:64" json:"msg_type"`
	Status         string                     `gorm:"size:16;not null;default:'sent'" json:"status"`
	Origin         string                     `gorm:"size:16;not null;default:'socket'" json:"origin"`
	IsRead         bool                       `gorm:"not null;default:false;index" json:"is_read"`
	Undo           bool                       `gorm:"not null;default:false" json:"undo"`
	QuoteMessageID *uint                      `json:"quote_message_id,omitempty"`
	Quote          datatypes.JSON             `json:"quote,omitempty"`
	PropertyExt    datatypes.JSON             `json:"property_ext,omitempty"`
	Params         datatypes.JSON             `json:"params,omitempty"`
	StickerID      *uint                      `json:"sticker_id,omitempty"`
	FileURL        string                     `gorm:"type:text" json:"file_url,omitempty"`
	FileName       string                     `gorm:"size:512" json:"file_name,omitempty"`
	FileSize       int64                      `json:"file_size,omitempty"`
	IsExpired      bool                       `gorm:"not null;default:false" json:"is_expired"`
	Ts             int64                      `json:"ts"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// Reaction has set semantics per (account, gMsgID, cMsgID, thread, sender).
type Reaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"not null;uniqueIndex:idx_reactions_key,priority:1" json:"account_id"`
	MessageID *uint     `gorm:"index" json:"message_id,omitempty"`
	GMsgID    string    `gorm:"size:64;not null;uniqueIndex:idx_reactions_key,priority:2" json:"g_msg_id"`
	CMsgID    string    `gorm:"size:64;not null;uniqueIndex:idx_reactions_key,priority:3" json:"c_msg_id"`
	ThreadID  string    `gorm:"size:64;not null;uniqueIndex:idx_reactions_key,priority:4" json:"thread_id"`
	UIDFrom   string    `gorm:"size:64;not null;uniqueIndex:idx_reactions_key,priority:5" json:"uid_from"`
	DName     string    `gorm:"size:255" json:"d_name"`
	RIcon     string    `gorm:"size:64" json:"r_icon"`
	RType     int       `json:"r_type"`
	Source    int       `json:"source"`
	IsSelf    bool      `json:"is_self"`
	Ts        int64     `json:"ts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReactionKey identifies one sender's reaction on one message.
type ReactionKey struct {
	AccountID uint
	GMsgID    string
	CMsgID    string
	ThreadID  string
	UIDFrom   string
}

func (r Reaction) Key() ReactionKey {
	return ReactionKey{
		AccountID: r.AccountID,
		GMsgID:    r.GMsgID,
		CMsgID:    r.CMsgID,
		ThreadID:  r.ThreadID,
		UIDFrom:   r.UIDFrom,
	}
}

func (Message) TableName() string {
	return "messages"
}

func (Reaction) TableName() string {
	return "reactions"
}
