package events

import (
	"encoding/json"
	"time"

	"zalo-hub/internal/domain/message"
)

// Envelope is the frame written to browser sockets in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type NewMessagePayload struct {
	AccountID      uint            `json:"account_id"`
	ConversationID uint            `json:"conversation_id"`
	ThreadID       string          `json:"thread_id"`
	Created        bool            `json:"created"`
	Message        message.Message `json:"message"`
}

type ReactionPayload struct {
	AccountID uint               `json:"account_id"`
	ThreadID  string             `json:"thread_id"`
	UIDFrom   string             `json:"uid_from"`
	RIcon     string             `json:"r_icon"`
	RType     int                `json:"r_type"`
	Removed   bool               `json:"removed"`
	Reactions []message.Reaction `json:"reactions"`
}

type UndoPayload struct {
	AccountID      uint   `json:"account_id"`
	ConversationID uint   `json:"conversation_id"`
	MessageID      uint   `json:"message_id"`
	MsgID          string `json:"msg_id"`
	CliMsgID       string `json:"cli_msg_id"`
	ThreadID       string `json:"thread_id"`
}

type FriendEventPayload struct {
	AccountID      uint   `json:"account_id"`
	ConversationID uint   `json:"conversation_id"`
	FriendID       uint   `json:"friend_id"`
	ThreadID       string `json:"thread_id"`
	Type           string `json:"type"`
	IsFr           int    `json:"is_fr"`
	IsBlocked      bool   `json:"is_blocked"`
}

type MessagesSeenPayload struct {
	AccountID       uint   `json:"account_id"`
	ThreadID        string `json:"thread_id"`
	ConversationIDs []uint `json:"conversation_ids"`
	Updated         int64  `json:"updated"`
}

type MessagesReadPayload struct {
	AccountID      uint  `json:"account_id"`
	ConversationID uint  `json:"conversation_id"`
	Updated        int64 `json:"updated"`
}

type AccountStatusPayload struct {
	AccountID   uint      `json:"account_id"`
	UserID      string    `json:"user_id,omitempty"`
	Status      string    `json:"status"`
	SocketCount int       `json:"socket_count"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

type TypingPayload struct {
	AccountID uint   `json:"account_id"`
	ThreadID  string `json:"thread_id"`
	UserID    string `json:"user_id"`
	IsTyping  bool   `json:"is_typing"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
