package httpdto

import (
	"time"

	"zalo-hub/internal/domain/message"
)

type SendMessageRequest struct {
	AccountID uint   `json:"accountId" form:"accountId" binding:"required"`
	ThreadID  string `json:"threadId" form:"threadId" binding:"required"`
	Message   string `json:"message" form:"message"`
}

type SendMessageResponse struct {
	Message message.Message `json:"message"`
}

// SendFailureResponse is returned with a failed send that parked its
// attachments.
type SendFailureResponse struct {
	MessageID   uint `json:"message_id"`
	SavedFiles  int  `json:"saved_files"`
	FailedFiles int  `json:"failed_files"`
}

type SessionResponse struct {
	AccountID   uint      `json:"account_id"`
	UserID      string    `json:"user_id"`
	OwnID       string    `json:"own_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

type SessionActionResponse struct {
	AccountID uint   `json:"account_id"`
	Status    string `json:"status"`
}

type SendQuotaResponse struct {
	AccountID      uint `json:"account_id"`
	Limit          int  `json:"limit"`
	Remaining      int  `json:"remaining"`
	ResetInSeconds int  `json:"reset_in_seconds"`
}
