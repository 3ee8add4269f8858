package zalo

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
)

// ThreadType distinguishes direct threads from groups.
type ThreadType int

const (
	ThreadTypeUser  ThreadType = 0
	ThreadTypeGroup ThreadType = 1
)

// ID accepts both JSON strings and numbers; the protocol mixes the two for
// message and user ids.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Int64 parses the id, returning 0 when it is not numeric.
func (id ID) Int64() int64 {
	n, _ := strconv.ParseInt(string(id), 10, 64)
	return n
}

// Credentials is the validated login triplet for one account.
type Credentials struct {
	Cookie    json.RawMessage `json:"cookie"`
	IMEI      string          `json:"imei"`
	UserAgent string          `json:"userAgent"`
}

// Attachment is a file sent inline with an outgoing message.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Outgoing is the payload of Session.SendMessage.
type Outgoing struct {
	Text        string       `json:"msg"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Quote       *Quote       `json:"quote,omitempty"`
}

type SendResult struct {
	MsgID            ID   `json:"msgId"`
	AttachmentMsgIDs []ID `json:"attachmentMsgIds,omitempty"`
}

// PrimaryMsgID is the id of the text part, or of the first attachment.
func (r SendResult) PrimaryMsgID() string {
	if r.MsgID != "" {
		return r.MsgID.String()
	}
	if len(r.AttachmentMsgIDs) > 0 {
		return r.AttachmentMsgIDs[0].String()
	}
	return ""
}

type UserProfile struct {
	UserID      ID     `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	ZaloName    string `json:"zaloName"`
	Avatar      string `json:"avatar"`
	Gender      int    `json:"gender"`
	IsFr        int    `json:"isFr"`
	IsBlocked   int    `json:"isBlocked"`
}

type StickerDetail struct {
	ID               int64  `json:"id"`
	CateID           int64  `json:"cateId"`
	Type             int    `json:"type"`
	Text             string `json:"text"`
	StickerURL       string `json:"stickerUrl"`
	StickerSpriteURL string `json:"stickerSpriteUrl"`
	StickerWebpURL   string `json:"stickerWebpUrl"`
	TotalFrames      int    `json:"totalFrames"`
	Duration         int    `json:"duration"`
}

// API is the call surface of a logged-in session.
type API interface {
	OwnID() string
	SendMessage(ctx context.Context, msg Outgoing, threadID string, threadType ThreadType) (SendResult, error)
	GetUserInfo(ctx context.Context, userID string) (UserProfile, error)
	GetStickersDetail(ctx context.Context, stickerID int64) ([]StickerDetail, error)
}

// Listener delivers realtime events. Events is closed once the listener stops.
type Listener interface {
	Start(ctx context.Context) error
	Events() <-chan Event
	Stop()
}

type Session interface {
	API
	Listener() Listener
}

// Client logs accounts in.
type Client interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
}
