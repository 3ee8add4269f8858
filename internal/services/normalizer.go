package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"zalo-hub/internal/zalo"

	"gorm.io/datatypes"
)

// Message type discriminators reported by the protocol.
const (
	MsgTypeText       = "webchat"
	MsgTypeSticker    = "chat.sticker"
	MsgTypePhoto      = "chat.photo"
	MsgTypeFile       = "share.file"
	MsgTypeVideo      = "chat.video.msg"
	MsgTypeVoice      = "chat.voice"
	MsgTypeLink       = "chat.recommended"
	MsgTypeWebContent = "chat.webcontent"

	bankQRActionPrefix = "zinstant.bank"
)

var (
	ErrNotDirectThread = errors.New("not a direct thread")
	ErrBankQRNoise     = errors.New("bank qr content")
)

// Pair is the (userZaloId, userKey) lookup of a direct thread.
type Pair struct {
	UserZaloID string
	UserKey    string
}

// PairFor applies the asymmetry rule: a self message is sent from the
// account's own id to the friend's key, an inbound one the other way round.
func PairFor(isSelf bool, uidFrom, idTo string) Pair {
	if isSelf {
		return Pair{UserZaloID: uidFrom, UserKey: idTo}
	}
	return Pair{UserZaloID: idTo, UserKey: uidFrom}
}

type StickerRef struct {
	ID     int64
	CateID int64
	Type   int
}

type FileMeta struct {
	URL  string
	Name string
	Size int64
}

// NormalizedMessage is the flat form of a message event, ready for resolution
// and persistence.
type NormalizedMessage struct {
	AccountID   uint
	ThreadID    string
	IsSelf      bool
	MsgID       string
	CliMsgID    string
	UIDFrom     string
	IDTo        string
	DName       string
	MsgType     string
	Content     string
	Ts          int64
	Quote       *zalo.Quote
	QuoteJSON   datatypes.JSON
	PropertyExt datatypes.JSON
	Params      datatypes.JSON
	Sticker     *StickerRef
	File        *FileMeta
}

// Pair returns the conversation lookup for this message.
func (n NormalizedMessage) Pair() Pair {
	return PairFor(n.IsSelf, n.UIDFrom, n.IDTo)
}

// NormalizeMessage flattens a message event. Group threads and bank QR cards
// are rejected with ErrNotDirectThread and ErrBankQRNoise.
func NormalizeMessage(accountID uint, evt *zalo.MessageEvent) (NormalizedMessage, error) {
	if evt.Type != zalo.ThreadTypeUser {
		return NormalizedMessage{}, ErrNotDirectThread
	}
	d := evt.Data
	if isBankQR(d.MsgType, d.Content) {
		return NormalizedMessage{}, ErrBankQRNoise
	}

	n := NormalizedMessage{
		AccountID:   accountID,
		ThreadID:    evt.ThreadID.String(),
		IsSelf:      evt.IsSelf,
		MsgID:       d.MsgID.String(),
		CliMsgID:    d.CliMsgID.String(),
		UIDFrom:     d.UIDFrom.String(),
		IDTo:        d.IDTo.String(),
		DName:       d.DName,
		MsgType:     d.MsgType,
		Content:     ContentString(d.Content),
		Ts:          d.Ts.Int64(),
		PropertyExt: jsonColumn(d.PropertyExt),
		Params:      jsonColumn(d.ParamsExt),
	}
	if d.Quote != nil {
		q := *d.Quote
		n.Quote = &q
		if raw, err := json.Marshal(q); err == nil {
			n.QuoteJSON = datatypes.JSON(raw)
		}
	}

	switch d.MsgType {
	case MsgTypeSticker:
		n.Sticker = stickerRef(d.Content)
	case MsgTypePhoto, MsgTypeFile, MsgTypeVideo, MsgTypeVoice, MsgTypeLink:
		n.File = fileMeta(d.Content)
	}
	return n, nil
}

// ContentString keeps string content as-is and serializes anything else.
func ContentString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func jsonColumn(raw json.RawMessage) datatypes.JSON {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if !json.Valid(raw) {
		return nil
	}
	return datatypes.JSON(raw)
}

type richContent struct {
	Action string          `json:"action"`
	Title  string          `json:"title"`
	Href   string          `json:"href"`
	Params json.RawMessage `json:"params"`
}

type stickerContent struct {
	ID    zalo.ID `json:"id"`
	CatID zalo.ID `json:"catId"`
	Type  zalo.ID `json:"type"`
}

func isBankQR(msgType string, content json.RawMessage) bool {
	if msgType != MsgTypeWebContent {
		return false
	}
	var c richContent
	if err := json.Unmarshal(content, &c); err != nil {
		return false
	}
	return strings.HasPrefix(c.Action, bankQRActionPrefix)
}

func stickerRef(content json.RawMessage) *StickerRef {
	var c stickerContent
	if err := json.Unmarshal(content, &c); err != nil {
		return nil
	}
	id := c.ID.Int64()
	if id == 0 {
		return nil
	}
	return &StickerRef{ID: id, CateID: c.CatID.Int64(), Type: int(c.Type.Int64())}
}

func fileMeta(content json.RawMessage) *FileMeta {
	var c richContent
	if err := json.Unmarshal(content, &c); err != nil {
		return nil
	}
	if c.Href == "" && c.Title == "" {
		return nil
	}
	return &FileMeta{URL: c.Href, Name: c.Title, Size: fileSize(c.Params)}
}

// fileSize reads params.fileSize; params arrive either as an object or as a
// JSON encoded string.
func fileSize(params json.RawMessage) int64 {
	params = bytes.TrimSpace(params)
	if len(params) == 0 {
		return 0
	}
	if params[0] == '"' {
		var s string
		if err := json.Unmarshal(params, &s); err != nil {
			return 0
		}
		params = json.RawMessage(s)
	}
	var p struct {
		FileSize zalo.ID `json:"fileSize"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(p.FileSize.String(), 10, 64)
	return n
}
