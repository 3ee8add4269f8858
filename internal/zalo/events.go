package zalo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event is one realtime notification from a session listener.
type Event interface {
	Name() string
}

const (
	EventMessage    = "message"
	EventReaction   = "reaction"
	EventUndo       = "undo"
	EventFriend     = "friend_event"
	EventSeen       = "seen_messages"
	EventError      = "error"
	EventDisconnect = "disconnect"
)

// Quote references a previously sent message.
type Quote struct {
	OwnerID     ID              `json:"ownerId"`
	GlobalMsgID ID              `json:"globalMsgId"`
	CliMsgID    ID              `json:"cliMsgId"`
	CliMsgType  int             `json:"cliMsgType"`
	Ts          int64           `json:"ts"`
	Msg         string          `json:"msg"`
	Attach      json.RawMessage `json:"attach,omitempty"`
	FromD       string          `json:"fromD"`
	TTL         int64           `json:"ttl"`
}

type MessageData struct {
	ActionID    ID              `json:"actionId"`
	MsgID       ID              `json:"msgId"`
	CliMsgID    ID              `json:"cliMsgId"`
	MsgType     string          `json:"msgType"`
	UIDFrom     ID              `json:"uidFrom"`
	IDTo        ID              `json:"idTo"`
	DName       string          `json:"dName"`
	Ts          ID              `json:"ts"`
	Status      int             `json:"status"`
	Content     json.RawMessage `json:"content"`
	PropertyExt json.RawMessage `json:"propertyExt,omitempty"`
	ParamsExt   json.RawMessage `json:"paramsExt,omitempty"`
	Quote       *Quote          `json:"quote,omitempty"`
	TTL         int64           `json:"ttl"`
}

type MessageEvent struct {
	Type     ThreadType  `json:"type"`
	ThreadID ID          `json:"threadId"`
	IsSelf   bool        `json:"isSelf"`
	Data     MessageData `json:"data"`
}

func (*MessageEvent) Name() string { return EventMessage }

type ReactionTarget struct {
	GMsgID  ID  `json:"gMsgID"`
	CMsgID  ID  `json:"cMsgID"`
	MsgType int `json:"msgType"`
}

type ReactionContent struct {
	RMsg   []ReactionTarget `json:"rMsg"`
	RIcon  string           `json:"rIcon"`
	RType  int              `json:"rType"`
	Source int              `json:"source"`
}

type ReactionData struct {
	MsgID    ID              `json:"msgId"`
	CliMsgID ID              `json:"cliMsgId"`
	UIDFrom  ID              `json:"uidFrom"`
	IDTo     ID              `json:"idTo"`
	DName    string          `json:"dName"`
	Ts       ID              `json:"ts"`
	Content  ReactionContent `json:"content"`
}

type ReactionEvent struct {
	ThreadID ID           `json:"threadId"`
	IsSelf   bool         `json:"isSelf"`
	IsGroup  bool         `json:"isGroup"`
	Data     ReactionData `json:"data"`
}

func (*ReactionEvent) Name() string { return EventReaction }

// Removal reports a reaction withdrawal: empty icon or rType -1.
func (e *ReactionEvent) Removal() bool {
	return strings.TrimSpace(e.Data.Content.RIcon) == "" || e.Data.Content.RType == -1
}

type UndoContent struct {
	GlobalMsgID ID  `json:"globalMsgId"`
	CliMsgID    ID  `json:"cliMsgId"`
	DeleteMsg   int `json:"deleteMsg"`
}

type UndoData struct {
	MsgID   ID          `json:"msgId"`
	UIDFrom ID          `json:"uidFrom"`
	IDTo    ID          `json:"idTo"`
	DName   string      `json:"dName"`
	Ts      ID          `json:"ts"`
	Content UndoContent `json:"content"`
}

type UndoEvent struct {
	ThreadID ID       `json:"threadId"`
	IsSelf   bool     `json:"isSelf"`
	IsGroup  bool     `json:"isGroup"`
	Data     UndoData `json:"data"`
}

func (*UndoEvent) Name() string { return EventUndo }

type FriendEventType string

const (
	FriendEventAdd           FriendEventType = "add"
	FriendEventRemove        FriendEventType = "remove"
	FriendEventRequest       FriendEventType = "request"
	FriendEventUndoRequest   FriendEventType = "undo_request"
	FriendEventRejectRequest FriendEventType = "reject_request"
	FriendEventBlock         FriendEventType = "block"
	FriendEventUnblock       FriendEventType = "unblock"
)

type FriendEvent struct {
	Type     FriendEventType `json:"type"`
	ThreadID ID              `json:"threadId"`
	IsSelf   bool            `json:"isSelf"`
	FromUID  ID              `json:"fromUid"`
	ToUID    ID              `json:"toUid"`
	Message  string          `json:"message,omitempty"`
}

func (*FriendEvent) Name() string { return EventFriend }

type SeenEvent struct {
	ThreadID ID   `json:"threadId"`
	IsGroup  bool `json:"isGroup"`
	MsgIDs   []ID `json:"msgIds"`
}

func (*SeenEvent) Name() string { return EventSeen }

// ErrorEvent is a listener level failure; the session is unusable after it.
type ErrorEvent struct {
	Err error
}

func (*ErrorEvent) Name() string { return EventError }

type DisconnectEvent struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

func (*DisconnectEvent) Name() string { return EventDisconnect }

// DecodeEvent turns a named event payload into its typed form.
func DecodeEvent(name string, data json.RawMessage) (Event, error) {
	var evt Event
	switch name {
	case EventMessage:
		evt = &MessageEvent{}
	case EventReaction:
		evt = &ReactionEvent{}
	case EventUndo:
		evt = &UndoEvent{}
	case EventFriend:
		evt = &FriendEvent{}
	case EventSeen:
		evt = &SeenEvent{}
	case EventDisconnect:
		evt = &DisconnectEvent{}
	case EventError:
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &body)
		if body.Message == "" {
			body.Message = "listener error"
		}
		return &ErrorEvent{Err: fmt.Errorf("%s", body.Message)}, nil
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, evt); err != nil {
			return nil, fmt.Errorf("decode %s event: %w", name, err)
		}
	}
	return evt, nil
}
