package events

// Server to client events
const (
	EventAccountConnected    = "account_connected"
	EventAccountDisconnected = "account_disconnected"
	EventAccountError        = "account_error"
	EventAccountStatusUpdate = "account_status_update"
	EventAccountStatus       = "account_status"
	EventConnectionStats     = "connection_stats"
)

// Chat events pushed after persistence
const (
	EventNewMessage     = "new_message"
	EventNewReaction    = "new_reaction"
	EventNewUndo        = "new_undo"
	EventNewFriendEvent = "new_friend_event"
	EventMessagesSeen   = "messages_seen"
	EventMessagesRead   = "messages_read"
	EventTyping         = "typing"
	EventPong           = "pong"
	EventError          = "error"
)

// Client to server events
const (
	ClientJoinRoom                = "join_room"
	ClientLeaveRoom               = "leave_room"
	ClientTyping                  = "typing"
	ClientReadMessages            = "read_messages"
	ClientGetConnectionStats      = "get_connection_stats"
	ClientCheckAccountStatus      = "check_account_status"
	ClientSubscribeConversation   = "subscribe_conversation"
	ClientUnsubscribeConversation = "unsubscribe_conversation"
	ClientPing                    = "ping"
)

// Account connectivity as seen by the socket layer
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)
