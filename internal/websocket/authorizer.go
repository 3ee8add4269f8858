package websocket

import (
	"strconv"
	"strings"
)

// Room name prefixes a socket may join.
const (
	RoomPrefixConversation = "conversation_"
	RoomPrefixAccount      = "account_"
	RoomPrefixUser         = "user_"
)

// RoomAuthorizer decides which rooms a socket may join.
type RoomAuthorizer struct{}

func NewRoomAuthorizer() *RoomAuthorizer {
	return &RoomAuthorizer{}
}

// CanJoin allows conversation rooms, the rooms of accounts the socket
// registered and the socket's own user room.
func (a *RoomAuthorizer) CanJoin(c *Client, room string) bool {
	switch {
	case strings.HasPrefix(room, RoomPrefixConversation):
		return len(room) > len(RoomPrefixConversation)
	case strings.HasPrefix(room, RoomPrefixAccount):
		id, err := strconv.ParseUint(strings.TrimPrefix(room, RoomPrefixAccount), 10, 64)
		if err != nil {
			return false
		}
		return c.Observes(uint(id))
	case strings.HasPrefix(room, RoomPrefixUser):
		return c.UserID != "" && strings.TrimPrefix(room, RoomPrefixUser) == c.UserID
	}
	return false
}
