package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"zalo-hub/internal/domain/conversation"
	"zalo-hub/internal/events"
	zalohub_errors "zalo-hub/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 256
	readTimeout    = 5 * time.Second
)

// Rate limits per minute
type RateLimits struct {
	MaxTypingEvents  int
	MaxReadReceipts  int
	MaxRoomChanges   int
	MaxStatusQueries int
	MaxPingMessages  int
}

var DefaultRateLimits = RateLimits{
	MaxTypingEvents:  60,
	MaxReadReceipts:  120,
	MaxRoomChanges:   60,
	MaxStatusQueries: 60,
	MaxPingMessages:  60,
}

// ClientRateLimiter tracks rate limits per client
type ClientRateLimiter struct {
	limits      RateLimits
	typing      int
	reads       int
	rooms       int
	statusQuery int
	pings       int
	lastRefill  time.Time
	now         func() time.Time
	mu          sync.Mutex
}

func NewClientRateLimiter(limits RateLimits) *ClientRateLimiter {
	rl := &ClientRateLimiter{limits: limits, now: time.Now}
	rl.refillTokens()
	rl.lastRefill = rl.now()
	return rl
}

func (rl *ClientRateLimiter) Allow(event string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.refillTokens()
		rl.lastRefill = now
	}

	var bucket *int
	switch event {
	case events.ClientTyping:
		bucket = &rl.typing
	case events.ClientReadMessages:
		bucket = &rl.reads
	case events.ClientJoinRoom, events.ClientLeaveRoom,
		events.ClientSubscribeConversation, events.ClientUnsubscribeConversation:
		bucket = &rl.rooms
	case events.ClientGetConnectionStats, events.ClientCheckAccountStatus:
		bucket = &rl.statusQuery
	case events.ClientPing:
		bucket = &rl.pings
	default:
		return true
	}
	if *bucket > 0 {
		*bucket--
		return true
	}
	return false
}

func (rl *ClientRateLimiter) refillTokens() {
	rl.typing = rl.limits.MaxTypingEvents
	rl.reads = rl.limits.MaxReadReceipts
	rl.rooms = rl.limits.MaxRoomChanges
	rl.statusQuery = rl.limits.MaxStatusQueries
	rl.pings = rl.limits.MaxPingMessages
}

// Client is one browser socket. It observes a set of accounts and may join
// any number of rooms.
type Client struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	rateLimiter *ClientRateLimiter
	logger      *Logger

	mu       sync.RWMutex
	accounts map[uint]struct{}
	rooms    map[string]struct{}

	sendMu sync.RWMutex
	closed bool

	lastActivity atomic.Int64
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	now := time.Now()
	c := &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: now,
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		rateLimiter: NewClientRateLimiter(DefaultRateLimits),
		accounts:    make(map[uint]struct{}),
		rooms:       make(map[string]struct{}),
	}
	if hub != nil {
		c.logger = hub.logger
	} else {
		c.logger = NewLogger(nil)
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

func (c *Client) observe(accountID uint) {
	c.mu.Lock()
	c.accounts[accountID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) forget(accountID uint) {
	c.mu.Lock()
	delete(c.accounts, accountID)
	c.mu.Unlock()
}

// Observes reports whether the socket registered the account.
func (c *Client) Observes(accountID uint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.accounts[accountID]
	return ok
}

func (c *Client) Accounts() []uint {
	c.mu.RLock()
	out := make([]uint, 0, len(c.accounts))
	for id := range c.accounts {
		out = append(out, id)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Client) joinRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) leaveRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// SendMessage queues a frame without blocking. It reports false when the
// buffer is full or the socket is gone.
func (c *Client) SendMessage(msg []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("send buffer full", c.UserID, c.ID)
		return false
	}
}

func (c *Client) emit(event string, payload any) bool {
	data, err := events.Encode(event, payload)
	if err != nil {
		c.logger.Error("encode frame failed", c.UserID, c.ID, err, zap.String("frame", event))
		return false
	}
	return c.SendMessage(data)
}

func (c *Client) emitError(event, msg string) {
	c.emit(events.EventError, events.ErrorPayload{Event: event, Message: msg})
}

// closeSend ends the write pump.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.sendMu.Unlock()
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) idleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("unexpected close", c.UserID, c.ID, err)
			}
			break
		}
		c.touch()
		if err := c.handleMessage(bytes.TrimSpace(message)); err != nil {
			c.logger.Warn("handle message failed", c.UserID, c.ID, zap.Error(err))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			if c.idleFor() > pongWait*2 {
				c.logger.Info("client idle timeout", c.UserID, c.ID)
				return
			}
		}
	}
}

type roomRequest struct {
	Room string `json:"room"`
}

type threadRequest struct {
	ThreadID string `json:"threadId"`
}

type accountRequest struct {
	AccountID uint `json:"accountId"`
}

type typingRequest struct {
	AccountID uint   `json:"accountId"`
	ThreadID  string `json:"threadId"`
	IsTyping  bool   `json:"isTyping"`
}

type readRequest struct {
	AccountID      uint `json:"accountId"`
	ConversationID uint `json:"conversationId"`
}

func (c *Client) handleMessage(raw []byte) error {
	var msg events.Envelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.emitError("", "malformed frame")
		return err
	}

	if !c.rateLimiter.Allow(msg.Event) {
		c.logger.Warn("rate limit exceeded", c.UserID, c.ID, zap.String("frame", msg.Event))
		c.emitError(msg.Event, "rate limit exceeded")
		return nil
	}

	switch msg.Event {
	case events.ClientJoinRoom:
		var req roomRequest
		if err := decode(msg.Data, &req); err != nil || req.Room == "" {
			c.emitError(msg.Event, "room is required")
			return err
		}
		if !c.hub.authorizer.CanJoin(c, req.Room) {
			c.emitError(msg.Event, "room not allowed")
			return nil
		}
		c.hub.Subscribe(c, req.Room)
	case events.ClientLeaveRoom:
		var req roomRequest
		if err := decode(msg.Data, &req); err != nil || req.Room == "" {
			c.emitError(msg.Event, "room is required")
			return err
		}
		c.hub.Unsubscribe(c, req.Room)
	case events.ClientSubscribeConversation, events.ClientUnsubscribeConversation:
		var req threadRequest
		if err := decode(msg.Data, &req); err != nil || req.ThreadID == "" {
			c.emitError(msg.Event, "threadId is required")
			return err
		}
		if msg.Event == events.ClientSubscribeConversation {
			c.hub.Subscribe(c, conversation.Room(req.ThreadID))
		} else {
			c.hub.Unsubscribe(c, conversation.Room(req.ThreadID))
		}
	case events.ClientTyping:
		return c.handleTyping(msg.Data)
	case events.ClientReadMessages:
		return c.handleRead(msg.Data)
	case events.ClientGetConnectionStats:
		c.emit(events.EventConnectionStats, c.hub.registry.Stats())
	case events.ClientCheckAccountStatus:
		var req accountRequest
		if err := decode(msg.Data, &req); err != nil || req.AccountID == 0 {
			c.emitError(msg.Event, "accountId is required")
			return err
		}
		c.emit(events.EventAccountStatus, c.hub.AccountStatus(req.AccountID))
	case events.ClientPing:
		c.emit(events.EventPong, struct {
			At time.Time `json:"at"`
		}{At: time.Now()})
	default:
		c.logger.Debug("unknown frame", c.UserID, c.ID, zap.String("frame", msg.Event))
		c.emitError(msg.Event, "unknown event")
	}
	return nil
}

func (c *Client) handleTyping(data json.RawMessage) error {
	var req typingRequest
	if err := decode(data, &req); err != nil || req.ThreadID == "" {
		c.emitError(events.ClientTyping, "threadId is required")
		return err
	}
	if req.AccountID != 0 && !c.Observes(req.AccountID) {
		c.emitError(events.ClientTyping, "account not registered on this socket")
		return nil
	}
	c.hub.SendToRoom(conversation.Room(req.ThreadID), events.EventTyping, events.TypingPayload{
		AccountID: req.AccountID,
		ThreadID:  req.ThreadID,
		UserID:    c.UserID,
		IsTyping:  req.IsTyping,
	}, c)
	return nil
}

func (c *Client) handleRead(data json.RawMessage) error {
	var req readRequest
	if err := decode(data, &req); err != nil || req.AccountID == 0 || req.ConversationID == 0 {
		c.emitError(events.ClientReadMessages, "accountId and conversationId are required")
		return err
	}
	if !c.Observes(req.AccountID) {
		c.emitError(events.ClientReadMessages, "account not registered on this socket")
		return nil
	}
	if c.hub.reads == nil {
		c.emitError(events.ClientReadMessages, "read receipts unavailable")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	updated, err := c.hub.reads.MarkConversationRead(ctx, req.AccountID, req.ConversationID)
	if err != nil {
		if errors.Is(err, zalohub_errors.ErrConversationNotFound) {
			c.emitError(events.ClientReadMessages, "conversation not found")
			return nil
		}
		c.emitError(events.ClientReadMessages, "mark read failed")
		return fmt.Errorf("mark conversation %d read: %w", req.ConversationID, err)
	}
	c.emit(events.EventMessagesRead, events.MessagesReadPayload{
		AccountID:      req.AccountID,
		ConversationID: req.ConversationID,
		Updated:        updated,
	})
	return nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, v)
}
