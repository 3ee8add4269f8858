package websocket

import (
	"context"
	"sync"
	"time"

	"zalo-hub/internal/events"
	"zalo-hub/internal/metrics"
	"zalo-hub/internal/status"

	"go.uber.org/zap"
)

// ReadMarker marks a conversation read on behalf of a socket.
type ReadMarker interface {
	MarkConversationRead(ctx context.Context, accountID, conversationID uint) (int64, error)
}

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opJoin
	opLeave
)

// hubOp is one registry or room change. Every change for a socket travels on
// the same channel so Run applies them in the order they were issued.
type hubOp struct {
	kind       opKind
	client     *Client
	accountIDs []uint
	room       string
}

// Hub owns the connection registry and the room table. Registration,
// removal and room changes are serialized through Run.
type Hub struct {
	registry   *Registry
	book       *status.Book
	reads      ReadMarker
	authorizer *RoomAuthorizer
	logger     *Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	ops      chan hubOp
	done     chan struct{}
	stopOnce sync.Once
}

func NewHub(book *status.Book, reads ReadMarker, logger *zap.Logger) *Hub {
	if book == nil {
		book = status.NewBook(status.DefaultHistorySize)
	}
	return &Hub{
		registry:     NewRegistry(),
		book:         book,
		reads:        reads,
		authorizer:   NewRoomAuthorizer(),
		logger:       NewLogger(logger),
		rooms:      make(map[string]map[*Client]struct{}),
		ops:        make(chan hubOp, 1024),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) Book() *status.Book { return h.book }

// Run processes hub requests until ctx is done, then closes every socket.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.done) })
			h.closeAll()
			return
		case op := <-h.ops:
			switch op.kind {
			case opRegister:
				h.addClient(op.client, op.accountIDs)
			case opUnregister:
				h.removeClient(op.client)
			case opJoin:
				h.joinRoom(op.client, op.room)
			case opLeave:
				h.leaveRoom(op.client, op.room)
			}
		}
	}
}

// Register adds a socket observing accountIDs.
// It reports false once the hub has stopped.
func (h *Hub) Register(client *Client, accountIDs []uint) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	return h.submit(hubOp{kind: opRegister, client: client, accountIDs: accountIDs})
}

func (h *Hub) Unregister(client *Client) {
	h.submit(hubOp{kind: opUnregister, client: client})
}

func (h *Hub) Subscribe(client *Client, room string) {
	h.submit(hubOp{kind: opJoin, client: client, room: room})
}

func (h *Hub) Unsubscribe(client *Client, room string) {
	h.submit(hubOp{kind: opLeave, client: client, room: room})
}

func (h *Hub) submit(op hubOp) bool {
	select {
	case h.ops <- op:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) addClient(c *Client, accountIDs []uint) {
	fresh := h.registry.Register(c, accountIDs)
	metrics.SocketConnections.Inc()
	h.logger.Info("client connected", c.UserID, c.ID,
		zap.Uints("account_ids", accountIDs),
		zap.Uints("first_socket_for", fresh))

	for _, id := range accountIDs {
		h.book.Record(status.Entry{
			AccountID: id,
			Source:    status.SourceSocket,
			State:     status.StateConnected,
			Detail:    "socket " + c.ID,
		})
		payload := h.socketStatus(id, c.UserID, events.StatusConnected, "socket registered")
		c.emit(events.EventAccountConnected, payload)
		h.Broadcast(events.EventAccountStatusUpdate, payload)
	}
}

func (h *Hub) removeClient(c *Client) {
	lost, ok := h.registry.Unregister(c)
	if !ok {
		return
	}
	h.mu.Lock()
	for _, room := range c.Rooms() {
		h.dropFromRoomLocked(c, room)
	}
	h.mu.Unlock()
	c.closeSend()
	metrics.SocketConnections.Dec()
	h.logger.Info("client disconnected", c.UserID, c.ID, zap.Uints("accounts_without_socket", lost))

	for _, id := range lost {
		h.book.Record(status.Entry{
			AccountID: id,
			Source:    status.SourceSocket,
			State:     status.StateDisconnected,
			Detail:    "last socket closed",
		})
		h.Broadcast(events.EventAccountStatusUpdate,
			h.socketStatus(id, c.UserID, events.StatusDisconnected, "last socket closed"))
	}
}

func (h *Hub) joinRoom(c *Client, room string) {
	if !h.registry.Has(c) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.joinRoom(room)
}

func (h *Hub) leaveRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropFromRoomLocked(c, room)
}

func (h *Hub) dropFromRoomLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	c.leaveRoom(room)
}

// RoomSize returns the number of sockets in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast sends a frame to every socket.
func (h *Hub) Broadcast(event string, payload any) int {
	data, err := events.Encode(event, payload)
	if err != nil {
		h.logger.Error("encode broadcast failed", "", "", err, zap.String("frame", event))
		return 0
	}
	sent := 0
	for _, c := range h.registry.Clients() {
		if c.SendMessage(data) {
			sent++
		}
	}
	return sent
}

// SendToRoom sends a frame to every member of room except the sender.
func (h *Hub) SendToRoom(room, event string, payload any, except *Client) int {
	data, err := events.Encode(event, payload)
	if err != nil {
		h.logger.Error("encode room frame failed", "", "", err, zap.String("frame", event))
		return 0
	}
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != except {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range members {
		if c.SendMessage(data) {
			sent++
		}
	}
	return sent
}

// AccountStatus combines the session state with the number of sockets
// observing the account.
func (h *Hub) AccountStatus(accountID uint) events.AccountStatusPayload {
	p := events.AccountStatusPayload{
		AccountID:   accountID,
		Status:      events.StatusDisconnected,
		SocketCount: h.registry.SocketCount(accountID),
	}
	if e, ok := h.book.State(accountID, status.SourceSession); ok {
		p.Status = sessionStatus(e.State)
		p.Message = e.Detail
		p.At = e.At
	}
	return p
}

func (h *Hub) socketStatus(accountID uint, userID, state, detail string) events.AccountStatusPayload {
	p := h.AccountStatus(accountID)
	p.UserID = userID
	p.Status = state
	p.Message = detail
	p.At = time.Now()
	return p
}

// DetachAccount stops every socket from observing the account.
func (h *Hub) DetachAccount(accountID uint, reason string) int {
	detached := h.registry.DetachAccount(accountID)
	if len(detached) == 0 {
		return 0
	}
	h.book.Record(status.Entry{
		AccountID: accountID,
		Source:    status.SourceSocket,
		State:     status.StateDisconnected,
		Detail:    reason,
	})
	payload := h.socketStatus(accountID, "", events.StatusDisconnected, reason)
	for _, c := range detached {
		c.emit(events.EventAccountDisconnected, payload)
	}
	h.Broadcast(events.EventAccountStatusUpdate, payload)
	return len(detached)
}

// DisconnectUser closes every socket of a user and returns how many were
// closed.
func (h *Hub) DisconnectUser(userID string) int {
	clients := h.registry.UserSockets(userID)
	for _, c := range clients {
		if c.conn != nil {
			// the read pump unregisters the socket
			c.conn.Close()
			continue
		}
		h.Unregister(c)
	}
	return len(clients)
}

func (h *Hub) closeAll() {
	for _, c := range h.registry.Clients() {
		h.removeClient(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func sessionStatus(s status.State) string {
	switch s {
	case status.StateConnected:
		return events.StatusConnected
	case status.StateError:
		return events.StatusError
	default:
		return events.StatusDisconnected
	}
}
