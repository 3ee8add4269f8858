package websocket

import (
	"sort"
	"sync"
	"time"
)

// Connection is one (account, socket) registration.
type Connection struct {
	AccountID   uint      `json:"account_id"`
	UserID      string    `json:"user_id"`
	SocketID    string    `json:"socket_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

type Stats struct {
	Sockets  int `json:"sockets"`
	Accounts int `json:"accounts"`
	Users    int `json:"users"`
}

// Registry maps accounts to the sockets observing them and users to their
// sockets. An account can be observed by any number of sockets.
type Registry struct {
	mu        sync.RWMutex
	sockets   map[string]*Client
	byAccount map[uint]map[string]*Client
	byUser    map[string]map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		sockets:   make(map[string]*Client),
		byAccount: make(map[uint]map[string]*Client),
		byUser:    make(map[string]map[string]*Client),
	}
}

// Register records the socket and every account it declared. It returns the
// accounts that had no socket before.
func (r *Registry) Register(c *Client, accountIDs []uint) []uint {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sockets[c.ID] = c
	if r.byUser[c.UserID] == nil {
		r.byUser[c.UserID] = make(map[string]*Client)
	}
	r.byUser[c.UserID][c.ID] = c

	var fresh []uint
	for _, id := range accountIDs {
		set := r.byAccount[id]
		if set == nil {
			set = make(map[string]*Client)
			r.byAccount[id] = set
		}
		if len(set) == 0 {
			fresh = append(fresh, id)
		}
		set[c.ID] = c
		c.observe(id)
	}
	return fresh
}

// Unregister removes the socket. It returns the accounts left without any
// socket; ok is false when the socket was not registered.
func (r *Registry) Unregister(c *Client) (lost []uint, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.sockets[c.ID]; !found {
		return nil, false
	}
	delete(r.sockets, c.ID)
	if set := r.byUser[c.UserID]; set != nil {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(r.byUser, c.UserID)
		}
	}

	for _, id := range c.Accounts() {
		if r.dropLocked(id, c.ID) {
			lost = append(lost, id)
		}
	}
	return lost, true
}

func (r *Registry) Has(c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sockets[c.ID]
	return ok
}

// DetachAccount stops every socket from observing the account and returns
// the sockets that were detached.
func (r *Registry) DetachAccount(accountID uint) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byAccount[accountID]
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		c.forget(accountID)
		out = append(out, c)
	}
	delete(r.byAccount, accountID)
	return out
}

func (r *Registry) dropLocked(accountID uint, socketID string) bool {
	set, ok := r.byAccount[accountID]
	if !ok {
		return false
	}
	delete(set, socketID)
	if len(set) == 0 {
		delete(r.byAccount, accountID)
		return true
	}
	return false
}

// ConnectedAccounts lists accounts with at least one socket, ascending.
func (r *Registry) ConnectedAccounts() []uint {
	r.mu.RLock()
	out := make([]uint, 0, len(r.byAccount))
	for id := range r.byAccount {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) SocketsFor(accountID uint) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byAccount[accountID]
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) SocketCount(accountID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAccount[accountID])
}

func (r *Registry) UserSockets(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// AccountsForUser is the union of the accounts observed by the user's sockets.
func (r *Registry) AccountsForUser(userID string) []uint {
	seen := make(map[uint]struct{})
	for _, c := range r.UserSockets(userID) {
		for _, id := range c.Accounts() {
			seen[id] = struct{}{}
		}
	}
	out := make([]uint, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Sockets:  len(r.sockets),
		Accounts: len(r.byAccount),
		Users:    len(r.byUser),
	}
}

// All flattens the registry into one entry per (account, socket).
func (r *Registry) All() []Connection {
	r.mu.RLock()
	var out []Connection
	for id, set := range r.byAccount {
		for _, c := range set {
			out = append(out, Connection{
				AccountID:   id,
				UserID:      c.UserID,
				SocketID:    c.ID,
				ConnectedAt: c.ConnectedAt,
			})
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Clients returns every registered socket.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.sockets))
	for _, c := range r.sockets {
		out = append(out, c)
	}
	return out
}
