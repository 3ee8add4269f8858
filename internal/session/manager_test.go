package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"zalo-hub/internal/domain/account"
	"zalo-hub/internal/status"
	"zalo-hub/internal/zalo"
	zalohub_errors "zalo-hub/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCookie = `[{"key":"zpsid","value":"abc","domain":".zalo.me"}]`

type fakeSession struct {
	ownID    string
	events   chan zalo.Event
	stopOnce sync.Once
	stopped  atomic.Bool
}

func newFakeSession(ownID string) *fakeSession {
	return &fakeSession{ownID: ownID, events: make(chan zalo.Event, 16)}
}

func (s *fakeSession) OwnID() string { return s.ownID }

func (s *fakeSession) SendMessage(ctx context.Context, msg zalo.Outgoing, threadID string, threadType zalo.ThreadType) (zalo.SendResult, error) {
	return zalo.SendResult{MsgID: "1"}, nil
}

func (s *fakeSession) GetUserInfo(ctx context.Context, userID string) (zalo.UserProfile, error) {
	return zalo.UserProfile{UserID: zalo.ID(userID)}, nil
}

func (s *fakeSession) GetStickersDetail(ctx context.Context, stickerID int64) ([]zalo.StickerDetail, error) {
	return nil, nil
}

func (s *fakeSession) Listener() zalo.Listener { return s }

func (s *fakeSession) Start(ctx context.Context) error { return nil }

func (s *fakeSession) Events() <-chan zalo.Event { return s.events }

func (s *fakeSession) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.events)
	})
}

type fakeClient struct {
	mu       sync.Mutex
	logins   map[string]int
	fail     map[string]error
	sessions map[string]*fakeSession
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		logins:   make(map[string]int),
		fail:     make(map[string]error),
		sessions: make(map[string]*fakeSession),
	}
}

func (c *fakeClient) Login(ctx context.Context, creds zalo.Credentials) (zalo.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logins[creds.IMEI]++
	if err := c.fail[creds.IMEI]; err != nil {
		return nil, err
	}
	s := newFakeSession("own-" + creds.IMEI)
	c.sessions[creds.IMEI] = s
	return s, nil
}

func (c *fakeClient) loginCount(imei string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logins[imei]
}

func (c *fakeClient) session(imei string) *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[imei]
}

type fakeStore struct {
	mu           sync.Mutex
	accounts     map[uint]account.Account
	connectivity map[uint]bool
	writes       int
}

func newFakeStore(accounts ...account.Account) *fakeStore {
	s := &fakeStore{accounts: make(map[uint]account.Account), connectivity: make(map[uint]bool)}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *fakeStore) ListEligible(ctx context.Context) ([]account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []account.Account
	for _, a := range s.accounts {
		if a.HasCredentials() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id uint) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return account.Account{}, zalohub_errors.ErrNotFound
	}
	return a, nil
}

func (s *fakeStore) SetConnectivity(ctx context.Context, id uint, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return zalohub_errors.ErrNotFound
	}
	s.connectivity[id] = connected
	s.writes++
	return nil
}

func (s *fakeStore) remove(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
}

func (s *fakeStore) connected(id uint) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.connectivity[id]
	return v, ok
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type received struct {
	accountID uint
	evt       zalo.Event
}

type recordingHandler struct {
	ch chan received
}

func (h *recordingHandler) HandleEvent(ctx context.Context, accountID uint, api zalo.API, evt zalo.Event) {
	h.ch <- received{accountID: accountID, evt: evt}
}

func acct(id uint, cookie, imei string) account.Account {
	ua := "Mozilla/5.0"
	owner := uint(100)
	return account.Account{ID: id, UserID: &owner, Cookie: &cookie, IMEI: &imei, UserAgent: &ua}
}

func newTestManager(client zalo.Client, store CredentialStore) (*Manager, *recordingHandler, *status.Book) {
	h := &recordingHandler{ch: make(chan received, 16)}
	book := status.NewBook(status.DefaultHistorySize)
	m := NewManager(client, store, h, book, nil, Options{LoginConcurrency: 2, EventConcurrency: 4})
	return m, h, book
}

func sessionIDs(m *Manager) []uint {
	var ids []uint
	for _, info := range m.Sessions() {
		ids = append(ids, info.AccountID)
	}
	return ids
}

func TestStartIsolatesBrokenAccounts(t *testing.T) {
	client := newFakeClient()
	client.fail["imei-d"] = errors.New("session expired")
	store := newFakeStore(
		acct(1, validCookie, "imei-a"),
		acct(2, "{not json", "imei-b"),
		acct(3, validCookie, "imei-c"),
		acct(4, validCookie, "imei-d"),
	)
	m, _, book := newTestManager(client, store)
	defer m.Shutdown(context.Background())

	require.NoError(t, m.Start(context.Background()))

	assert.Equal(t, []uint{1, 3}, sessionIDs(m))
	assert.Equal(t, 0, client.loginCount("imei-b"), "malformed cookies never reach login")
	assert.Equal(t, 1, client.loginCount("imei-d"))

	for _, id := range []uint{1, 3} {
		v, ok := store.connected(id)
		assert.True(t, ok && v, "account %d should be persisted as connected", id)
	}
	for _, id := range []uint{2, 4} {
		v, ok := store.connected(id)
		assert.True(t, ok && !v, "account %d should be persisted as disconnected", id)
		e, ok := book.State(id, status.SourceSession)
		require.True(t, ok)
		assert.Equal(t, status.StateError, e.State)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	client := newFakeClient()
	store := newFakeStore(acct(1, validCookie, "imei-a"), acct(2, validCookie, "imei-b"))
	m, _, book := newTestManager(client, store)
	defer m.Shutdown(context.Background())

	require.NoError(t, m.Start(context.Background()))
	writes := store.writeCount()
	history := len(book.History(1))

	for i := 0; i < 3; i++ {
		res, err := m.Reconcile(context.Background())
		require.NoError(t, err)
		assert.False(t, res.Changed())
		assert.Equal(t, 2, res.Eligible)
	}

	assert.Equal(t, 1, client.loginCount("imei-a"))
	assert.Equal(t, 1, client.loginCount("imei-b"))
	assert.Equal(t, writes, store.writeCount())
	assert.Len(t, book.History(1), history)
}

func TestReconcileTearsDownRemovedAccounts(t *testing.T) {
	client := newFakeClient()
	store := newFakeStore(acct(1, validCookie, "imei-a"), acct(2, validCookie, "imei-b"))
	m, _, _ := newTestManager(client, store)
	defer m.Shutdown(context.Background())

	require.NoError(t, m.Start(context.Background()))
	store.remove(2)

	res, err := m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TornDown)
	assert.Equal(t, []uint{1}, sessionIDs(m))
	assert.True(t, client.session("imei-b").stopped.Load())

	_, ok := m.Session(2)
	assert.False(t, ok)
}

func TestListenerFailureMarksDisconnectedUntilNextReconcile(t *testing.T) {
	client := newFakeClient()
	store := newFakeStore(acct(1, validCookie, "imei-a"))
	m, _, book := newTestManager(client, store)
	defer m.Shutdown(context.Background())

	require.NoError(t, m.Start(context.Background()))
	client.session("imei-a").events <- &zalo.ErrorEvent{Err: errors.New("socket reset")}

	require.Eventually(t, func() bool {
		_, live := m.Session(1)
		v, _ := store.connected(1)
		return !live && !v
	}, time.Second, 10*time.Millisecond)

	e, ok := book.State(1, status.SourceSession)
	require.True(t, ok)
	assert.Equal(t, status.StateDisconnected, e.State)
	assert.Equal(t, "socket reset", e.Detail)
	// no immediate retry
	assert.Equal(t, 1, client.loginCount("imei-a"))

	res, err := m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Connected)
	assert.Equal(t, 2, client.loginCount("imei-a"))
	v, _ := store.connected(1)
	assert.True(t, v)
}

func TestEventsReachHandler(t *testing.T) {
	client := newFakeClient()
	store := newFakeStore(acct(5, validCookie, "imei-e"))
	m, h, _ := newTestManager(client, store)
	defer m.Shutdown(context.Background())

	require.NoError(t, m.Start(context.Background()))
	evt := &zalo.MessageEvent{ThreadID: "U1", Data: zalo.MessageData{MsgID: "m-1"}}
	client.session("imei-e").events <- evt

	select {
	case got := <-h.ch:
		assert.Equal(t, uint(5), got.accountID)
		assert.Same(t, evt, got.evt)
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}
}

func TestForcedDisconnectSuspendsAccount(t *testing.T) {
	client := newFakeClient()
	store := newFakeStore(acct(1, validCookie, "imei-a"))
	m, _, book := newTestManager(client, store)
	defer m.Shutdown(context.Background())

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Disconnect(1))
	assert.ErrorIs(t, m.Disconnect(1), zalohub_errors.ErrSessionNotFound)

	e, _ := book.State(1, status.SourceSession)
	assert.Equal(t, status.StateSuspended, e.State)
	assert.True(t, m.IsSuspended(1))

	res, err := m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Connected)
	assert.Empty(t, m.Sessions())

	require.NoError(t, m.Reconnect(context.Background(), 1))
	assert.Equal(t, []uint{1}, sessionIDs(m))
	assert.False(t, m.IsSuspended(1))
}

func TestShutdownStopsAllListeners(t *testing.T) {
	client := newFakeClient()
	store := newFakeStore(acct(1, validCookie, "imei-a"), acct(2, validCookie, "imei-b"))
	m, _, _ := newTestManager(client, store)

	require.NoError(t, m.Start(context.Background()))
	m.Shutdown(context.Background())

	assert.Empty(t, m.Sessions())
	assert.True(t, client.session("imei-a").stopped.Load())
	assert.True(t, client.session("imei-b").stopped.Load())

	res, err := m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Connected)
	assert.Equal(t, 2, res.Failed)
}

func TestSessionPrefersNewestLogin(t *testing.T) {
	m, _, _ := newTestManager(newFakeClient(), newFakeStore())
	defer m.Shutdown(context.Background())

	stale := newFakeSession("own-old")
	current := newFakeSession("own-new")
	now := time.Now()
	m.mu.Lock()
	m.sessions[Key{AccountID: 5, UserID: "owner-a"}] = &liveSession{
		key: Key{AccountID: 5, UserID: "owner-a"}, session: stale, cancel: func() {}, connectedAt: now.Add(-time.Minute),
	}
	m.sessions[Key{AccountID: 5, UserID: "owner-b"}] = &liveSession{
		key: Key{AccountID: 5, UserID: "owner-b"}, session: current, cancel: func() {}, connectedAt: now,
	}
	m.mu.Unlock()

	for i := 0; i < 20; i++ {
		sess, ok := m.Session(5)
		require.True(t, ok)
		assert.Equal(t, "own-new", sess.OwnID())
	}
	_, ok := m.Session(6)
	assert.False(t, ok)
}
