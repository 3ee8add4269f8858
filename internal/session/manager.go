package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"zalo-hub/internal/domain/account"
	"zalo-hub/internal/metrics"
	"zalo-hub/internal/status"
	"zalo-hub/internal/zalo"
	zalohub_errors "zalo-hub/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// CredentialStore is the account table as seen by the manager.
type CredentialStore interface {
	ListEligible(ctx context.Context) ([]account.Account, error)
	GetByID(ctx context.Context, id uint) (account.Account, error)
	SetConnectivity(ctx context.Context, id uint, connected bool) error
}

// ownIDRecorder is implemented by stores that keep the protocol user id.
type ownIDRecorder interface {
	RecordOwnID(ctx context.Context, id uint, ownID string) error
}

// EventHandler consumes realtime events of one account.
type EventHandler interface {
	HandleEvent(ctx context.Context, accountID uint, api zalo.API, evt zalo.Event)
}

// Key identifies a session by account and owning application user.
type Key struct {
	AccountID uint
	UserID    string
}

type Options struct {
	ReconcileInterval time.Duration
	LoginConcurrency  int
	EventConcurrency  int64
	// StoreTimeout bounds connectivity writes made outside a caller context.
	StoreTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = 15 * time.Minute
	}
	if o.LoginConcurrency <= 0 {
		o.LoginConcurrency = 4
	}
	if o.EventConcurrency <= 0 {
		o.EventConcurrency = 16
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 10 * time.Second
	}
	return o
}

// Info describes a live session.
type Info struct {
	AccountID   uint      `json:"account_id"`
	UserID      string    `json:"user_id"`
	OwnID       string    `json:"own_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

type ReconcileResult struct {
	Eligible  int  `json:"eligible"`
	Connected int  `json:"connected"`
	Failed    int  `json:"failed"`
	TornDown  int  `json:"torn_down"`
	Skipped   bool `json:"skipped"`
}

// Changed reports whether the pass did anything.
func (r ReconcileResult) Changed() bool {
	return r.Connected > 0 || r.Failed > 0 || r.TornDown > 0
}

type liveSession struct {
	key         Key
	session     zalo.Session
	cancel      context.CancelFunc
	connectedAt time.Time
}

// Manager keeps one protocol session per eligible account.
type Manager struct {
	client  zalo.Client
	store   CredentialStore
	handler EventHandler
	book    *status.Book
	logger  *zap.Logger
	opts    Options

	baseCtx    context.Context
	baseCancel context.CancelFunc
	dispatch   *semaphore.Weighted
	inflight   sync.WaitGroup

	mu        sync.RWMutex
	sessions  map[Key]*liveSession
	suspended map[uint]struct{}
	closed    bool

	reconciling atomic.Bool
}

func NewManager(client zalo.Client, store CredentialStore, handler EventHandler, book *status.Book, logger *zap.Logger, opts Options) *Manager {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if book == nil {
		book = status.NewBook(status.DefaultHistorySize)
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Manager{
		client:     client,
		store:      store,
		handler:    handler,
		book:       book,
		logger:     logger.With(zap.String("component", "session_manager")),
		opts:       opts,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		dispatch:   semaphore.NewWeighted(opts.EventConcurrency),
		sessions:   make(map[Key]*liveSession),
		suspended:  make(map[uint]struct{}),
	}
}

// Start connects every eligible account. Per-account failures are recorded
// and never abort the batch.
func (m *Manager) Start(ctx context.Context) error {
	accounts, err := m.store.ListEligible(ctx)
	if err != nil {
		return fmt.Errorf("list eligible accounts: %w", err)
	}

	var connected, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(m.opts.LoginConcurrency)
	for _, acc := range accounts {
		g.Go(func() error {
			if err := m.connect(ctx, acc); err != nil {
				failed.Add(1)
				return nil
			}
			connected.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Info("session startup finished",
		zap.Int("eligible", len(accounts)),
		zap.Int32("connected", connected.Load()),
		zap.Int32("failed", failed.Load()))
	return nil
}

// Run reconciles on a fixed interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := m.Reconcile(ctx)
			if err != nil {
				m.logger.Error("reconcile failed", zap.Error(err))
				continue
			}
			if res.Changed() {
				m.logger.Info("reconcile finished",
					zap.Int("eligible", res.Eligible),
					zap.Int("connected", res.Connected),
					zap.Int("failed", res.Failed),
					zap.Int("torn_down", res.TornDown))
			}
		}
	}
}

// Reconcile converges live sessions onto the eligible account set. It works
// on a snapshot taken at the start of the pass and never overlaps itself.
func (m *Manager) Reconcile(ctx context.Context) (ReconcileResult, error) {
	if !m.reconciling.CompareAndSwap(false, true) {
		return ReconcileResult{Skipped: true}, nil
	}
	defer m.reconciling.Store(false)

	accounts, err := m.store.ListEligible(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("list eligible accounts: %w", err)
	}

	res := ReconcileResult{Eligible: len(accounts)}
	desired := make(map[Key]account.Account, len(accounts))
	for _, acc := range accounts {
		desired[Key{AccountID: acc.ID, UserID: acc.OwnerKey()}] = acc
	}

	for _, key := range m.keys() {
		if _, ok := desired[key]; ok {
			continue
		}
		if m.teardown(key, status.StateDisconnected, "credentials removed") {
			res.TornDown++
		}
	}

	var connected, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(m.opts.LoginConcurrency)
	for key, acc := range desired {
		if m.has(key) || m.isSuspended(acc.ID) {
			continue
		}
		g.Go(func() error {
			if err := m.connect(ctx, acc); err != nil {
				failed.Add(1)
				return nil
			}
			connected.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res.Connected = int(connected.Load())
	res.Failed = int(failed.Load())
	return res, nil
}

func (m *Manager) connect(ctx context.Context, acc account.Account) error {
	key := Key{AccountID: acc.ID, UserID: acc.OwnerKey()}
	log := m.logger.With(zap.Uint("account_id", acc.ID))

	creds, err := zalo.ParseCredentials(acc.CookieValue(), acc.IMEIValue(), acc.UserAgentValue())
	if err != nil {
		log.Warn("skipping account with unusable credentials", zap.Error(err))
		m.markFailed(ctx, acc.ID, err)
		return err
	}

	sess, err := m.client.Login(ctx, creds)
	if err != nil {
		log.Warn("login failed", zap.Error(err))
		m.markFailed(ctx, acc.ID, err)
		return err
	}

	listener := sess.Listener()
	if err := listener.Start(ctx); err != nil {
		listener.Stop()
		log.Warn("listener start failed", zap.Error(err))
		m.markFailed(ctx, acc.ID, err)
		return err
	}

	pumpCtx, cancel := context.WithCancel(m.baseCtx)
	live := &liveSession{
		key:         key,
		session:     sess,
		cancel:      cancel,
		connectedAt: time.Now(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		listener.Stop()
		return errors.New("session manager is shut down")
	}
	if _, exists := m.sessions[key]; exists {
		m.mu.Unlock()
		cancel()
		listener.Stop()
		return nil
	}
	m.sessions[key] = live
	active := len(m.sessions)
	m.mu.Unlock()

	metrics.SessionsActive.Set(float64(active))
	metrics.SessionLogins.WithLabelValues(metrics.OutcomeOK).Inc()
	m.book.Record(status.Entry{
		AccountID: acc.ID,
		Source:    status.SourceSession,
		State:     status.StateConnected,
		Detail:    "logged in as " + sess.OwnID(),
	})
	if err := m.store.SetConnectivity(ctx, acc.ID, true); err != nil {
		log.Warn("persist connectivity failed", zap.Error(err))
	}
	if rec, ok := m.store.(ownIDRecorder); ok && sess.OwnID() != acc.ZaloUserID {
		if err := rec.RecordOwnID(ctx, acc.ID, sess.OwnID()); err != nil {
			log.Warn("persist own id failed", zap.Error(err))
		}
	}
	log.Info("session connected", zap.String("own_id", sess.OwnID()))

	go m.pump(pumpCtx, live, listener.Events())
	return nil
}

func (m *Manager) pump(ctx context.Context, live *liveSession, events <-chan zalo.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				m.fail(live, "event stream closed")
				return
			}
			switch e := evt.(type) {
			case *zalo.ErrorEvent:
				m.fail(live, e.Err.Error())
				return
			case *zalo.DisconnectEvent:
				m.fail(live, fmt.Sprintf("disconnected (%d): %s", e.Code, e.Reason))
				return
			default:
				m.dispatchEvent(live, evt)
			}
		}
	}
}

// dispatchEvent runs the handler in its own goroutine under the manager's base
// context, so handlers finish even if the session is torn down meanwhile.
func (m *Manager) dispatchEvent(live *liveSession, evt zalo.Event) {
	if err := m.dispatch.Acquire(m.baseCtx, 1); err != nil {
		return
	}
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		defer m.dispatch.Release(1)
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("event handler panicked",
					zap.Uint("account_id", live.key.AccountID),
					zap.String("event", evt.Name()),
					zap.Any("panic", r))
			}
		}()
		m.handler.HandleEvent(m.baseCtx, live.key.AccountID, live.session, evt)
	}()
}

// fail removes a session after a listener error or disconnect. Recovery is
// left to the next reconcile tick.
func (m *Manager) fail(live *liveSession, reason string) {
	m.mu.Lock()
	current, ok := m.sessions[live.key]
	if !ok || current != live {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, live.key)
	active := len(m.sessions)
	m.mu.Unlock()

	live.cancel()
	live.session.Listener().Stop()
	metrics.SessionsActive.Set(float64(active))

	m.logger.Warn("session lost",
		zap.Uint("account_id", live.key.AccountID),
		zap.String("reason", reason))
	m.book.Record(status.Entry{
		AccountID: live.key.AccountID,
		Source:    status.SourceSession,
		State:     status.StateDisconnected,
		Detail:    reason,
	})
	m.persistDisconnected(live.key.AccountID)
}

func (m *Manager) teardown(key Key, state status.State, reason string) bool {
	m.mu.Lock()
	live, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	active := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return false
	}

	live.cancel()
	live.session.Listener().Stop()
	metrics.SessionsActive.Set(float64(active))

	m.logger.Info("session torn down",
		zap.Uint("account_id", key.AccountID),
		zap.String("reason", reason))
	m.book.Record(status.Entry{
		AccountID: key.AccountID,
		Source:    status.SourceSession,
		State:     state,
		Detail:    reason,
	})
	m.persistDisconnected(key.AccountID)
	return true
}

func (m *Manager) markFailed(ctx context.Context, accountID uint, cause error) {
	metrics.SessionLogins.WithLabelValues(metrics.OutcomeFailed).Inc()
	m.book.Record(status.Entry{
		AccountID: accountID,
		Source:    status.SourceSession,
		State:     status.StateError,
		Detail:    cause.Error(),
	})
	if err := m.store.SetConnectivity(ctx, accountID, false); err != nil && !errors.Is(err, zalohub_errors.ErrNotFound) {
		m.logger.Warn("persist connectivity failed", zap.Uint("account_id", accountID), zap.Error(err))
	}
}

func (m *Manager) persistDisconnected(accountID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.StoreTimeout)
	defer cancel()
	if err := m.store.SetConnectivity(ctx, accountID, false); err != nil && !errors.Is(err, zalohub_errors.ErrNotFound) {
		m.logger.Warn("persist connectivity failed", zap.Uint("account_id", accountID), zap.Error(err))
	}
}

// Disconnect forcibly stops an account's session. The account stays down
// until Reconnect is called.
func (m *Manager) Disconnect(accountID uint) error {
	keys := m.keysFor(accountID)
	if len(keys) == 0 {
		return zalohub_errors.ErrSessionNotFound
	}
	m.mu.Lock()
	m.suspended[accountID] = struct{}{}
	m.mu.Unlock()

	for _, key := range keys {
		m.teardown(key, status.StateSuspended, "forced disconnect")
	}
	return nil
}

// Reconnect lifts a suspension and logs the account in immediately.
func (m *Manager) Reconnect(ctx context.Context, accountID uint) error {
	m.mu.Lock()
	delete(m.suspended, accountID)
	m.mu.Unlock()

	acc, err := m.store.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !acc.HasCredentials() {
		return fmt.Errorf("%w: account %d has no credentials", zalohub_errors.ErrInvalidCredentials, accountID)
	}
	if m.has(Key{AccountID: acc.ID, UserID: acc.OwnerKey()}) {
		return nil
	}
	return m.connect(ctx, acc)
}

// Session returns the live session of an account.
func (m *Manager) Session(accountID uint) (zalo.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// an owner reassignment can leave two keys for one account until the
	// next reconcile; the newest login wins
	var newest *liveSession
	for key, live := range m.sessions {
		if key.AccountID != accountID {
			continue
		}
		if newest == nil || live.connectedAt.After(newest.connectedAt) {
			newest = live
		}
	}
	if newest == nil {
		return nil, false
	}
	return newest.session, true
}

func (m *Manager) Sessions() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for key, live := range m.sessions {
		out = append(out, Info{
			AccountID:   key.AccountID,
			UserID:      key.UserID,
			OwnID:       live.session.OwnID(),
			ConnectedAt: live.connectedAt,
		})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

func (m *Manager) IsSuspended(accountID uint) bool {
	return m.isSuspended(accountID)
}

// Shutdown stops every listener without logging out, then waits for
// in-flight handlers until ctx expires.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	live := make([]*liveSession, 0, len(m.sessions))
	for key, s := range m.sessions {
		live = append(live, s)
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.cancel()
		s.session.Listener().Stop()
	}
	metrics.SessionsActive.Set(0)

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timed out waiting for event handlers")
	}
	m.baseCancel()
	m.logger.Info("session manager stopped", zap.Int("sessions", len(live)))
}

func (m *Manager) has(key Key) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[key]
	return ok
}

func (m *Manager) isSuspended(accountID uint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.suspended[accountID]
	return ok
}

func (m *Manager) keys() []Key {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]Key, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	return keys
}

func (m *Manager) keysFor(accountID uint) []Key {
	var out []Key
	for _, key := range m.keys() {
		if key.AccountID == accountID {
			out = append(out, key)
		}
	}
	return out
}
