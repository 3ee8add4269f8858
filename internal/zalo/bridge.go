package zalo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	zalohub_errors "zalo-hub/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame types exchanged with the protocol sidecar. Every account gets its own
// websocket; requests carry an id that the matching result echoes.
const (
	frameLogin  = "login"
	frameCall   = "call"
	frameResult = "result"
	frameEvent  = "event"
)

const (
	methodStartListener     = "listener.start"
	methodSendMessage       = "sendMessage"
	methodGetUserInfo       = "getUserInfo"
	methodGetStickersDetail = "getStickersDetail"
)

type frame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type BridgeConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	CallTimeout      time.Duration
	EventBuffer      int
}

// BridgeClient implements Client on top of a websocket sidecar that hosts the
// protocol library.
type BridgeClient struct {
	cfg    BridgeConfig
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewBridgeClient(cfg BridgeConfig, logger *zap.Logger) *BridgeClient {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BridgeClient{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger: logger.With(zap.String("component", "zalo_bridge")),
	}
}

func (c *BridgeClient) Login(ctx context.Context, creds Credentials) (Session, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}

	s := &bridgeSession{
		conn:    conn,
		cfg:     c.cfg,
		logger:  c.logger,
		pending: make(map[string]chan frame),
		events:  make(chan Event, c.cfg.EventBuffer),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.readLoop()

	var res struct {
		UID ID `json:"uid"`
	}
	if err := s.request(ctx, frameLogin, "", creds, &res); err != nil {
		s.Stop()
		return nil, fmt.Errorf("login: %w", err)
	}
	if res.UID == "" {
		s.Stop()
		return nil, errors.New("login: bridge returned no uid")
	}
	s.ownID = res.UID.String()
	s.logger = s.logger.With(zap.String("own_id", s.ownID))
	return s, nil
}

type bridgeSession struct {
	conn   *websocket.Conn
	cfg    BridgeConfig
	logger *zap.Logger
	ownID  string

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan frame
	closed  bool

	events    chan Event
	listening atomic.Bool
	stopped   atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func (s *bridgeSession) OwnID() string { return s.ownID }

func (s *bridgeSession) Listener() Listener { return s }

func (s *bridgeSession) Events() <-chan Event { return s.events }

func (s *bridgeSession) Start(ctx context.Context) error {
	s.listening.Store(true)
	if err := s.request(ctx, frameCall, methodStartListener, struct{}{}, nil); err != nil {
		s.listening.Store(false)
		return fmt.Errorf("start listener: %w", err)
	}
	return nil
}

// Stop closes the bridge socket. Events is closed once the read loop drains.
func (s *bridgeSession) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stop"))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}

func (s *bridgeSession) SendMessage(ctx context.Context, msg Outgoing, threadID string, threadType ThreadType) (SendResult, error) {
	params := struct {
		Message  Outgoing   `json:"message"`
		ThreadID string     `json:"threadId"`
		Type     ThreadType `json:"type"`
	}{msg, threadID, threadType}

	var res SendResult
	if err := s.request(ctx, frameCall, methodSendMessage, params, &res); err != nil {
		return SendResult{}, err
	}
	return res, nil
}

func (s *bridgeSession) GetUserInfo(ctx context.Context, userID string) (UserProfile, error) {
	var res UserProfile
	err := s.request(ctx, frameCall, methodGetUserInfo, map[string]string{"userId": userID}, &res)
	if err != nil {
		return UserProfile{}, err
	}
	if res.UserID == "" {
		res.UserID = ID(userID)
	}
	return res, nil
}

func (s *bridgeSession) GetStickersDetail(ctx context.Context, stickerID int64) ([]StickerDetail, error) {
	var res []StickerDetail
	err := s.request(ctx, frameCall, methodGetStickersDetail, map[string][]int64{"stickerIds": {stickerID}}, &res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *bridgeSession) request(ctx context.Context, typ, method string, params interface{}, out interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	ch := make(chan frame, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zalohub_errors.ErrBridgeClosed
	}
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.pending != nil {
			delete(s.pending, id)
		}
		s.mu.Unlock()
	}()

	if err := s.write(frame{Type: typ, ID: id, Method: method, Data: data}); err != nil {
		return fmt.Errorf("write %s: %w", typ, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	select {
	case res, ok := <-ch:
		if !ok {
			return zalohub_errors.ErrBridgeClosed
		}
		if res.Error != "" {
			return errors.New(res.Error)
		}
		if out != nil && len(res.Data) > 0 {
			if err := json.Unmarshal(res.Data, out); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *bridgeSession) write(f frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *bridgeSession) readLoop() {
	disconnect := &DisconnectEvent{Code: websocket.CloseAbnormalClosure, Reason: "bridge connection lost"}

	defer func() {
		s.failPending()
		if !s.stopped.Load() && s.listening.Load() {
			s.emit(disconnect)
		}
		close(s.events)
		close(s.done)
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				disconnect.Code = closeErr.Code
				disconnect.Reason = closeErr.Text
			}
			if !s.stopped.Load() {
				s.logger.Warn("bridge read failed", zap.Error(err))
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("bridge sent malformed frame", zap.Error(err))
			continue
		}

		switch f.Type {
		case frameResult:
			s.mu.Lock()
			ch, ok := s.pending[f.ID]
			s.mu.Unlock()
			if ok {
				select {
				case ch <- f:
				default:
				}
			}
		case frameEvent:
			if !s.listening.Load() {
				continue
			}
			evt, err := DecodeEvent(f.Event, f.Data)
			if err != nil {
				s.logger.Warn("bridge event dropped", zap.String("event", f.Event), zap.Error(err))
				continue
			}
			s.emit(evt)
		}
	}
}

func (s *bridgeSession) emit(evt Event) {
	select {
	case s.events <- evt:
	case <-s.stopCh:
	}
}

func (s *bridgeSession) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}
