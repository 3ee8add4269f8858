package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zalo-hub/internal/domain/message"
	"zalo-hub/internal/redis"
	"zalo-hub/internal/services"
	"zalo-hub/internal/session"
	"zalo-hub/internal/status"
	"zalo-hub/internal/websocket"
	zalohub_errors "zalo-hub/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	got services.SendRequest
	out services.SendOutcome
	err error
}

func (f *fakeSender) Send(ctx context.Context, req services.SendRequest) (services.SendOutcome, error) {
	f.got = req
	return f.out, f.err
}

type fakeSessions struct {
	infos         []session.Info
	disconnectErr error
	reconnectErr  error
	disconnected  []uint
}

func (f *fakeSessions) Sessions() []session.Info { return f.infos }

func (f *fakeSessions) Disconnect(accountID uint) error {
	f.disconnected = append(f.disconnected, accountID)
	return f.disconnectErr
}

func (f *fakeSessions) Reconnect(ctx context.Context, accountID uint) error {
	return f.reconnectErr
}

type fakeQuota struct {
	used  map[uint]int
	limit int
}

func (f *fakeQuota) SendStatus(ctx context.Context, accountID uint) (*redis.RateLimitResult, error) {
	return &redis.RateLimitResult{
		Allowed:   f.used[accountID] < f.limit,
		Remaining: f.limit - f.used[accountID],
		ResetIn:   42 * time.Second,
		Limit:     f.limit,
	}, nil
}

func (f *fakeQuota) ResetSend(ctx context.Context, accountID uint) error {
	delete(f.used, accountID)
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func zaloRouter(sender Sender, sessions SessionControl) *gin.Engine {
	return zaloRouterWithQuota(sender, sessions, nil)
}

func zaloRouterWithQuota(sender Sender, sessions SessionControl, quota SendQuota) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewZaloHandler(sender, sessions, quota)
	r := gin.New()
	r.POST("/zalo/send-message", h.SendMessage)
	r.POST("/zalo/send-message-with-attachments", h.SendMessageWithAttachments)
	r.GET("/zalo/sessions", h.Sessions)
	r.POST("/zalo/accounts/:id/disconnect", h.DisconnectAccount)
	r.POST("/zalo/accounts/:id/reconnect", h.ReconnectAccount)
	r.GET("/zalo/accounts/:id/send-quota", h.SendQuota)
	r.DELETE("/zalo/accounts/:id/send-quota", h.ResetSendQuota)
	return r
}

func do(t *testing.T, r http.Handler, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSendMessage(t *testing.T) {
	sender := &fakeSender{out: services.SendOutcome{Message: message.Message{ID: 3, MsgID: "m-500", Status: message.StatusSent}}}
	r := zaloRouter(sender, &fakeSessions{})

	code, env := do(t, r, jsonRequest(http.MethodPost, "/zalo/send-message", `{"accountId":5,"threadId":"U2","message":"hi"}`))
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"msg_id":"m-500"`)
	assert.Equal(t, services.SendRequest{AccountID: 5, ThreadID: "U2", Text: "hi"}, sender.got)

	code, env = do(t, r, jsonRequest(http.MethodPost, "/zalo/send-message", `{"threadId":"U2"}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_REQUEST", env.Code)
}

func TestSendMessageErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		name string
	}{
		{zalohub_errors.ErrSessionNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("%w: empty message", zalohub_errors.ErrInvalidInput), http.StatusBadRequest, "INVALID_REQUEST"},
		{zalohub_errors.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{zalohub_errors.ErrConversationNotFound, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		r := zaloRouter(&fakeSender{err: tc.err}, &fakeSessions{})
		code, env := do(t, r, jsonRequest(http.MethodPost, "/zalo/send-message", `{"accountId":5,"threadId":"U2","message":"hi"}`))
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.Equal(t, tc.name, env.Code)
		assert.False(t, env.Success)
	}
}

func multipartRequest(t *testing.T, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files[]", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/zalo/send-message-with-attachments", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSendMessageWithAttachments(t *testing.T) {
	sender := &fakeSender{out: services.SendOutcome{Message: message.Message{ID: 9}}}
	r := zaloRouter(sender, &fakeSessions{})

	req := multipartRequest(t,
		map[string]string{"accountId": "5", "threadId": "U2", "message": "files"},
		map[string]string{"a.txt": "alpha", "b.png": "beta"})
	code, env := do(t, r, req)
	require.Equal(t, http.StatusOK, code, env.Error)

	require.Len(t, sender.got.Attachments, 2)
	byName := map[string]string{}
	for _, a := range sender.got.Attachments {
		byName[a.Name] = string(a.Data)
		assert.NotEmpty(t, a.MimeType)
	}
	assert.Equal(t, map[string]string{"a.txt": "alpha", "b.png": "beta"}, byName)
	assert.Equal(t, "files", sender.got.Text)

	code, _ = do(t, r, multipartRequest(t, map[string]string{"accountId": "5", "threadId": "U2"}, nil))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSendFailureReportsParkedFiles(t *testing.T) {
	sender := &fakeSender{
		out: services.SendOutcome{Message: message.Message{ID: 12, Status: message.StatusFailed}, Saved: 2},
		err: fmt.Errorf("%w: 2 files saved locally", zalohub_errors.ErrSendFailed),
	}
	r := zaloRouter(sender, &fakeSessions{})

	req := multipartRequest(t,
		map[string]string{"accountId": "5", "threadId": "U2"},
		map[string]string{"a.txt": "alpha", "b.txt": "beta"})
	code, env := do(t, r, req)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "send failed: 2 files saved locally", env.Error)
	assert.JSONEq(t, `{"message_id":12,"saved_files":2,"failed_files":0}`, string(env.Data))
}

func TestSessionEndpoints(t *testing.T) {
	at := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	sessions := &fakeSessions{infos: []session.Info{{AccountID: 5, UserID: "owner-5", OwnID: "U2", ConnectedAt: at}}}
	r := zaloRouter(&fakeSender{}, sessions)

	code, env := do(t, r, httptest.NewRequest(http.MethodGet, "/zalo/sessions", nil))
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"own_id":"U2"`)

	code, _ = do(t, r, httptest.NewRequest(http.MethodPost, "/zalo/accounts/5/disconnect", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []uint{5}, sessions.disconnected)

	sessions.disconnectErr = zalohub_errors.ErrSessionNotFound
	code, _ = do(t, r, httptest.NewRequest(http.MethodPost, "/zalo/accounts/6/disconnect", nil))
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, r, httptest.NewRequest(http.MethodPost, "/zalo/accounts/abc/reconnect", nil))
	assert.Equal(t, http.StatusBadRequest, code)

	sessions.reconnectErr = zalohub_errors.ErrInvalidCredentials
	code, _ = do(t, r, httptest.NewRequest(http.MethodPost, "/zalo/accounts/5/reconnect", nil))
	assert.Equal(t, http.StatusBadRequest, code)
}

func socketRouter(t *testing.T) (*gin.Engine, *websocket.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := websocket.NewHub(status.NewBook(10), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	h := NewSocketHandler(hub)
	r := gin.New()
	g := r.Group("/socket")
	g.GET("/stats", h.Stats)
	g.GET("/connected-accounts", h.ConnectedAccounts)
	g.GET("/account/:id/status", h.AccountStatus)
	g.GET("/account/:id/history", h.AccountHistory)
	g.POST("/accounts/:id/disconnect", h.DisconnectAccount)
	g.GET("/user/:id/accounts", h.UserAccounts)
	g.POST("/users/:id/disconnect", h.DisconnectUser)
	g.GET("/connections/count", h.ConnectionCount)
	g.GET("/all-connections", h.AllConnections)
	return r, hub
}

func TestSocketEndpoints(t *testing.T) {
	r, hub := socketRouter(t)
	require.True(t, hub.Register(websocket.NewClient(hub, nil, "u1"), []uint{7, 8}))
	require.True(t, hub.Register(websocket.NewClient(hub, nil, "u2"), []uint{8}))
	require.Eventually(t, func() bool {
		return hub.Registry().Stats().Sockets == 2
	}, time.Second, 5*time.Millisecond)

	code, env := do(t, r, httptest.NewRequest(http.MethodGet, "/socket/connected-accounts", nil))
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"account_ids":[7,8],"count":2}`, string(env.Data))

	_, env = do(t, r, httptest.NewRequest(http.MethodGet, "/socket/stats", nil))
	assert.JSONEq(t, `{"sockets":2,"accounts":2,"users":2}`, string(env.Data))

	_, env = do(t, r, httptest.NewRequest(http.MethodGet, "/socket/connections/count", nil))
	assert.JSONEq(t, `{"sockets":2,"accounts":2}`, string(env.Data))

	_, env = do(t, r, httptest.NewRequest(http.MethodGet, "/socket/account/8/status", nil))
	assert.Contains(t, string(env.Data), `"socket_count":2`)

	_, env = do(t, r, httptest.NewRequest(http.MethodGet, "/socket/account/7/history", nil))
	var history []status.Entry
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, status.StateConnected, history[0].State)

	_, env = do(t, r, httptest.NewRequest(http.MethodGet, "/socket/user/u1/accounts", nil))
	assert.JSONEq(t, `{"user_id":"u1","account_ids":[7,8],"sockets":1}`, string(env.Data))

	_, env = do(t, r, httptest.NewRequest(http.MethodGet, "/socket/all-connections", nil))
	var conns []websocket.Connection
	require.NoError(t, json.Unmarshal(env.Data, &conns))
	assert.Len(t, conns, 3)

	_, env = do(t, r, httptest.NewRequest(http.MethodPost, "/socket/accounts/8/disconnect", nil))
	assert.JSONEq(t, `{"disconnected":2}`, string(env.Data))
	assert.Equal(t, []uint{7}, hub.Registry().ConnectedAccounts())

	_, env = do(t, r, httptest.NewRequest(http.MethodPost, "/socket/users/u1/disconnect", nil))
	assert.JSONEq(t, `{"disconnected":1}`, string(env.Data))
	require.Eventually(t, func() bool {
		return len(hub.Registry().ConnectedAccounts()) == 0
	}, time.Second, 5*time.Millisecond)

	code, _ = do(t, r, httptest.NewRequest(http.MethodGet, "/socket/account/x/status", nil))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSendQuota(t *testing.T) {
	quota := &fakeQuota{used: map[uint]int{4: 10}, limit: 30}
	r := zaloRouterWithQuota(&fakeSender{}, &fakeSessions{}, quota)

	code, env := do(t, r, httptest.NewRequest(http.MethodGet, "/zalo/accounts/4/send-quota", nil))
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"account_id":4,"limit":30,"remaining":20,"reset_in_seconds":42}`, string(env.Data))

	code, _ = do(t, r, httptest.NewRequest(http.MethodDelete, "/zalo/accounts/4/send-quota", nil))
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, quota.used, uint(4))

	code, env = do(t, zaloRouter(&fakeSender{}, &fakeSessions{}), httptest.NewRequest(http.MethodGet, "/zalo/accounts/4/send-quota", nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "UNAVAILABLE", env.Code)
}
