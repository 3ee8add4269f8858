package zalo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	zalohub_errors "zalo-hub/pkg/errors"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sidecar is a fake protocol bridge answering one connection at a time.
type sidecar struct {
	loginErr string
	// afterStart runs once the listener is started; returning true ends the
	// connection.
	afterStart func(conn *websocket.Conn) bool
}

func (s *sidecar) serve(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		reply := frame{Type: frameResult, ID: f.ID}
		switch {
		case f.Type == frameLogin && s.loginErr != "":
			reply.Error = s.loginErr
		case f.Type == frameLogin:
			reply.Data = json.RawMessage(`{"uid":100}`)
		case f.Method == methodStartListener:
			reply.Data = json.RawMessage(`{}`)
		case f.Method == methodSendMessage:
			reply.Data = json.RawMessage(`{"msgId":555}`)
		case f.Method == methodGetUserInfo:
			reply.Error = "user not found"
		case f.Method == methodGetStickersDetail:
			reply.Data = json.RawMessage(`[{"id":7,"cateId":3,"type":1,"stickerUrl":"https://s/7.png"}]`)
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
		if f.Method == methodStartListener && s.afterStart != nil && s.afterStart(conn) {
			return
		}
	}
}

func startSidecar(t *testing.T, s *sidecar) *BridgeClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return NewBridgeClient(BridgeConfig{URL: url, CallTimeout: 2 * time.Second}, nil)
}

func testCredentials(t *testing.T) Credentials {
	t.Helper()
	creds, err := ParseCredentials(`[{"key":"zpsid","value":"x"}]`, "imei-1", "Mozilla/5.0")
	require.NoError(t, err)
	return creds
}

func nextEvent(t *testing.T, events <-chan Event) (Event, bool) {
	t.Helper()
	select {
	case evt, ok := <-events:
		return evt, ok
	case <-time.After(2 * time.Second):
		t.Fatal("no event from bridge")
		return nil, false
	}
}

func TestBridgeLoginAndCalls(t *testing.T) {
	client := startSidecar(t, &sidecar{
		afterStart: func(conn *websocket.Conn) bool {
			_ = conn.WriteJSON(frame{
				Type:  frameEvent,
				Event: EventMessage,
				Data:  json.RawMessage(`{"threadId":"U1","isSelf":false,"data":{"msgId":"m-1","uidFrom":"U1","idTo":"100","msgType":"webchat","content":"hi"}}`),
			})
			return false
		},
	})
	ctx := context.Background()

	sess, err := client.Login(ctx, testCredentials(t))
	require.NoError(t, err)
	assert.Equal(t, "100", sess.OwnID())

	listener := sess.Listener()
	require.NoError(t, listener.Start(ctx))

	evt, ok := nextEvent(t, listener.Events())
	require.True(t, ok)
	msg, isMsg := evt.(*MessageEvent)
	require.True(t, isMsg)
	assert.Equal(t, "m-1", msg.Data.MsgID.String())
	assert.Equal(t, `"hi"`, string(msg.Data.Content))

	res, err := sess.SendMessage(ctx, Outgoing{Text: "yo"}, "U1", ThreadTypeUser)
	require.NoError(t, err)
	assert.Equal(t, "555", res.PrimaryMsgID())

	_, err = sess.GetUserInfo(ctx, "U1")
	assert.EqualError(t, err, "user not found")

	details, err := sess.GetStickersDetail(ctx, 7)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, int64(3), details[0].CateID)

	listener.Stop()
	for {
		if _, ok := nextEvent(t, listener.Events()); !ok {
			break
		}
	}
	_, err = sess.SendMessage(ctx, Outgoing{Text: "late"}, "U1", ThreadTypeUser)
	assert.True(t, errors.Is(err, zalohub_errors.ErrBridgeClosed), "got %v", err)
}

func TestBridgeLoginRejected(t *testing.T) {
	client := startSidecar(t, &sidecar{loginErr: "cookie expired"})

	_, err := client.Login(context.Background(), testCredentials(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cookie expired")
}

func TestBridgeCloseBecomesDisconnectEvent(t *testing.T) {
	client := startSidecar(t, &sidecar{
		afterStart: func(conn *websocket.Conn) bool {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4000, "kicked"))
			return true
		},
	})
	ctx := context.Background()

	sess, err := client.Login(ctx, testCredentials(t))
	require.NoError(t, err)
	require.NoError(t, sess.Listener().Start(ctx))

	evt, ok := nextEvent(t, sess.Listener().Events())
	require.True(t, ok)
	disc, isDisc := evt.(*DisconnectEvent)
	require.True(t, isDisc, "got %T", evt)
	assert.Equal(t, 4000, disc.Code)
	assert.Equal(t, "kicked", disc.Reason)

	_, ok = nextEvent(t, sess.Listener().Events())
	assert.False(t, ok)
}

func TestBridgeDialFailure(t *testing.T) {
	client := NewBridgeClient(BridgeConfig{URL: "ws://127.0.0.1:1/bridge", HandshakeTimeout: time.Second}, nil)

	_, err := client.Login(context.Background(), Credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial bridge")
}
