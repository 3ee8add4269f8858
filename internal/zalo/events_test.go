package zalo

import (
	"encoding/json"
	"errors"
	"testing"

	zalohub_errors "zalo-hub/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentials(t *testing.T) {
	cases := []struct {
		name   string
		cookie string
		imei   string
		ua     string
		ok     bool
	}{
		{"array", `[{"key":"zpsid","value":"a"}]`, "imei", "ua", true},
		{"wrapped", `{"cookies":[{"name":"zpw_sek","value":"b"}]}`, "imei", "ua", true},
		{"missing imei", `[{"key":"zpsid","value":"a"}]`, " ", "ua", false},
		{"missing user agent", `[{"key":"zpsid","value":"a"}]`, "imei", "", false},
		{"not json", `zpsid=a; zpw_sek=b`, "imei", "ua", false},
		{"broken json", `[{"key":`, "imei", "ua", false},
		{"empty list", `[]`, "imei", "ua", false},
		{"nameless cookie", `[{"value":"a"}]`, "imei", "ua", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds, err := ParseCredentials(tc.cookie, tc.imei, tc.ua)
			if !tc.ok {
				assert.True(t, errors.Is(err, zalohub_errors.ErrInvalidCredentials), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tc.cookie, string(creds.Cookie))
		})
	}
}

func TestIDAcceptsStringsAndNumbers(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"123","b":7240000000000000001,"c":null}`), &v))
	assert.Equal(t, ID("123"), v.A)
	assert.Equal(t, ID("7240000000000000001"), v.B)
	assert.Equal(t, ID(""), v.C)
	assert.Equal(t, int64(123), v.A.Int64())
	assert.Zero(t, ID("abc").Int64())
}

func TestDecodeEvent(t *testing.T) {
	evt, err := DecodeEvent(EventReaction, json.RawMessage(`{"threadId":"U1","data":{"uidFrom":"U1","content":{"rMsg":[{"gMsgID":"g1","cMsgID":"c1"}],"rIcon":"","rType":-1}}}`))
	require.NoError(t, err)
	r, ok := evt.(*ReactionEvent)
	require.True(t, ok)
	assert.True(t, r.Removal())
	assert.Equal(t, "g1", r.Data.Content.RMsg[0].GMsgID.String())

	evt, err = DecodeEvent(EventSeen, json.RawMessage(`{"threadId":"U1","msgIds":["m1",2]}`))
	require.NoError(t, err)
	assert.Equal(t, []ID{"m1", "2"}, evt.(*SeenEvent).MsgIDs)

	evt, err = DecodeEvent(EventError, json.RawMessage(`{"message":"session kicked"}`))
	require.NoError(t, err)
	assert.EqualError(t, evt.(*ErrorEvent).Err, "session kicked")

	evt, err = DecodeEvent(EventError, nil)
	require.NoError(t, err)
	assert.EqualError(t, evt.(*ErrorEvent).Err, "listener error")

	_, err = DecodeEvent("group_event", json.RawMessage(`{}`))
	assert.Error(t, err)

	_, err = DecodeEvent(EventMessage, json.RawMessage(`{"data":[]}`))
	assert.Error(t, err)
}

func TestSendResultPrimaryMsgID(t *testing.T) {
	assert.Equal(t, "1", SendResult{MsgID: "1", AttachmentMsgIDs: []ID{"2"}}.PrimaryMsgID())
	assert.Equal(t, "2", SendResult{AttachmentMsgIDs: []ID{"2", "3"}}.PrimaryMsgID())
	assert.Equal(t, "", SendResult{}.PrimaryMsgID())
}
