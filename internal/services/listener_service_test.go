package services

import (
	"context"
	"testing"

	"zalo-hub/internal/domain/contact"
	"zalo-hub/internal/domain/conversation"
	"zalo-hub/internal/domain/message"
	"zalo-hub/internal/events"
	"zalo-hub/internal/testutil"
	"zalo-hub/internal/zalo"
	zalohub_errors "zalo-hub/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countMessages(t *testing.T, s *stack) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(&message.Message{}).Count(&n).Error)
	return n
}

func TestInboundMessageIsStoredAndPushed(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 5, "U2")
	conv := testutil.CreateConversation(t, s.db, 5, "U2", "U1")
	api := &fakeAPI{ownID: "U2"}

	s.listener.HandleEvent(ctx, 5, api, textEvent("U1", "m-100", "U1", "U2", false, "hi"))

	stored, err := s.messageRepo.FindByNaturalKey(ctx, "m-100", false)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, stored.ConversationID)
	assert.Equal(t, "hi", stored.Content)
	assert.Equal(t, message.StatusSent, stored.Status)
	assert.Equal(t, message.OriginSocket, stored.Origin)
	assert.Equal(t, int64(1700000000000), stored.Ts)
	assert.Zero(t, api.profileCalls, "known contact must not be fetched")

	got := s.gateway.named(events.EventNewMessage)
	require.Len(t, got, 1)
	assert.Equal(t, uint(5), got[0].accountID)
	payload, ok := got[0].payload.(events.NewMessagePayload)
	require.True(t, ok)
	assert.True(t, payload.Created)
	assert.Equal(t, conv.ID, payload.ConversationID)
	assert.Equal(t, "m-100", payload.Message.MsgID)

	c, err := s.convRepo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, c.LastMessageAt)
}

func TestDuplicateMessageIsStoredOnce(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 5, "U2")
	testutil.CreateConversation(t, s.db, 5, "U2", "U1")
	api := &fakeAPI{ownID: "U2"}

	s.listener.HandleEvent(ctx, 5, api, textEvent("U1", "m-100", "U1", "U2", false, "hi"))
	s.listener.HandleEvent(ctx, 5, api, textEvent("U1", "m-100", "U1", "U2", false, "hi (edited)"))

	assert.Equal(t, int64(1), countMessages(t, s))
	stored, err := s.messageRepo.FindByNaturalKey(ctx, "m-100", false)
	require.NoError(t, err)
	assert.Equal(t, "hi (edited)", stored.Content)

	got := s.gateway.named(events.EventNewMessage)
	require.Len(t, got, 2)
	assert.False(t, got[1].payload.(events.NewMessagePayload).Created)
}

func TestSelfAndInboundResolveToSameConversation(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 5, "U2")
	conv := testutil.CreateConversation(t, s.db, 5, "U2", "U1")
	api := &fakeAPI{ownID: "U2"}

	s.listener.HandleEvent(ctx, 5, api, textEvent("U1", "m-1", "U1", "U2", false, "ping"))
	s.listener.HandleEvent(ctx, 5, api, textEvent("U1", "m-2", "U2", "U1", true, "pong"))

	in, err := s.messageRepo.FindByNaturalKey(ctx, "m-1", false)
	require.NoError(t, err)
	out, err := s.messageRepo.FindByNaturalKey(ctx, "m-2", true)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, in.ConversationID)
	assert.Equal(t, conv.ID, out.ConversationID)

	_, err = s.resolver.Resolve(ctx, 5, "U2", "U1", false)
	assert.ErrorIs(t, err, zalohub_errors.ErrConversationNotFound)
}

func TestSelfMessageWithoutConversationIsDropped(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 5, "U2")
	api := &fakeAPI{ownID: "U2"}

	s.listener.HandleEvent(ctx, 5, api, textEvent("U9", "m-1", "U2", "U9", true, "hello?"))

	assert.Zero(t, countMessages(t, s))
	assert.Empty(t, s.gateway.named(events.EventNewMessage))
}

func TestStrangerGetsFriendAndConversation(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 1, "OWN")
	api := &fakeAPI{
		ownID: "OWN",
		profiles: map[string]zalo.UserProfile{
			"S1": {UserID: "S1", DisplayName: " Stranger ", ZaloName: "stranger.z", Avatar: "https://a/s1.jpg", Gender: 1},
		},
	}

	s.listener.HandleEvent(ctx, 1, api, textEvent("S1", "m-9", "S1", "OWN", false, "hello"))

	f, err := s.friendRepo.GetByUserKey(ctx, 1, "S1")
	require.NoError(t, err)
	assert.Equal(t, contact.FriendshipStranger, f.IsFr)
	assert.Equal(t, "Stranger", f.DisplayName)
	assert.Equal(t, "https://a/s1.jpg", f.Avatar)

	c, err := s.convRepo.FindByPair(ctx, 1, "OWN", "S1")
	require.NoError(t, err)
	assert.Equal(t, f.ID, c.FriendID)
	assert.Equal(t, contact.FriendshipStranger, c.IsFr)

	m, err := s.messageRepo.FindByNaturalKey(ctx, "m-9", false)
	require.NoError(t, err)
	assert.Equal(t, c.ID, m.ConversationID)
	assert.Equal(t, 1, api.profileCalls)

	// a second message from the same stranger reuses the pair
	s.listener.HandleEvent(ctx, 1, api, textEvent("S1", "m-10", "S1", "OWN", false, "again"))
	assert.Equal(t, 1, api.profileCalls)
	var convs int64
	require.NoError(t, s.db.Model(&conversation.Conversation{}).Count(&convs).Error)
	assert.Equal(t, int64(1), convs)
}

func TestStrangerWithoutProfileIsStillStored(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 1, "OWN")
	api := &fakeAPI{ownID: "OWN"}

	s.listener.HandleEvent(ctx, 1, api, textEvent("S2", "m-1", "S2", "OWN", false, "hey"))

	f, err := s.friendRepo.GetByUserKey(ctx, 1, "S2")
	require.NoError(t, err)
	assert.Empty(t, f.DisplayName)
	assert.Equal(t, int64(1), countMessages(t, s))
}

func TestGroupAndBankQRMessagesAreDropped(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 5, "U2")
	testutil.CreateConversation(t, s.db, 5, "U2", "U1")
	api := &fakeAPI{ownID: "U2"}

	group := textEvent("G1", "m-1", "U1", "G1", false, "team")
	group.Type = zalo.ThreadTypeGroup
	s.listener.HandleEvent(ctx, 5, api, group)

	qr := textEvent("U1", "m-2", "U1", "U2", false, "")
	qr.Data.MsgType = MsgTypeWebContent
	qr.Data.Content = []byte(`{"action":"zinstant.bank.transfer","title":"QR"}`)
	s.listener.HandleEvent(ctx, 5, api, qr)

	assert.Zero(t, countMessages(t, s))
	assert.Empty(t, s.gateway.events)
}

func TestReactionsHaveSetSemantics(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 5, "U2")
	conv := testutil.CreateConversation(t, s.db, 5, "U2", "U1")
	target := testutil.CreateMessage(t, s.db, conv, "g-1", true)
	api := &fakeAPI{ownID: "U2"}

	react := func(icon string, rType int) *zalo.ReactionEvent {
		return &zalo.ReactionEvent{
			ThreadID: "U1",
			Data: zalo.ReactionData{
				MsgID:   "r-1",
				UIDFrom: "U1",
				IDTo:    "U2",
				Content: zalo.ReactionContent{
					RMsg:  []zalo.ReactionTarget{{GMsgID: "g-1", CMsgID: "cg-1"}},
					RIcon: icon,
					RType: rType,
				},
			},
		}
	}
	key := message.ReactionKey{AccountID: 5, GMsgID: "g-1", CMsgID: "cg-1", ThreadID: "U1", UIDFrom: "U1"}

	s.listener.HandleEvent(ctx, 5, api, react("/-heart", 5))
	s.listener.HandleEvent(ctx, 5, api, react("/-strong", 3))

	rows, err := s.reactionRepo.ListByKey(ctx, key)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "/-strong", rows[0].RIcon)
	require.NotNil(t, rows[0].MessageID)
	assert.Equal(t, target.ID, *rows[0].MessageID)

	s.listener.HandleEvent(ctx, 5, api, react("", -1))
	rows, err = s.reactionRepo.ListByKey(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, rows)

	got := s.gateway.named(events.EventNewReaction)
	require.Len(t, got, 3)
	assert.True(t, got[2].payload.(events.ReactionPayload).Removed)
}

func TestSeenReceiptsAreIdempotent(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 5, "U2")
	conv := testutil.CreateConversation(t, s.db, 5, "U2", "U1")
	testutil.CreateMessage(t, s.db, conv, "m-1", true)
	testutil.CreateMessage(t, s.db, conv, "m-2", false)
	api := &fakeAPI{ownID: "U2"}

	seen := &zalo.SeenEvent{ThreadID: "U1", MsgIDs: []zalo.ID{"m-1"}}
	s.listener.HandleEvent(ctx, 5, api, seen)
	s.listener.HandleEvent(ctx, 5, api, seen)

	var unread int64
	require.NoError(t, s.db.Model(&message.Message{}).Where("is_read = ?", false).Count(&unread).Error)
	assert.Zero(t, unread)

	got := s.gateway.named(events.EventMessagesSeen)
	require.Len(t, got, 2)
	first := got[0].payload.(events.MessagesSeenPayload)
	second := got[1].payload.(events.MessagesSeenPayload)
	assert.Equal(t, []uint{conv.ID}, first.ConversationIDs)
	assert.Equal(t, int64(2), first.Updated)
	assert.Equal(t, int64(0), second.Updated)
}

func TestSeenForUnknownMessagesIsDropped(t *testing.T) {
	s := newStack(t)
	testutil.CreateAccount(t, s.db, 5, "U2")

	s.listener.HandleEvent(context.Background(), 5, &fakeAPI{ownID: "U2"}, &zalo.SeenEvent{ThreadID: "U1", MsgIDs: []zalo.ID{"nope"}})

	assert.Empty(t, s.gateway.events)
}

func TestUndoFlagsMessage(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 5, "U2")
	conv := testutil.CreateConversation(t, s.db, 5, "U2", "U1")
	m := testutil.CreateMessage(t, s.db, conv, "g-7", false)
	api := &fakeAPI{ownID: "U2"}

	undo := &zalo.UndoEvent{
		ThreadID: "U1",
		Data: zalo.UndoData{
			MsgID:   "u-1",
			UIDFrom: "U1",
			IDTo:    "U2",
			Content: zalo.UndoContent{GlobalMsgID: "g-7", CliMsgID: "cg-7"},
		},
	}
	s.listener.HandleEvent(ctx, 5, api, undo)

	got, err := s.messageRepo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Undo)
	require.Len(t, s.gateway.named(events.EventNewUndo), 1)

	// unknown target
	undo.Data.Content.GlobalMsgID = "g-unknown"
	s.listener.HandleEvent(ctx, 5, api, undo)
	assert.Len(t, s.gateway.named(events.EventNewUndo), 1)
}

func TestQuoteLinksToStoredMessage(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 5, "U2")
	conv := testutil.CreateConversation(t, s.db, 5, "U2", "U1")
	quoted := testutil.CreateMessage(t, s.db, conv, "g-1", true)
	api := &fakeAPI{ownID: "U2"}

	evt := textEvent("U1", "m-2", "U1", "U2", false, "re")
	evt.Data.Quote = &zalo.Quote{OwnerID: "U2", GlobalMsgID: "g-1", CliMsgID: "cg-1", Msg: "hello"}
	s.listener.HandleEvent(ctx, 5, api, evt)

	m, err := s.messageRepo.FindByNaturalKey(ctx, "m-2", false)
	require.NoError(t, err)
	require.NotNil(t, m.QuoteMessageID)
	assert.Equal(t, quoted.ID, *m.QuoteMessageID)
	assert.NotEmpty(t, m.Quote)
}

func TestStickerMetadataIsFetchedOnce(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 5, "U2")
	testutil.CreateConversation(t, s.db, 5, "U2", "U1")
	api := &fakeAPI{
		ownID: "U2",
		stickers: map[int64][]zalo.StickerDetail{
			46: {{ID: 46, CateID: 10, Type: 7, StickerURL: "https://s/46.png", Text: "wave"}},
		},
	}

	for _, id := range []string{"m-1", "m-2"} {
		evt := textEvent("U1", id, "U1", "U2", false, "")
		evt.Data.MsgType = MsgTypeSticker
		evt.Data.Content = []byte(`{"id":46,"catId":10,"type":7}`)
		s.listener.HandleEvent(ctx, 5, api, evt)
	}

	assert.Equal(t, 1, api.stickerCalls)
	m1, err := s.messageRepo.FindByNaturalKey(ctx, "m-1", false)
	require.NoError(t, err)
	m2, err := s.messageRepo.FindByNaturalKey(ctx, "m-2", false)
	require.NoError(t, err)
	require.NotNil(t, m1.StickerID)
	require.NotNil(t, m2.StickerID)
	assert.Equal(t, *m1.StickerID, *m2.StickerID)

	st, err := s.stickerRepo.Get(ctx, 46, 10, 7)
	require.NoError(t, err)
	assert.Equal(t, "wave", st.Text)
}

func TestFriendEventUpdatesFriendship(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testutil.CreateAccount(t, s.db, 5, "U2")
	conv := testutil.CreateConversation(t, s.db, 5, "U2", "U1")
	api := &fakeAPI{ownID: "U2"}

	s.listener.HandleEvent(ctx, 5, api, &zalo.FriendEvent{Type: zalo.FriendEventRemove, ThreadID: "U1"})

	c, err := s.convRepo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, contact.FriendshipStranger, c.IsFr)
	f, err := s.friendRepo.GetByID(ctx, conv.FriendID)
	require.NoError(t, err)
	assert.Equal(t, contact.FriendshipStranger, f.IsFr)

	s.listener.HandleEvent(ctx, 5, api, &zalo.FriendEvent{Type: zalo.FriendEventBlock, ThreadID: "U1"})
	f, err = s.friendRepo.GetByID(ctx, conv.FriendID)
	require.NoError(t, err)
	assert.True(t, f.IsBlocked)

	got := s.gateway.named(events.EventNewFriendEvent)
	require.Len(t, got, 2)
	assert.True(t, got[1].payload.(events.FriendEventPayload).IsBlocked)
}
