package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"zalo-hub/internal/repository"
	"zalo-hub/internal/testutil"
	"zalo-hub/internal/zalo"

	"gorm.io/gorm"
)

type pushed struct {
	accountID uint
	event     string
	payload   any
}

type fakeGateway struct {
	mu     sync.Mutex
	events []pushed
	online bool
}

func (g *fakeGateway) SendToAccount(accountID uint, event string, payload any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, pushed{accountID: accountID, event: event, payload: payload})
	return g.online
}

func (g *fakeGateway) named(event string) []pushed {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []pushed
	for _, p := range g.events {
		if p.event == event {
			out = append(out, p)
		}
	}
	return out
}

// fakeAPI is a logged-in session that never touches the network.
type fakeAPI struct {
	ownID string

	mu           sync.Mutex
	profiles     map[string]zalo.UserProfile
	stickers     map[int64][]zalo.StickerDetail
	profileCalls int
	stickerCalls int
	sent         []zalo.Outgoing
	sendResult   zalo.SendResult
	sendErr      error
	// beforeReturn runs inside SendMessage, after the protocol accepted the
	// message but before the caller sees the result.
	beforeReturn func()
}

func (a *fakeAPI) OwnID() string { return a.ownID }

func (a *fakeAPI) SendMessage(_ context.Context, msg zalo.Outgoing, _ string, _ zalo.ThreadType) (zalo.SendResult, error) {
	a.mu.Lock()
	a.sent = append(a.sent, msg)
	hook := a.beforeReturn
	a.mu.Unlock()
	if a.sendErr != nil {
		return zalo.SendResult{}, a.sendErr
	}
	if hook != nil {
		hook()
	}
	return a.sendResult, nil
}

func (a *fakeAPI) GetUserInfo(_ context.Context, userID string) (zalo.UserProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profileCalls++
	p, ok := a.profiles[userID]
	if !ok {
		return zalo.UserProfile{}, errors.New("profile unavailable")
	}
	return p, nil
}

func (a *fakeAPI) GetStickersDetail(_ context.Context, stickerID int64) ([]zalo.StickerDetail, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stickerCalls++
	return a.stickers[stickerID], nil
}

func (a *fakeAPI) Listener() zalo.Listener { return nil }

type fakeSessions map[uint]zalo.Session

func (s fakeSessions) Session(accountID uint) (zalo.Session, bool) {
	sess, ok := s[accountID]
	return sess, ok
}

type stack struct {
	db           *gorm.DB
	messageRepo  repository.MessageRepository
	reactionRepo repository.ReactionRepository
	convRepo     repository.ConversationRepository
	friendRepo   repository.FriendRepository
	stickerRepo  repository.StickerRepository
	failedRepo   repository.FailedFileRepository
	resolver     *ConversationResolver
	messages     *MessageService
	stickers     *StickerService
	listener     *ListenerService
	gateway      *fakeGateway
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := testutil.NewDB(t)
	s := &stack{
		db:           db,
		messageRepo:  repository.NewMessageRepository(db),
		reactionRepo: repository.NewReactionRepository(db),
		convRepo:     repository.NewConversationRepository(db),
		friendRepo:   repository.NewFriendRepository(db),
		stickerRepo:  repository.NewStickerRepository(db),
		failedRepo:   repository.NewFailedFileRepository(db),
		gateway:      &fakeGateway{online: true},
	}
	s.resolver = NewConversationResolver(s.friendRepo, s.convRepo, nil)
	s.messages = NewMessageService(s.messageRepo, s.reactionRepo, s.convRepo, s.resolver, nil)
	s.stickers = NewStickerService(s.stickerRepo, nil, nil)
	s.listener = NewListenerService(s.messages, s.resolver, s.stickers, s.gateway, nil)
	return s
}

func textEvent(threadID, msgID, uidFrom, idTo string, isSelf bool, content string) *zalo.MessageEvent {
	return &zalo.MessageEvent{
		Type:     zalo.ThreadTypeUser,
		ThreadID: zalo.ID(threadID),
		IsSelf:   isSelf,
		Data: zalo.MessageData{
			MsgID:    zalo.ID(msgID),
			CliMsgID: zalo.ID("c" + msgID),
			UIDFrom:  zalo.ID(uidFrom),
			IDTo:     zalo.ID(idTo),
			MsgType:  "chat.msg",
			Ts:       "1700000000000",
			Content:  []byte(`"` + content + `"`),
		},
	}
}
