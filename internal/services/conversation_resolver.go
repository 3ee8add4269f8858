package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"zalo-hub/internal/domain/contact"
	"zalo-hub/internal/domain/conversation"
	"zalo-hub/internal/repository"
	"zalo-hub/internal/zalo"
	zalohub_errors "zalo-hub/pkg/errors"

	"go.uber.org/zap"
)

// ConversationResolver maps asymmetric sender/receiver ids onto conversation rows.
type ConversationResolver struct {
	friendRepo       repository.FriendRepository
	conversationRepo repository.ConversationRepository
	logger           *zap.Logger
}

func NewConversationResolver(friendRepo repository.FriendRepository, conversationRepo repository.ConversationRepository, logger *zap.Logger) *ConversationResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationResolver{
		friendRepo:       friendRepo,
		conversationRepo: conversationRepo,
		logger:           logger,
	}
}

// Resolve finds the conversation for a message. A miss is reported as
// ErrConversationNotFound and the caller drops the event.
func (r *ConversationResolver) Resolve(ctx context.Context, accountID uint, uidFrom, idTo string, isSelf bool) (conversation.Conversation, error) {
	return r.resolvePair(ctx, accountID, PairFor(isSelf, uidFrom, idTo))
}

func (r *ConversationResolver) resolvePair(ctx context.Context, accountID uint, p Pair) (conversation.Conversation, error) {
	c, err := r.conversationRepo.FindByPair(ctx, accountID, p.UserZaloID, p.UserKey)
	if err != nil {
		if errors.Is(err, zalohub_errors.ErrNotFound) {
			return conversation.Conversation{}, fmt.Errorf("%w: account %d user_zalo_id %s user_key %s",
				zalohub_errors.ErrConversationNotFound, accountID, p.UserZaloID, p.UserKey)
		}
		return conversation.Conversation{}, err
	}
	return c, nil
}

// EnsureContact makes sure an inbound sender has a Friend and a Conversation.
// Strangers get their profile fetched and a new pair created with the
// stranger friendship flag. The bool result reports creation.
func (r *ConversationResolver) EnsureContact(ctx context.Context, accountID uint, api zalo.API, uidFrom, idTo string) (conversation.Conversation, bool, error) {
	p := PairFor(false, uidFrom, idTo)
	if p.UserKey == "" || p.UserZaloID == "" {
		return conversation.Conversation{}, false, fmt.Errorf("%w: empty sender or receiver id", zalohub_errors.ErrInvalidInput)
	}

	if c, err := r.conversationRepo.FindByPair(ctx, accountID, p.UserZaloID, p.UserKey); err == nil {
		return c, false, nil
	} else if !errors.Is(err, zalohub_errors.ErrNotFound) {
		return conversation.Conversation{}, false, err
	}

	friend, err := r.friendRepo.GetByUserKey(ctx, accountID, p.UserKey)
	switch {
	case err == nil:
		return r.attachConversation(ctx, accountID, friend, p)
	case !errors.Is(err, zalohub_errors.ErrNotFound):
		return conversation.Conversation{}, false, err
	}

	f := contact.Friend{
		AccountID: accountID,
		UserID:    uidFrom,
		UserKey:   p.UserKey,
		IsFr:      contact.FriendshipStranger,
	}
	if api != nil {
		profile, err := api.GetUserInfo(ctx, uidFrom)
		if err != nil {
			r.logger.Warn("fetch stranger profile failed",
				zap.Uint("account_id", accountID),
				zap.String("uid", uidFrom),
				zap.Error(err))
		} else {
			applyProfile(&f, profile)
		}
	}

	c := conversation.Conversation{
		AccountID:  accountID,
		UserZaloID: p.UserZaloID,
		UserKey:    p.UserKey,
		IsFr:       contact.FriendshipStranger,
	}
	if err := r.conversationRepo.CreateWithFriend(ctx, &f, &c); err != nil {
		if errors.Is(err, zalohub_errors.ErrAlreadyExists) {
			// another handler created the pair first
			existing, ferr := r.resolvePair(ctx, accountID, p)
			if ferr != nil {
				return conversation.Conversation{}, false, ferr
			}
			return existing, false, nil
		}
		return conversation.Conversation{}, false, fmt.Errorf("create friend and conversation: %w", err)
	}

	r.logger.Info("created conversation for new contact",
		zap.Uint("account_id", accountID),
		zap.Uint("conversation_id", c.ID),
		zap.String("user_key", p.UserKey))
	c.Friend = &f
	return c, true, nil
}

// attachConversation covers a known friend that has no thread for this pair yet.
func (r *ConversationResolver) attachConversation(ctx context.Context, accountID uint, friend contact.Friend, p Pair) (conversation.Conversation, bool, error) {
	c := conversation.Conversation{
		AccountID:  accountID,
		FriendID:   friend.ID,
		UserZaloID: p.UserZaloID,
		UserKey:    p.UserKey,
		IsFr:       friend.IsFr,
	}
	if err := r.conversationRepo.Create(ctx, &c); err != nil {
		if errors.Is(err, zalohub_errors.ErrAlreadyExists) {
			existing, gerr := r.conversationRepo.GetByFriend(ctx, accountID, friend.ID)
			if gerr != nil {
				return conversation.Conversation{}, false, gerr
			}
			return existing, false, nil
		}
		return conversation.Conversation{}, false, err
	}
	return c, true, nil
}

func applyProfile(f *contact.Friend, p zalo.UserProfile) {
	if id := p.UserID.String(); id != "" {
		f.UserID = id
	}
	f.DisplayName = strings.TrimSpace(p.DisplayName)
	f.ZaloName = strings.TrimSpace(p.ZaloName)
	if f.DisplayName == "" {
		f.DisplayName = f.ZaloName
	}
	f.Avatar = p.Avatar
	f.Gender = p.Gender
	f.IsBlocked = p.IsBlocked == 1
}

// FriendTransition is the outcome of a friend event.
type FriendTransition struct {
	ConversationID uint
	FriendID       uint
	ThreadID       string
	Type           zalo.FriendEventType
	IsFr           int
	IsBlocked      bool
}

// ApplyFriendEvent updates the friendship or block flag of the thread a
// friend event refers to.
func (r *ConversationResolver) ApplyFriendEvent(ctx context.Context, accountID uint, ownID string, evt *zalo.FriendEvent) (FriendTransition, error) {
	p := friendEventPair(ownID, evt)
	c, err := r.resolvePair(ctx, accountID, p)
	if err != nil {
		return FriendTransition{}, err
	}

	t := FriendTransition{
		ConversationID: c.ID,
		FriendID:       c.FriendID,
		ThreadID:       evt.ThreadID.String(),
		Type:           evt.Type,
		IsFr:           c.IsFr,
	}
	if t.ThreadID == "" {
		t.ThreadID = p.UserKey
	}

	switch evt.Type {
	case zalo.FriendEventBlock, zalo.FriendEventUnblock:
		t.IsBlocked = evt.Type == zalo.FriendEventBlock
		if err := r.friendRepo.SetBlocked(ctx, c.FriendID, t.IsBlocked); err != nil {
			return FriendTransition{}, fmt.Errorf("set blocked: %w", err)
		}
		return t, nil
	}

	isFr, ok := friendshipFor(evt.Type)
	if !ok {
		return FriendTransition{}, fmt.Errorf("%w: friend event %q", zalohub_errors.ErrInvalidInput, evt.Type)
	}
	t.IsFr = isFr
	if err := r.conversationRepo.UpdateFriendship(ctx, c.ID, isFr); err != nil {
		return FriendTransition{}, fmt.Errorf("update conversation friendship: %w", err)
	}
	if err := r.friendRepo.UpdateFriendship(ctx, c.FriendID, isFr); err != nil && !errors.Is(err, zalohub_errors.ErrNotFound) {
		return FriendTransition{}, fmt.Errorf("update friend friendship: %w", err)
	}
	return t, nil
}

func friendEventPair(ownID string, evt *zalo.FriendEvent) Pair {
	from, to := evt.FromUID.String(), evt.ToUID.String()
	if from != "" && to != "" {
		return PairFor(evt.IsSelf, from, to)
	}
	return Pair{UserZaloID: ownID, UserKey: evt.ThreadID.String()}
}

func friendshipFor(t zalo.FriendEventType) (int, bool) {
	switch t {
	case zalo.FriendEventAdd:
		return contact.FriendshipFriend, true
	case zalo.FriendEventRemove, zalo.FriendEventRejectRequest:
		return contact.FriendshipStranger, true
	case zalo.FriendEventRequest:
		return contact.FriendshipRequested, true
	case zalo.FriendEventUndoRequest:
		return contact.FriendshipCancelled, true
	}
	return 0, false
}
