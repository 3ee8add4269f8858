package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zalo-hub/internal/domain/conversation"
	"zalo-hub/internal/domain/message"
	"zalo-hub/internal/repository"
	"zalo-hub/internal/zalo"
	zalohub_errors "zalo-hub/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const pendingMsgIDPrefix = "pending-"

type MessageService struct {
	messageRepo      repository.MessageRepository
	reactionRepo     repository.ReactionRepository
	conversationRepo repository.ConversationRepository
	resolver         *ConversationResolver
	logger           *zap.Logger
}

func NewMessageService(messageRepo repository.MessageRepository, reactionRepo repository.ReactionRepository, conversationRepo repository.ConversationRepository, resolver *ConversationResolver, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		messageRepo:      messageRepo,
		reactionRepo:     reactionRepo,
		conversationRepo: conversationRepo,
		resolver:         resolver,
		logger:           logger,
	}
}

type UpsertResult struct {
	Message message.Message
	Created bool
}

// Upsert stores a realtime message keyed by (msgId, isSelf). A row already
// written for the same key is updated in place and confirmed as sent.
func (s *MessageService) Upsert(ctx context.Context, n NormalizedMessage, stickerID *uint) (UpsertResult, error) {
	if n.MsgID == "" {
		return UpsertResult{}, fmt.Errorf("%w: message without msg id", zalohub_errors.ErrInvalidInput)
	}

	existing, err := s.messageRepo.FindByNaturalKey(ctx, n.MsgID, n.IsSelf)
	switch {
	case err == nil:
		return s.refresh(ctx, existing, n, stickerID)
	case !errors.Is(err, zalohub_errors.ErrNotFound):
		return UpsertResult{}, err
	}

	conv, err := s.resolver.Resolve(ctx, n.AccountID, n.UIDFrom, n.IDTo, n.IsSelf)
	if err != nil {
		return UpsertResult{}, err
	}

	m := message.Message{
		ConversationID: conv.ID,
		AccountID:      n.AccountID,
		MsgID:          n.MsgID,
		IsSelf:         n.IsSelf,
	}
	s.apply(ctx, &m, n, stickerID)
	if err := s.messageRepo.Create(ctx, &m); err != nil {
		if errors.Is(err, zalohub_errors.ErrAlreadyExists) {
			// a concurrent writer inserted the same key
			existing, ferr := s.messageRepo.FindByNaturalKey(ctx, n.MsgID, n.IsSelf)
			if ferr != nil {
				return UpsertResult{}, ferr
			}
			return s.refresh(ctx, existing, n, stickerID)
		}
		return UpsertResult{}, fmt.Errorf("create message: %w", err)
	}
	s.touch(ctx, conv.ID, n.Ts)
	return UpsertResult{Message: m, Created: true}, nil
}

func (s *MessageService) refresh(ctx context.Context, existing message.Message, n NormalizedMessage, stickerID *uint) (UpsertResult, error) {
	s.apply(ctx, &existing, n, stickerID)
	if err := s.messageRepo.Update(ctx, existing); err != nil {
		return UpsertResult{}, fmt.Errorf("update message: %w", err)
	}
	return UpsertResult{Message: existing}, nil
}

// apply copies the mutable fields of n onto m and marks it as delivered by
// the realtime listener.
func (s *MessageService) apply(ctx context.Context, m *message.Message, n NormalizedMessage, stickerID *uint) {
	if n.CliMsgID != "" {
		m.CliMsgID = n.CliMsgID
	}
	m.UIDFrom = n.UIDFrom
	m.IDTo = n.IDTo
	if n.DName != "" {
		m.DName = n.DName
	}
	m.Content = n.Content
	m.MsgType = n.MsgType
	m.Status = message.StatusSent
	m.Origin = message.OriginSocket
	if n.Ts != 0 {
		m.Ts = n.Ts
	}
	if n.PropertyExt != nil {
		m.PropertyExt = n.PropertyExt
	}
	if n.Params != nil {
		m.Params = n.Params
	}
	if stickerID != nil {
		m.StickerID = stickerID
	}
	if n.File != nil {
		m.FileURL = n.File.URL
		m.FileName = n.File.Name
		m.FileSize = n.File.Size
	}
	if n.Quote != nil {
		m.Quote = n.QuoteJSON
		if quoted, ok := s.ResolveQuote(ctx, n.AccountID, n.Quote, n.UIDFrom, n.IDTo); ok && quoted.ID != m.ID {
			id := quoted.ID
			m.QuoteMessageID = &id
		}
	}
}

func (s *MessageService) touch(ctx context.Context, conversationID uint, ts int64) {
	at := time.Now()
	if ts > 0 {
		at = time.UnixMilli(ts)
	}
	if err := s.conversationRepo.TouchLastMessage(ctx, conversationID, at); err != nil {
		s.logger.Warn("touch conversation failed", zap.Uint("conversation_id", conversationID), zap.Error(err))
	}
}

// ResolveQuote links a quote to a stored message. The protocol does not say
// reliably which side of the quoted message was the sender, so the owner is
// tried as sender first and as receiver second.
func (s *MessageService) ResolveQuote(ctx context.Context, accountID uint, q *zalo.Quote, uidFrom, idTo string) (message.Message, bool) {
	if q == nil || q.GlobalMsgID == "" {
		return message.Message{}, false
	}
	owner := q.OwnerID.String()
	peer := idTo
	if owner == idTo {
		peer = uidFrom
	}
	orderings := [][2]string{{owner, peer}, {peer, owner}}
	for _, o := range orderings {
		m, err := s.messageRepo.FindQuoted(ctx, accountID, q.GlobalMsgID.String(), q.CliMsgID.String(), o[0], o[1])
		if err == nil {
			return m, true
		}
		if !errors.Is(err, zalohub_errors.ErrNotFound) {
			s.logger.Warn("quote lookup failed", zap.Uint("account_id", accountID), zap.Error(err))
			return message.Message{}, false
		}
	}
	return message.Message{}, false
}

type ReactionOutcome struct {
	Reactions []message.Reaction
	Removed   bool
	Deleted   int64
}

// ApplyReaction adds or withdraws one sender's reaction on every target message.
func (s *MessageService) ApplyReaction(ctx context.Context, accountID uint, evt *zalo.ReactionEvent) (ReactionOutcome, error) {
	d := evt.Data
	out := ReactionOutcome{Removed: evt.Removal()}
	if len(d.Content.RMsg) == 0 {
		return out, fmt.Errorf("%w: reaction without target", zalohub_errors.ErrInvalidInput)
	}

	for _, target := range d.Content.RMsg {
		key := message.ReactionKey{
			AccountID: accountID,
			GMsgID:    target.GMsgID.String(),
			CMsgID:    target.CMsgID.String(),
			ThreadID:  evt.ThreadID.String(),
			UIDFrom:   d.UIDFrom.String(),
		}
		if out.Removed {
			n, err := s.reactionRepo.DeleteByKey(ctx, key)
			if err != nil {
				return out, fmt.Errorf("delete reaction: %w", err)
			}
			out.Deleted += n
			continue
		}

		r := message.Reaction{
			AccountID: key.AccountID,
			GMsgID:    key.GMsgID,
			CMsgID:    key.CMsgID,
			ThreadID:  key.ThreadID,
			UIDFrom:   key.UIDFrom,
			DName:     d.DName,
			RIcon:     d.Content.RIcon,
			RType:     d.Content.RType,
			Source:    d.Content.Source,
			IsSelf:    evt.IsSelf,
			Ts:        d.Ts.Int64(),
		}
		if target, err := s.messageRepo.FindByAccountMsgID(ctx, accountID, key.GMsgID); err == nil {
			id := target.ID
			r.MessageID = &id
		}
		if err := s.reactionRepo.Upsert(ctx, &r); err != nil {
			return out, fmt.Errorf("upsert reaction: %w", err)
		}
		out.Reactions = append(out.Reactions, r)
	}
	return out, nil
}

// Undo flags a recalled message in place.
func (s *MessageService) Undo(ctx context.Context, accountID uint, evt *zalo.UndoEvent) (message.Message, error) {
	d := evt.Data
	m, err := s.messageRepo.FindForUndo(ctx, accountID,
		d.Content.GlobalMsgID.String(), d.Content.CliMsgID.String(),
		d.UIDFrom.String(), d.IDTo.String())
	if err != nil {
		return message.Message{}, err
	}
	if err := s.messageRepo.MarkUndo(ctx, m.ID); err != nil {
		return message.Message{}, err
	}
	m.Undo = true
	return m, nil
}

// MarkSeen marks every unread message of the threads the acknowledged ids
// belong to as read.
func (s *MessageService) MarkSeen(ctx context.Context, accountID uint, msgIDs []string) ([]uint, int64, error) {
	convIDs, err := s.messageRepo.ConversationIDsByMsgIDs(ctx, accountID, msgIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve seen threads: %w", err)
	}
	updated, err := s.messageRepo.MarkConversationsRead(ctx, convIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("mark read: %w", err)
	}
	return convIDs, updated, nil
}

// MarkConversationRead marks a thread read on behalf of a socket client.
func (s *MessageService) MarkConversationRead(ctx context.Context, accountID, conversationID uint) (int64, error) {
	c, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, zalohub_errors.ErrNotFound) {
			return 0, zalohub_errors.ErrConversationNotFound
		}
		return 0, err
	}
	if c.AccountID != accountID {
		return 0, zalohub_errors.ErrConversationNotFound
	}
	return s.messageRepo.MarkConversationsRead(ctx, []uint{conversationID})
}

// CreatePending inserts the placeholder row of an outbound send.
func (s *MessageService) CreatePending(ctx context.Context, conv conversation.Conversation, content, msgType string) (message.Message, error) {
	m := message.Message{
		ConversationID: conv.ID,
		AccountID:      conv.AccountID,
		MsgID:          pendingMsgIDPrefix + uuid.NewString(),
		IsSelf:         true,
		UIDFrom:        conv.UserZaloID,
		IDTo:           conv.UserKey,
		Content:        content,
		MsgType:        msgType,
		Status:         message.StatusSending,
		Origin:         message.OriginBackend,
		IsRead:         true,
		Ts:             time.Now().UnixMilli(),
	}
	if err := s.messageRepo.Create(ctx, &m); err != nil {
		return message.Message{}, fmt.Errorf("create pending message: %w", err)
	}
	s.touch(ctx, conv.ID, m.Ts)
	return m, nil
}

// ConfirmSent gives a placeholder its protocol id. If the listener already
// stored the same message, the placeholder is dropped in its favour.
func (s *MessageService) ConfirmSent(ctx context.Context, placeholderID uint, msgID string) (message.Message, error) {
	if msgID == "" {
		if err := s.messageRepo.UpdateStatus(ctx, placeholderID, message.StatusSent); err != nil {
			return message.Message{}, err
		}
		return s.messageRepo.GetByID(ctx, placeholderID)
	}

	if existing, err := s.messageRepo.FindByNaturalKey(ctx, msgID, true); err == nil {
		return existing, s.dropPlaceholder(ctx, placeholderID)
	} else if !errors.Is(err, zalohub_errors.ErrNotFound) {
		return message.Message{}, err
	}

	pending, err := s.messageRepo.GetByID(ctx, placeholderID)
	if err != nil {
		return message.Message{}, err
	}
	pending.MsgID = msgID
	pending.Status = message.StatusSent
	if err := s.messageRepo.Update(ctx, pending); err != nil {
		if errors.Is(err, zalohub_errors.ErrAlreadyExists) {
			existing, ferr := s.messageRepo.FindByNaturalKey(ctx, msgID, true)
			if ferr != nil {
				return message.Message{}, ferr
			}
			return existing, s.dropPlaceholder(ctx, placeholderID)
		}
		return message.Message{}, err
	}
	return pending, nil
}

func (s *MessageService) dropPlaceholder(ctx context.Context, id uint) error {
	if err := s.messageRepo.Delete(ctx, id); err != nil && !errors.Is(err, zalohub_errors.ErrNotFound) {
		return fmt.Errorf("delete placeholder: %w", err)
	}
	return nil
}

// MarkFailed flags an outbound message as failed, optionally with its
// attachments parked in dead-letter storage.
func (s *MessageService) MarkFailed(ctx context.Context, id uint, expired bool) error {
	if err := s.messageRepo.UpdateStatus(ctx, id, message.StatusFailed); err != nil {
		return err
	}
	if expired {
		return s.messageRepo.SetExpired(ctx, []uint{id}, true)
	}
	return nil
}

func (s *MessageService) GetByID(ctx context.Context, id uint) (message.Message, error) {
	return s.messageRepo.GetByID(ctx, id)
}
