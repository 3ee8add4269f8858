package services

import (
	"context"
	"errors"

	"zalo-hub/internal/events"
	"zalo-hub/internal/metrics"
	"zalo-hub/internal/zalo"
	zalohub_errors "zalo-hub/pkg/errors"

	"go.uber.org/zap"
)

// Gateway pushes an event to every live socket observing an account. It
// reports false when nobody is listening.
type Gateway interface {
	SendToAccount(accountID uint, event string, payload any) bool
}

// ListenerService handles the realtime events of every session: it
// normalizes, resolves and persists them, then forwards the stored result.
type ListenerService struct {
	messages *MessageService
	resolver *ConversationResolver
	stickers *StickerService
	gateway  Gateway
	logger   *zap.Logger
}

func NewListenerService(messages *MessageService, resolver *ConversationResolver, stickers *StickerService, gateway Gateway, logger *zap.Logger) *ListenerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListenerService{
		messages: messages,
		resolver: resolver,
		stickers: stickers,
		gateway:  gateway,
		logger:   logger.With(zap.String("component", "listener")),
	}
}

func (s *ListenerService) HandleEvent(ctx context.Context, accountID uint, api zalo.API, evt zalo.Event) {
	var outcome string
	switch e := evt.(type) {
	case *zalo.MessageEvent:
		outcome = s.handleMessage(ctx, accountID, api, e)
	case *zalo.ReactionEvent:
		outcome = s.handleReaction(ctx, accountID, e)
	case *zalo.UndoEvent:
		outcome = s.handleUndo(ctx, accountID, e)
	case *zalo.FriendEvent:
		outcome = s.handleFriendEvent(ctx, accountID, api, e)
	case *zalo.SeenEvent:
		outcome = s.handleSeen(ctx, accountID, e)
	default:
		outcome = metrics.OutcomeDropped
	}
	metrics.Events.WithLabelValues(evt.Name(), outcome).Inc()
}

func (s *ListenerService) handleMessage(ctx context.Context, accountID uint, api zalo.API, e *zalo.MessageEvent) string {
	log := s.logger.With(zap.Uint("account_id", accountID), zap.String("msg_id", e.Data.MsgID.String()))

	n, err := NormalizeMessage(accountID, e)
	if err != nil {
		log.Debug("message skipped", zap.Error(err))
		return metrics.OutcomeDropped
	}

	if !n.IsSelf {
		if _, created, err := s.resolver.EnsureContact(ctx, accountID, api, n.UIDFrom, n.IDTo); err != nil {
			log.Warn("ensure contact failed", zap.Error(err))
		} else if created {
			log.Info("new contact from inbound message", zap.String("uid_from", n.UIDFrom))
		}
	}

	var stickerID *uint
	if n.Sticker != nil && s.stickers != nil {
		st, err := s.stickers.Resolve(ctx, api, *n.Sticker)
		if err != nil {
			log.Warn("sticker lookup failed", zap.Int64("sticker_id", n.Sticker.ID), zap.Error(err))
		} else {
			id := st.ID
			stickerID = &id
		}
	}

	res, err := s.messages.Upsert(ctx, n, stickerID)
	if err != nil {
		if errors.Is(err, zalohub_errors.ErrConversationNotFound) {
			log.Info("message dropped, no conversation", zap.Error(err))
			return metrics.OutcomeDropped
		}
		log.Error("persist message failed", zap.Error(err))
		return metrics.OutcomeFailed
	}

	s.push(accountID, events.EventNewMessage, events.NewMessagePayload{
		AccountID:      accountID,
		ConversationID: res.Message.ConversationID,
		ThreadID:       n.ThreadID,
		Created:        res.Created,
		Message:        res.Message,
	})
	return metrics.OutcomeOK
}

func (s *ListenerService) handleReaction(ctx context.Context, accountID uint, e *zalo.ReactionEvent) string {
	if e.IsGroup {
		return metrics.OutcomeDropped
	}
	out, err := s.messages.ApplyReaction(ctx, accountID, e)
	if err != nil {
		s.logger.Error("apply reaction failed", zap.Uint("account_id", accountID), zap.Error(err))
		return metrics.OutcomeFailed
	}
	s.push(accountID, events.EventNewReaction, events.ReactionPayload{
		AccountID: accountID,
		ThreadID:  e.ThreadID.String(),
		UIDFrom:   e.Data.UIDFrom.String(),
		RIcon:     e.Data.Content.RIcon,
		RType:     e.Data.Content.RType,
		Removed:   out.Removed,
		Reactions: out.Reactions,
	})
	return metrics.OutcomeOK
}

func (s *ListenerService) handleUndo(ctx context.Context, accountID uint, e *zalo.UndoEvent) string {
	if e.IsGroup {
		return metrics.OutcomeDropped
	}
	m, err := s.messages.Undo(ctx, accountID, e)
	if err != nil {
		if errors.Is(err, zalohub_errors.ErrNotFound) {
			s.logger.Info("undo target not found",
				zap.Uint("account_id", accountID),
				zap.String("global_msg_id", e.Data.Content.GlobalMsgID.String()))
			return metrics.OutcomeDropped
		}
		s.logger.Error("apply undo failed", zap.Uint("account_id", accountID), zap.Error(err))
		return metrics.OutcomeFailed
	}
	s.push(accountID, events.EventNewUndo, events.UndoPayload{
		AccountID:      accountID,
		ConversationID: m.ConversationID,
		MessageID:      m.ID,
		MsgID:          m.MsgID,
		CliMsgID:       m.CliMsgID,
		ThreadID:       e.ThreadID.String(),
	})
	return metrics.OutcomeOK
}

func (s *ListenerService) handleFriendEvent(ctx context.Context, accountID uint, api zalo.API, e *zalo.FriendEvent) string {
	t, err := s.resolver.ApplyFriendEvent(ctx, accountID, api.OwnID(), e)
	if err != nil {
		if errors.Is(err, zalohub_errors.ErrConversationNotFound) || errors.Is(err, zalohub_errors.ErrInvalidInput) {
			s.logger.Info("friend event dropped", zap.Uint("account_id", accountID), zap.Error(err))
			return metrics.OutcomeDropped
		}
		s.logger.Error("apply friend event failed", zap.Uint("account_id", accountID), zap.Error(err))
		return metrics.OutcomeFailed
	}
	s.push(accountID, events.EventNewFriendEvent, events.FriendEventPayload{
		AccountID:      accountID,
		ConversationID: t.ConversationID,
		FriendID:       t.FriendID,
		ThreadID:       t.ThreadID,
		Type:           string(t.Type),
		IsFr:           t.IsFr,
		IsBlocked:      t.IsBlocked,
	})
	return metrics.OutcomeOK
}

func (s *ListenerService) handleSeen(ctx context.Context, accountID uint, e *zalo.SeenEvent) string {
	if e.IsGroup || len(e.MsgIDs) == 0 {
		return metrics.OutcomeDropped
	}
	ids := make([]string, 0, len(e.MsgIDs))
	for _, id := range e.MsgIDs {
		ids = append(ids, id.String())
	}
	convIDs, updated, err := s.messages.MarkSeen(ctx, accountID, ids)
	if err != nil {
		s.logger.Error("mark seen failed", zap.Uint("account_id", accountID), zap.Error(err))
		return metrics.OutcomeFailed
	}
	if len(convIDs) == 0 {
		return metrics.OutcomeDropped
	}
	s.push(accountID, events.EventMessagesSeen, events.MessagesSeenPayload{
		AccountID:       accountID,
		ThreadID:        e.ThreadID.String(),
		ConversationIDs: convIDs,
		Updated:         updated,
	})
	return metrics.OutcomeOK
}

func (s *ListenerService) push(accountID uint, event string, payload any) {
	if s.gateway == nil {
		return
	}
	if !s.gateway.SendToAccount(accountID, event, payload) {
		s.logger.Debug("no live socket, event kept in storage only",
			zap.Uint("account_id", accountID),
			zap.String("event", event))
	}
}
