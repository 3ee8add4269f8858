package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"zalo-hub/internal/domain/message"
	"zalo-hub/internal/domain/upload"
	"zalo-hub/internal/repository"
	"zalo-hub/internal/storage"
	"zalo-hub/internal/zalo"
	zalohub_errors "zalo-hub/pkg/errors"

	"go.uber.org/zap"
)

// SessionLookup finds the live protocol session of an account.
type SessionLookup interface {
	Session(accountID uint) (zalo.Session, bool)
}

// SendLimiter throttles outbound sends per account.
type SendLimiter interface {
	AllowSend(ctx context.Context, accountID uint) (bool, error)
}

type SendRequest struct {
	AccountID   uint
	ThreadID    string
	Text        string
	Attachments []zalo.Attachment
}

type SendOutcome struct {
	Message message.Message
	// Saved and Failed count attachments parked in dead-letter storage after
	// a failed send.
	Saved  int
	Failed int
}

// SendService is the direct API write path. It shares the (msgId, isSelf)
// key with the realtime listener, which confirms the same message later.
type SendService struct {
	sessions   SessionLookup
	resolver   *ConversationResolver
	messages   *MessageService
	failedRepo repository.FailedFileRepository
	files      storage.FileStore
	limiter    SendLimiter
	logger     *zap.Logger
}

func NewSendService(sessions SessionLookup, resolver *ConversationResolver, messages *MessageService, failedRepo repository.FailedFileRepository, files storage.FileStore, limiter SendLimiter, logger *zap.Logger) *SendService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendService{
		sessions:   sessions,
		resolver:   resolver,
		messages:   messages,
		failedRepo: failedRepo,
		files:      files,
		limiter:    limiter,
		logger:     logger.With(zap.String("component", "send")),
	}
}

func (s *SendService) Send(ctx context.Context, req SendRequest) (SendOutcome, error) {
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	if req.AccountID == 0 || req.ThreadID == "" {
		return SendOutcome{}, fmt.Errorf("%w: account id and thread id are required", zalohub_errors.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return SendOutcome{}, fmt.Errorf("%w: empty message", zalohub_errors.ErrInvalidInput)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.AllowSend(ctx, req.AccountID)
		if err != nil {
			s.logger.Warn("send rate limit check failed", zap.Uint("account_id", req.AccountID), zap.Error(err))
		} else if !allowed {
			return SendOutcome{}, zalohub_errors.ErrRateLimited
		}
	}

	sess, ok := s.sessions.Session(req.AccountID)
	if !ok {
		return SendOutcome{}, zalohub_errors.ErrSessionNotFound
	}

	conv, err := s.resolver.Resolve(ctx, req.AccountID, sess.OwnID(), req.ThreadID, true)
	if err != nil {
		return SendOutcome{}, err
	}

	msgType := MsgTypeText
	if len(req.Attachments) > 0 {
		msgType = MsgTypeFile
	}
	pending, err := s.messages.CreatePending(ctx, conv, req.Text, msgType)
	if err != nil {
		return SendOutcome{}, err
	}

	res, sendErr := sess.SendMessage(ctx, zalo.Outgoing{Text: req.Text, Attachments: req.Attachments}, req.ThreadID, zalo.ThreadTypeUser)
	if sendErr != nil {
		return s.handleFailure(ctx, pending, req.Attachments, sendErr)
	}

	confirmed, err := s.messages.ConfirmSent(ctx, pending.ID, res.PrimaryMsgID())
	if err != nil {
		return SendOutcome{}, fmt.Errorf("confirm sent message: %w", err)
	}
	return SendOutcome{Message: confirmed}, nil
}

// handleFailure marks the placeholder failed and parks every attachment in
// dead-letter storage so it is not lost.
func (s *SendService) handleFailure(ctx context.Context, pending message.Message, attachments []zalo.Attachment, sendErr error) (SendOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(zap.Uint("message_id", pending.ID), zap.Uint("account_id", pending.AccountID))
	log.Warn("send failed", zap.Error(sendErr))

	out := SendOutcome{Message: pending}
	for _, a := range attachments {
		if err := s.park(ctx, pending.ID, a, sendErr); err != nil {
			out.Failed++
			log.Error("save failed attachment", zap.String("file", a.Name), zap.Error(err))
			continue
		}
		out.Saved++
	}

	if err := s.messages.MarkFailed(ctx, pending.ID, out.Saved > 0); err != nil {
		log.Error("mark message failed", zap.Error(err))
	}
	out.Message.Status = message.StatusFailed
	out.Message.IsExpired = out.Saved > 0

	if len(attachments) > 0 {
		return out, fmt.Errorf("%w: %d files saved locally", zalohub_errors.ErrSendFailed, out.Saved)
	}
	return out, fmt.Errorf("%w: %v", zalohub_errors.ErrSendFailed, sendErr)
}

func (s *SendService) park(ctx context.Context, messageID uint, a zalo.Attachment, sendErr error) error {
	if s.files == nil {
		return errors.New("no file store configured")
	}
	path, err := s.files.Save(ctx, a.Name, a.MimeType, bytes.NewReader(a.Data), int64(len(a.Data)))
	if err != nil {
		return err
	}
	row := upload.FailedFileStorage{
		MessageID:    messageID,
		FilePath:     path,
		FileName:     a.Name,
		MimeType:     a.MimeType,
		Size:         int64(len(a.Data)),
		Backend:      s.files.Backend(),
		ErrorMessage: sendErr.Error(),
	}
	if err := s.failedRepo.Create(ctx, &row); err != nil {
		if derr := s.files.Delete(ctx, path); derr != nil {
			s.logger.Warn("remove orphan file", zap.String("path", path), zap.Error(derr))
		}
		return err
	}
	return nil
}
