package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"zalo-hub/internal/redis"
	"zalo-hub/internal/services"
	"zalo-hub/internal/session"
	"zalo-hub/internal/transport/httpdto"
	"zalo-hub/internal/zalo"
	zalohub_errors "zalo-hub/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	maxAttachments    = 10
	maxAttachmentSize = 25 << 20
)

type Sender interface {
	Send(ctx context.Context, req services.SendRequest) (services.SendOutcome, error)
}

// SessionControl is satisfied by session.Manager.
type SessionControl interface {
	Sessions() []session.Info
	Disconnect(accountID uint) error
	Reconnect(ctx context.Context, accountID uint) error
}

// SendQuota exposes the per-account send window. Nil when redis is disabled.
type SendQuota interface {
	SendStatus(ctx context.Context, accountID uint) (*redis.RateLimitResult, error)
	ResetSend(ctx context.Context, accountID uint) error
}

type ZaloHandler struct {
	sender   Sender
	sessions SessionControl
	quota    SendQuota
}

func NewZaloHandler(sender Sender, sessions SessionControl, quota SendQuota) *ZaloHandler {
	return &ZaloHandler{sender: sender, sessions: sessions, quota: quota}
}

func (h *ZaloHandler) SendMessage(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	h.send(c, services.SendRequest{
		AccountID: req.AccountID,
		ThreadID:  req.ThreadID,
		Text:      req.Message,
	})
}

// SendMessageWithAttachments takes a multipart form with the same fields as
// SendMessage plus files[].
func (h *ZaloHandler) SendMessageWithAttachments(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid multipart form", "INVALID_REQUEST"))
		return
	}
	headers := append([]*multipart.FileHeader{}, form.File["files[]"]...)
	headers = append(headers, form.File["files"]...)
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("at least one file is required", "INVALID_REQUEST"))
		return
	}
	if len(headers) > maxAttachments {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(fmt.Sprintf("at most %d files per message", maxAttachments), "INVALID_REQUEST"))
		return
	}

	attachments := make([]zalo.Attachment, 0, len(headers))
	for _, fh := range headers {
		a, err := readAttachment(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
			return
		}
		attachments = append(attachments, a)
	}

	h.send(c, services.SendRequest{
		AccountID:   req.AccountID,
		ThreadID:    req.ThreadID,
		Text:        req.Message,
		Attachments: attachments,
	})
}

func (h *ZaloHandler) send(c *gin.Context, req services.SendRequest) {
	out, err := h.sender.Send(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, zalohub_errors.ErrSendFailed) {
			resp := httpdto.NewErrorResponse(err.Error(), "SEND_FAILED")
			resp.Data = httpdto.SendFailureResponse{
				MessageID:   out.Message.ID,
				SavedFiles:  out.Saved,
				FailedFiles: out.Failed,
			}
			c.JSON(http.StatusBadGateway, resp)
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.SendMessageResponse{Message: out.Message}))
}

func readAttachment(fh *multipart.FileHeader) (zalo.Attachment, error) {
	if fh.Size > maxAttachmentSize {
		return zalo.Attachment{}, fmt.Errorf("file %s exceeds %d bytes", fh.Filename, maxAttachmentSize)
	}
	f, err := fh.Open()
	if err != nil {
		return zalo.Attachment{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxAttachmentSize+1))
	if err != nil {
		return zalo.Attachment{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if len(data) > maxAttachmentSize {
		return zalo.Attachment{}, fmt.Errorf("file %s exceeds %d bytes", fh.Filename, maxAttachmentSize)
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(fh.Filename)); byExt != "" {
			mimeType = byExt
		}
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return zalo.Attachment{Name: filepath.Base(fh.Filename), MimeType: mimeType, Data: data}, nil
}

func (h *ZaloHandler) Sessions(c *gin.Context) {
	infos := h.sessions.Sessions()
	out := make([]httpdto.SessionResponse, 0, len(infos))
	for _, s := range infos {
		out = append(out, httpdto.SessionResponse{
			AccountID:   s.AccountID,
			UserID:      s.UserID,
			OwnID:       s.OwnID,
			ConnectedAt: s.ConnectedAt,
		})
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}

func (h *ZaloHandler) DisconnectAccount(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.Disconnect(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.SessionActionResponse{AccountID: id, Status: "suspended"}))
}

func (h *ZaloHandler) ReconnectAccount(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.Reconnect(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.SessionActionResponse{AccountID: id, Status: "connected"}))
}

func (h *ZaloHandler) SendQuota(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if h.quota == nil {
		writeError(c, fmt.Errorf("%w: send limits are disabled", zalohub_errors.ErrServiceUnavailable))
		return
	}
	res, err := h.quota.SendStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.SendQuotaResponse{
		AccountID:      id,
		Limit:          res.Limit,
		Remaining:      res.Remaining,
		ResetInSeconds: int(res.ResetIn.Seconds()),
	}))
}

func (h *ZaloHandler) ResetSendQuota(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if h.quota == nil {
		writeError(c, fmt.Errorf("%w: send limits are disabled", zalohub_errors.ErrServiceUnavailable))
		return
	}
	if err := h.quota.ResetSend(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.SessionActionResponse{AccountID: id, Status: "quota_reset"}))
}
