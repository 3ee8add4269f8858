package handler

import (
	"errors"
	"net/http"
	"strconv"

	"zalo-hub/internal/transport/httpdto"
	zalohub_errors "zalo-hub/pkg/errors"

	"github.com/gin-gonic/gin"
)

func httpStatus(err error) int {
	switch {
	case errors.Is(err, zalohub_errors.ErrInvalidInput), errors.Is(err, zalohub_errors.ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, zalohub_errors.ErrNotFound),
		errors.Is(err, zalohub_errors.ErrSessionNotFound),
		errors.Is(err, zalohub_errors.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, zalohub_errors.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, zalohub_errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, zalohub_errors.ErrSendFailed):
		return http.StatusBadGateway
	case errors.Is(err, zalohub_errors.ErrServiceUnavailable), errors.Is(err, zalohub_errors.ErrBridgeClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusBadGateway:
		return "SEND_FAILED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

func writeError(c *gin.Context, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, httpdto.NewErrorResponse(err.Error(), errorCode(status)))
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid "+name, "INVALID_REQUEST"))
		return 0, false
	}
	return uint(id), true
}
