package handler

import (
	"net/http"
	"strings"

	"zalo-hub/internal/transport/httpdto"
	"zalo-hub/internal/websocket"

	"github.com/gin-gonic/gin"
)

// SocketHandler exposes the connection registry to the admin panel.
type SocketHandler struct {
	hub *websocket.Hub
}

func NewSocketHandler(hub *websocket.Hub) *SocketHandler {
	return &SocketHandler{hub: hub}
}

func (h *SocketHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(h.hub.Registry().Stats()))
}

func (h *SocketHandler) ConnectedAccounts(c *gin.Context) {
	ids := h.hub.Registry().ConnectedAccounts()
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ConnectedAccountsResponse{
		AccountIDs: ids,
		Count:      len(ids),
	}))
}

func (h *SocketHandler) AccountStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(h.hub.AccountStatus(id)))
}

// AccountHistory lists recorded transitions, oldest first.
func (h *SocketHandler) AccountHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(h.hub.Book().History(id)))
}

func (h *SocketHandler) DisconnectAccount(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	n := h.hub.DetachAccount(id, "disconnected by admin")
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.DisconnectResponse{Disconnected: n}))
}

func (h *SocketHandler) UserAccounts(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid id", "INVALID_REQUEST"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UserAccountsResponse{
		UserID:     userID,
		AccountIDs: h.hub.Registry().AccountsForUser(userID),
		Sockets:    len(h.hub.Registry().UserSockets(userID)),
	}))
}

func (h *SocketHandler) DisconnectUser(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid id", "INVALID_REQUEST"))
		return
	}
	n := h.hub.DisconnectUser(userID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.DisconnectResponse{Disconnected: n}))
}

func (h *SocketHandler) ConnectionCount(c *gin.Context) {
	stats := h.hub.Registry().Stats()
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ConnectionCountResponse{
		Sockets:  stats.Sockets,
		Accounts: stats.Accounts,
	}))
}

func (h *SocketHandler) AllConnections(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(h.hub.Registry().All()))
}
