package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"zalo-hub/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
	errMissingUser  = errors.New("userId is required")
)

// Handler upgrades browser connections and registers them with the hub.
type Handler struct {
	hub      *Hub
	secret   []byte
	upgrader websocket.Upgrader
}

// NewHandler builds the upgrade handler. With an empty jwtSecret the
// declared userId is trusted as is.
func NewHandler(hub *Hub, jwtSecret string) *Handler {
	h := &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if jwtSecret != "" {
		h.secret = []byte(jwtSecret)
	}
	return h
}

type handshake struct {
	UserID     string
	AccountIDs []uint
}

func (h *Handler) Connect(c *gin.Context) {
	hs, err := h.parseHandshake(c)
	if err != nil {
		status := http.StatusBadRequest
		code := "BAD_HANDSHAKE"
		if errors.Is(err, errMissingToken) || errors.Is(err, errInvalidToken) {
			status = http.StatusUnauthorized
			code = "UNAUTHORIZED"
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.Error("websocket upgrade failed", hs.UserID, "", err)
		return
	}

	client := NewClient(h.hub, conn, hs.UserID)
	if !h.hub.Register(client, hs.AccountIDs) {
		h.hub.logger.Warn("hub stopped, rejecting socket", hs.UserID, client.ID)
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (h *Handler) parseHandshake(c *gin.Context) (handshake, error) {
	hs := handshake{UserID: strings.TrimSpace(c.Query("userId"))}

	token := extractToken(c)
	if h.secret != nil {
		if token == "" {
			return handshake{}, errMissingToken
		}
		sub, err := h.subject(token)
		if err != nil {
			h.hub.logger.Warn("handshake token rejected", hs.UserID, "", zap.Error(err))
			return handshake{}, errInvalidToken
		}
		hs.UserID = sub
	}
	if hs.UserID == "" {
		return handshake{}, errMissingUser
	}

	ids, err := ParseAccountIDs(c.QueryArray("accountIds"))
	if err != nil {
		return handshake{}, err
	}
	hs.AccountIDs = ids
	return hs, nil
}

func (h *Handler) subject(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", errInvalidToken
	}
	return strings.TrimSpace(claims.Subject), nil
}

func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// ParseAccountIDs accepts repeated and comma separated ids, dropping
// duplicates and keeping the first-seen order.
func ParseAccountIDs(values []string) ([]uint, error) {
	seen := make(map[uint]struct{})
	var out []uint
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.ParseUint(part, 10, 64)
			if err != nil || n == 0 {
				return nil, fmt.Errorf("invalid account id %q", part)
			}
			id := uint(n)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}
