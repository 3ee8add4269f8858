package websocket

import (
	"zalo-hub/internal/events"
	"zalo-hub/internal/metrics"
	"zalo-hub/internal/status"

	"go.uber.org/zap"
)

// Gateway pushes events to the sockets observing an account. Delivery is
// at most once: with no live socket the event is dropped, since it is
// already stored.
type Gateway struct {
	hub    *Hub
	logger *zap.Logger
}

func NewGateway(hub *Hub, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{hub: hub, logger: logger.With(zap.String("component", "gateway"))}
}

// SendToAccount delivers to every socket observing the account and reports
// whether at least one accepted the frame.
func (g *Gateway) SendToAccount(accountID uint, event string, payload any) bool {
	sockets := g.hub.registry.SocketsFor(accountID)
	if len(sockets) == 0 {
		metrics.SocketDeliveries.WithLabelValues(metrics.OutcomeDropped).Inc()
		g.logger.Debug("no socket for account, dropping",
			zap.Uint("account_id", accountID),
			zap.String("event", event))
		return false
	}

	data, err := events.Encode(event, payload)
	if err != nil {
		metrics.SocketDeliveries.WithLabelValues(metrics.OutcomeFailed).Inc()
		g.logger.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return false
	}

	delivered := 0
	for _, c := range sockets {
		if c.SendMessage(data) {
			delivered++
		}
	}
	if delivered == 0 {
		metrics.SocketDeliveries.WithLabelValues(metrics.OutcomeFailed).Inc()
		g.logger.Warn("every socket rejected event",
			zap.Uint("account_id", accountID),
			zap.String("event", event),
			zap.Int("sockets", len(sockets)))
		return false
	}
	metrics.SocketDeliveries.WithLabelValues(metrics.OutcomeOK).Inc()
	return true
}

func (g *Gateway) Broadcast(event string, payload any) int {
	return g.hub.Broadcast(event, payload)
}

func (g *Gateway) SendToRoom(room, event string, payload any) int {
	return g.hub.SendToRoom(room, event, payload, nil)
}

// WatchSessions forwards session transitions recorded in book to sockets.
func (g *Gateway) WatchSessions(book *status.Book) {
	book.OnRecord(g.onSessionEntry)
}

func (g *Gateway) onSessionEntry(e status.Entry) {
	if e.Source != status.SourceSession {
		return
	}
	var event string
	switch e.State {
	case status.StateConnected:
		event = events.EventAccountConnected
	case status.StateError:
		event = events.EventAccountError
	default:
		event = events.EventAccountDisconnected
	}
	payload := events.AccountStatusPayload{
		AccountID:   e.AccountID,
		Status:      sessionStatus(e.State),
		SocketCount: g.hub.registry.SocketCount(e.AccountID),
		Message:     e.Detail,
		At:          e.At,
	}
	g.SendToAccount(e.AccountID, event, payload)
	g.hub.Broadcast(events.EventAccountStatusUpdate, payload)
}
