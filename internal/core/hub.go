package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/metrics"
	"github.com/vovakirdan/practicechat/internal/proto"
	"github.com/vovakirdan/practicechat/internal/store"
)

// Hub is the registry of open realtime connections for this process.
//
// Broadcast fans out to every open connection regardless of which
// conversations it joined; clients filter by conversation id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		clients: make(map[string]*Client),
		log:     logger,
	}
}

// RegisterClient opens the client and adds it to the registry.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	c.state.Store(int32(StateOpen))
	h.mu.Unlock()

	metrics.WSConnectionsActive.Inc()
	h.log.Debug().Str("client_id", c.ID).Int64("user_id", c.UserID).Msg("client registered")
}

// UnregisterClient closes the client and removes it from the registry.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	h.mu.Unlock()

	c.close()
	if ok {
		metrics.WSConnectionsActive.Dec()
		h.log.Debug().Str("client_id", c.ID).Msg("client unregistered")
	}
}

// Join records the advisory join and acknowledges it with a joined frame.
func (h *Hub) Join(c *Client, conversationID int64) error {
	h.mu.RLock()
	_, ok := h.clients[c.ID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotRegistered
	}
	if c.State() != StateOpen {
		return ErrClientNotOpen
	}

	c.markJoined(conversationID)
	if !c.enqueue(proto.Joined{ConversationID: conversationID}) {
		metrics.WSFramesDropped.WithLabelValues("outbound", "buffer_full").Inc()
	}
	return nil
}

// Deliver queues a new_message frame on every open connection and returns
// how many accepted it. Connections that are not open are skipped.
func (h *Hub) Deliver(conversationID int64, msg proto.Message) int {
	frame := proto.NewMessage{ConversationID: conversationID, Message: msg}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.clients {
		if c.State() != StateOpen {
			continue
		}
		if c.enqueue(frame) {
			delivered++
			continue
		}
		metrics.WSFramesDropped.WithLabelValues("outbound", "buffer_full").Inc()
		h.log.Warn().Str("client_id", c.ID).Msg("dropping frame for slow client")
	}
	metrics.BroadcastDeliveries.Add(float64(delivered))
	return delivered
}

// Broadcast implements messaging.Broadcaster for single-process deployments.
func (h *Hub) Broadcast(_ context.Context, conversationID int64, msg *store.Message) error {
	n := h.Deliver(conversationID, WireMessage(msg))
	h.log.Debug().Int64("conversation_id", conversationID).Int("delivered", n).Msg("broadcast")
	return nil
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unregisters every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
		metrics.WSConnectionsActive.Dec()
	}
}
