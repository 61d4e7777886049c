package ws

import (
	"sync"

	"github.com/hdboard/signaling/internal/core/domain"
	"github.com/hdboard/signaling/internal/core/port"
	"github.com/hdboard/signaling/internal/wire"
	"github.com/rs/zerolog/log"
)

// Hub is the process-wide table of live connections. It implements
// port.RealTimeGateway. Entries are added on connect, removed on disconnect
// and torn down entirely at shutdown; nothing else holds client references.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ConnID]port.Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[domain.ConnID]port.Client),
	}
}

func (h *Hub) Register(c port.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
	log.Info().Str("conn_id", c.ID().String()).Int("count", len(h.clients)).Msg("Client registered")
}

// Unregister removes and closes the connection. After it returns, SendTo for
// this ID reports a miss.
func (h *Hub) Unregister(id domain.ConnID) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.Close()
		log.Info().Str("conn_id", id.String()).Int("count", count).Msg("Client unregistered")
	}
}

// SendTo delivers env to the named connection. It reports false when the
// target is not registered.
func (h *Hub) SendTo(id domain.ConnID, env wire.Envelope) bool {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	if err := c.Send(env); err != nil {
		log.Debug().Err(err).Str("conn_id", id.String()).Msg("Send to client failed")
	}
	return true
}

// Stop closes every live connection and empties the table.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
	log.Info().Msg("Hub stopped, all clients disconnected")
}
