package port

import (
	"github.com/hdboard/signaling/internal/core/domain"
	"github.com/hdboard/signaling/internal/wire"
)

// RealTimeGateway delivers envelopes to live connections. Delivery is
// fire-and-forget; SendTo reports false when the target is not connected so
// callers can log the miss, never an error.
type RealTimeGateway interface {
	SendTo(connID domain.ConnID, env wire.Envelope) bool
}
