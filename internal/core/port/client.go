package port

import (
	"github.com/hdboard/signaling/internal/core/domain"
	"github.com/hdboard/signaling/internal/wire"
)

// Client is one registered transport endpoint as seen by the gateway.
// Send must be non-blocking for the caller; ordering of envelopes passed to
// Send by a single goroutine is preserved on the wire.
type Client interface {
	ID() domain.ConnID
	Send(env wire.Envelope) error
	Close() error
}
