package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hdboard/signaling/internal/core/domain"
	"github.com/hdboard/signaling/internal/wire"
	"github.com/rs/zerolog/log"
)

const (
	// WriteWait bounds a single websocket write.
	WriteWait = 10 * time.Second

	// PongWait is the transport liveness window; a connection that misses it
	// is torn down by the read side.
	PongWait = 60 * time.Second

	// PingPeriod must be shorter than PongWait.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize caps inbound frames. Strokes and SDP blobs fit well
	// within this.
	MaxMessageSize = 64 * 1024

	sendBuffer = 64
)

var errClientGone = errors.New("websocket client closed")

// WSClient adapts one websocket connection to port.Client. All writes go
// through a buffered channel drained by WritePump, so Send never blocks the
// dispatcher and per-sender ordering is preserved.
type WSClient struct {
	id   domain.ConnID
	conn *websocket.Conn
	send chan wire.Envelope
	once sync.Once
	done chan struct{}
}

func NewWSClient(id domain.ConnID, conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:   id,
		conn: conn,
		send: make(chan wire.Envelope, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *WSClient) ID() domain.ConnID {
	return c.id
}

// Send enqueues an envelope for delivery. A full buffer means the consumer
// is stalled; the envelope is dropped rather than blocking the caller.
func (c *WSClient) Send(env wire.Envelope) error {
	select {
	case <-c.done:
		return errClientGone
	default:
	}

	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return errClientGone
	default:
		log.Warn().Str("conn_id", c.id.String()).Str("event", env.Event).Msg("Send buffer full, dropping envelope")
		return nil
	}
}

// Close is idempotent and unblocks WritePump.
func (c *WSClient) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

// WritePump drains the send channel and keeps the transport alive with
// periodic pings. It owns all writes to the connection.
func (c *WSClient) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
