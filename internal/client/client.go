// Package client is a headless participant: it joins a room over the
// signaling server, fans strokes and chat to the embedder, and runs one
// negotiation link per remote member. Media capture is entirely the
// embedder's concern; a failing Negotiator never blocks drawing or chat.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hdboard/signaling/internal/peer"
	"github.com/hdboard/signaling/internal/wire"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// Negotiator produces and consumes session descriptions for this endpoint.
// Implementations typically wrap a webrtc.PeerConnection per remote peer.
type Negotiator interface {
	CreateOffer(remoteID string) (webrtc.SessionDescription, error)
	CreateAnswer(remoteID string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyRemoteDescription(remoteID string, desc webrtc.SessionDescription) error
	ApplyCandidate(remoteID string, c webrtc.ICECandidateInit) error
	ClosePeer(remoteID string)
}

// Options configures a Dial. URL, DisplayName, RoomID and Negotiator are
// required; the handlers are optional.
type Options struct {
	URL         string
	DisplayName string
	RoomID      string
	Negotiator  Negotiator

	OnStroke        func(stroke json.RawMessage)
	OnChat          func(from, text string)
	OnMemberJoined  func(displayName string)
	OnPeerLeft      func(connID string)
	OnLinkConnected func(remoteID string)

	// AnswerTimeout is forwarded to every link; zero keeps the peer
	// package default.
	AnswerTimeout time.Duration
}

// Client is one live connection to the signaling server.
type Client struct {
	opts Options
	conn *websocket.Conn

	writeMu sync.Mutex

	mu    sync.Mutex
	id    string
	links map[string]*peer.Link

	joined  chan struct{}
	joinErr chan error
	done    chan struct{}
	once    sync.Once
}

// Dial connects, joins the room, and returns once the server has
// acknowledged the join.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.URL == "" || opts.RoomID == "" {
		return nil, errors.New("client: URL and RoomID are required")
	}
	if opts.Negotiator == nil {
		return nil, errors.New("client: Negotiator is required")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}

	c := &Client{
		opts:    opts,
		conn:    conn,
		links:   make(map[string]*peer.Link),
		joined:  make(chan struct{}),
		joinErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	if err := c.write(wire.EventJoin, wire.JoinRequest{
		DisplayName: opts.DisplayName,
		RoomID:      opts.RoomID,
	}); err != nil {
		c.Close()
		return nil, err
	}

	select {
	case <-c.joined:
		return c, nil
	case err := <-c.joinErr:
		c.Close()
		return nil, err
	case <-c.done:
		return nil, errors.New("client: connection closed before join completed")
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

// ID reports the server-assigned connection ID.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// PublishStroke fans a drawing event out to the rest of the room.
func (c *Client) PublishStroke(stroke json.RawMessage) error {
	return c.write(wire.EventStroke, wire.StrokeRequest{Stroke: stroke})
}

// SendChat fans a chat line out to the rest of the room.
func (c *Client) SendChat(text string) error {
	return c.write(wire.EventChat, wire.ChatRequest{Text: text})
}

// AddLocalCandidate emits a locally gathered connectivity fragment toward
// the named remote peer.
func (c *Client) AddLocalCandidate(remoteID string, cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	l, ok := c.links[remoteID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no link to peer %s", remoteID)
	}
	return l.AddLocalCandidate(cand)
}

// Link returns the negotiation link for remoteID, if one exists.
func (c *Client) Link(remoteID string) (*peer.Link, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.links[remoteID]
	return l, ok
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears down the connection and every link. Idempotent.
func (c *Client) Close() {
	c.once.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		c.conn.Close()

		c.mu.Lock()
		links := make([]*peer.Link, 0, len(c.links))
		for _, l := range c.links {
			links = append(links, l)
		}
		c.links = make(map[string]*peer.Link)
		c.mu.Unlock()

		for _, l := range links {
			l.Close()
		}
		close(c.done)
	})
}

func (c *Client) write(event string, data any) error {
	env, err := wire.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		var env wire.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		c.handle(env)
	}
}

func (c *Client) handle(env wire.Envelope) {
	switch env.Event {
	case wire.EventJoined:
		var ack wire.JoinedAck
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			log.Error().Err(err).Msg("Malformed join ack")
			return
		}
		c.mu.Lock()
		c.id = ack.ConnID
		c.mu.Unlock()
		close(c.joined)

	case wire.EventNewPeer:
		var np wire.NewPeer
		if err := json.Unmarshal(env.Data, &np); err != nil {
			log.Error().Err(err).Msg("Malformed new-peer payload")
			return
		}
		c.initiate(np.ConnID)

	case wire.EventSignal:
		var relay wire.SignalRelay
		if err := json.Unmarshal(env.Data, &relay); err != nil {
			log.Error().Err(err).Msg("Malformed signal relay")
			return
		}
		var data peer.SignalData
		if err := json.Unmarshal(relay.Data, &data); err != nil {
			log.Warn().Err(err).Str("from", relay.From).Msg("Undecodable signal data, dropped")
			return
		}
		l := c.ensureLink(relay.From)
		if err := l.HandleRemote(data); err != nil {
			log.Error().Err(err).Str("from", relay.From).Msg("Negotiation step failed")
		}

	case wire.EventStroke:
		var sb wire.StrokeBroadcast
		if err := json.Unmarshal(env.Data, &sb); err != nil {
			return
		}
		if c.opts.OnStroke != nil {
			c.opts.OnStroke(sb.Stroke)
		}

	case wire.EventChat:
		var cb wire.ChatBroadcast
		if err := json.Unmarshal(env.Data, &cb); err != nil {
			return
		}
		if c.opts.OnChat != nil {
			c.opts.OnChat(cb.From, cb.Text)
		}

	case wire.EventMemberJoined:
		var mj wire.MemberJoined
		if err := json.Unmarshal(env.Data, &mj); err != nil {
			return
		}
		if c.opts.OnMemberJoined != nil {
			c.opts.OnMemberJoined(mj.DisplayName)
		}

	case wire.EventPeerLeft:
		var pl wire.PeerLeft
		if err := json.Unmarshal(env.Data, &pl); err != nil {
			return
		}
		c.dropLink(pl.ConnID)
		if c.opts.OnPeerLeft != nil {
			c.opts.OnPeerLeft(pl.ConnID)
		}

	case wire.EventError:
		var ei wire.ErrorInfo
		if err := json.Unmarshal(env.Data, &ei); err != nil {
			return
		}
		select {
		case <-c.joined:
			log.Warn().Str("message", ei.Message).Msg("Server rejected a request")
		default:
			select {
			case c.joinErr <- errors.New(ei.Message):
			default:
			}
		}

	default:
		log.Debug().Str("event", env.Event).Msg("Unknown event from server, dropped")
	}
}

// initiate starts negotiation toward a newly announced peer. This side is
// the initiator: existing members offer to arrivals.
func (c *Client) initiate(remoteID string) {
	l := c.ensureLink(remoteID)
	if l.State() != peer.StateNew {
		return
	}
	offer, err := c.opts.Negotiator.CreateOffer(remoteID)
	if err != nil {
		// Media may be unavailable locally; drawing and chat continue.
		log.Warn().Err(err).Str("remote_id", remoteID).Msg("Cannot create offer")
		return
	}
	if err := l.Offer(offer); err != nil {
		log.Warn().Err(err).Str("remote_id", remoteID).Msg("Offer not sent")
	}
}

// ensureLink returns the live link for remoteID, creating one if none exists
// or replacing one that has already closed. At most one live link per pair.
func (c *Client) ensureLink(remoteID string) *peer.Link {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.links[remoteID]; ok && l.State() != peer.StateClosed {
		return l
	}

	neg := c.opts.Negotiator
	l := peer.NewLink(peer.Config{
		LocalID:  c.id,
		RemoteID: remoteID,
		Send: func(data peer.SignalData) error {
			raw, err := json.Marshal(data)
			if err != nil {
				return err
			}
			return c.write(wire.EventSignal, wire.SignalRequest{To: remoteID, Data: raw})
		},
		NewAnswer: func(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
			return neg.CreateAnswer(remoteID, offer)
		},
		ApplyRemoteDescription: func(desc webrtc.SessionDescription) error {
			return neg.ApplyRemoteDescription(remoteID, desc)
		},
		ApplyCandidate: func(cand webrtc.ICECandidateInit) error {
			return neg.ApplyCandidate(remoteID, cand)
		},
		OnConnected: func() {
			if c.opts.OnLinkConnected != nil {
				c.opts.OnLinkConnected(remoteID)
			}
		},
		OnClosed: func() {
			neg.ClosePeer(remoteID)
		},
		AnswerTimeout: c.opts.AnswerTimeout,
	})
	c.links[remoteID] = l
	return l
}

func (c *Client) dropLink(remoteID string) {
	c.mu.Lock()
	l, ok := c.links[remoteID]
	if ok {
		delete(c.links, remoteID)
	}
	c.mu.Unlock()
	if ok {
		l.Close()
	}
}
