package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hdboard/signaling/internal/adapter/gateway/ws"
	"github.com/hdboard/signaling/internal/core/domain"
	"github.com/hdboard/signaling/internal/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the frontend host is fixed
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection, registers it with the hub and runs the
// event dispatch loop until the transport drops.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	connID := domain.NewConnID()
	client := ws.NewWSClient(connID, conn)

	l := log.With().Str("conn_id", connID.String()).Logger()
	l.Info().Msg("New client connected")

	conn.SetReadLimit(ws.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(ws.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(ws.PongWait))
		return nil
	})

	h.Hub.Register(client)
	go client.WritePump()

	defer func() {
		// Unregister first so no relay targets this connection while the
		// departure is announced.
		h.Hub.Unregister(connID)
		if member, ok := h.Registry.Leave(connID); ok {
			h.Relay.AnnounceLeave(member)
		}
		client.Close()
		l.Info().Msg("Client disconnected")
	}()

	for {
		var env wire.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}
		h.dispatch(l, client, env)
	}
}

// dispatch handles one inbound envelope. A malformed payload is rejected
// back to the sender and never disturbs the loop or other connections.
func (h *Handler) dispatch(l zerolog.Logger, client *ws.WSClient, env wire.Envelope) {
	connID := client.ID()

	switch env.Event {
	case wire.EventJoin:
		var req wire.JoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.reject(client, "malformed join payload")
			return
		}
		existing, err := h.Registry.Join(connID, req.DisplayName, domain.RoomID(req.RoomID))
		if err != nil {
			if !errors.Is(err, domain.ErrAlreadyJoined) {
				l.Warn().Err(err).Msg("Join rejected")
			}
			h.reject(client, err.Error())
			return
		}
		l.Info().Str("room_id", req.RoomID).Str("display_name", req.DisplayName).Msg("Joined room")

		roster := make([]wire.MemberInfo, 0, len(existing))
		for _, m := range existing {
			roster = append(roster, wire.MemberInfo{ConnID: m.ID.String(), DisplayName: m.DisplayName})
		}
		ack, err := wire.NewEnvelope(wire.EventJoined, wire.JoinedAck{
			ConnID:  connID.String(),
			RoomID:  req.RoomID,
			Members: roster,
		})
		if err == nil {
			client.Send(ack)
		}

		member, _ := h.Registry.Member(connID)
		h.Relay.AnnounceJoin(member)

	case wire.EventSignal:
		var req wire.SignalRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.To == "" {
			h.reject(client, "malformed signal payload")
			return
		}
		h.Relay.Route(connID, domain.ConnID(req.To), req.Data)

	case wire.EventStroke:
		var req wire.StrokeRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.reject(client, "malformed stroke payload")
			return
		}
		if err := h.Fanout.PublishDrawing(connID, req.Stroke); err != nil {
			h.reject(client, err.Error())
		}

	case wire.EventChat:
		var req wire.ChatRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.reject(client, "malformed chat payload")
			return
		}
		if err := h.Fanout.PublishChat(connID, req.Text); err != nil {
			h.reject(client, err.Error())
		}

	default:
		l.Debug().Str("event", env.Event).Msg("Unknown event, dropped")
	}
}

func (h *Handler) reject(client *ws.WSClient, message string) {
	env, err := wire.NewEnvelope(wire.EventError, wire.ErrorInfo{Message: message})
	if err != nil {
		return
	}
	client.Send(env)
}
