package service

import (
	"encoding/json"

	"github.com/hdboard/signaling/internal/core/domain"
	"github.com/hdboard/signaling/internal/core/port"
	"github.com/hdboard/signaling/internal/wire"
	"github.com/rs/zerolog/log"
)

// Relay routes opaque negotiation payloads between named connections and
// fans room-scoped notifications out through the gateway. It is best-effort:
// a miss is logged and dropped, never an error, and payloads are never
// inspected.
type Relay struct {
	registry *Registry
	gateway  port.RealTimeGateway
}

func NewRelay(registry *Registry, gateway port.RealTimeGateway) *Relay {
	return &Relay{
		registry: registry,
		gateway:  gateway,
	}
}

// Route delivers payload to the target connection, annotated with the sender
// ID and the sender's registered display name.
func (r *Relay) Route(from, to domain.ConnID, payload json.RawMessage) {
	displayName := ""
	if member, ok := r.registry.Member(from); ok {
		displayName = member.DisplayName
	}

	env, err := wire.NewEnvelope(wire.EventSignal, wire.SignalRelay{
		From:        from.String(),
		DisplayName: displayName,
		Data:        payload,
	})
	if err != nil {
		log.Error().Err(err).Str("from", from.String()).Msg("Failed to encode signal relay")
		return
	}

	if !r.gateway.SendTo(to, env) {
		log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Signal target not connected, dropped")
	}
}

// BroadcastToRoom delivers an event to every member of roomID except
// excludeConnID. Per-sender ordering holds because each connection's events
// are dispatched from a single goroutine.
func (r *Relay) BroadcastToRoom(roomID domain.RoomID, excludeConnID domain.ConnID, event string, data any) {
	env, err := wire.NewEnvelope(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to encode broadcast")
		return
	}

	for _, member := range r.registry.Members(roomID) {
		if member.ID == excludeConnID {
			continue
		}
		if !r.gateway.SendTo(member.ID, env) {
			log.Debug().Str("event", event).Str("to", member.ID.String()).Msg("Broadcast target not connected, dropped")
		}
	}
}

// AnnounceJoin tells the rest of the room about an arrival. Both the
// human-facing notification and the negotiation trigger are room-scoped.
func (r *Relay) AnnounceJoin(member domain.Member) {
	r.BroadcastToRoom(member.Room, member.ID, wire.EventMemberJoined, wire.MemberJoined{
		DisplayName: member.DisplayName,
	})
	r.BroadcastToRoom(member.Room, member.ID, wire.EventNewPeer, wire.NewPeer{
		ConnID:      member.ID.String(),
		DisplayName: member.DisplayName,
	})
}

// AnnounceLeave tells the remaining room members about a departure so they
// can tear down their side of any peer link.
func (r *Relay) AnnounceLeave(member domain.Member) {
	r.BroadcastToRoom(member.Room, member.ID, wire.EventPeerLeft, wire.PeerLeft{
		ConnID: member.ID.String(),
	})
}
