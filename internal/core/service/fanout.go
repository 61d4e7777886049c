package service

import (
	"encoding/json"

	"github.com/hdboard/signaling/internal/core/domain"
	"github.com/hdboard/signaling/internal/wire"
)

// Fanout broadcasts drawing and chat events to the other members of the
// sender's room. Nothing is persisted; a member not connected at publish
// time never sees the event.
type Fanout struct {
	registry *Registry
	relay    *Relay
}

func NewFanout(registry *Registry, relay *Relay) *Fanout {
	return &Fanout{
		registry: registry,
		relay:    relay,
	}
}

// PublishDrawing fans a stroke out to the sender's room, excluding the
// sender. The stroke is opaque to the server.
func (f *Fanout) PublishDrawing(sender domain.ConnID, stroke json.RawMessage) error {
	member, ok := f.registry.Member(sender)
	if !ok {
		return domain.ErrNotInRoom
	}
	f.relay.BroadcastToRoom(member.Room, sender, wire.EventStroke, wire.StrokeBroadcast{
		Stroke: stroke,
	})
	return nil
}

// PublishChat fans a chat line out to the sender's room, annotated with the
// sender's display name.
func (f *Fanout) PublishChat(sender domain.ConnID, text string) error {
	member, ok := f.registry.Member(sender)
	if !ok {
		return domain.ErrNotInRoom
	}
	f.relay.BroadcastToRoom(member.Room, sender, wire.EventChat, wire.ChatBroadcast{
		From: member.DisplayName,
		Text: text,
	})
	return nil
}
