// Package wire defines the websocket event vocabulary shared by the server
// and the headless client.
package wire

import "encoding/json"

// Event names. These form the supported protocol contract.
const (
	EventJoin         = "join"
	EventJoined       = "joined"
	EventMemberJoined = "member-joined"
	EventNewPeer      = "new-peer"
	EventSignal       = "signal"
	EventStroke       = "stroke"
	EventChat         = "chat"
	EventPeerLeft     = "peer-left"
	EventError        = "error"
)

// Envelope wraps every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// JoinRequest registers the connection into a room.
type JoinRequest struct {
	DisplayName string `json:"displayName"`
	RoomID      string `json:"roomID"`
}

// MemberInfo is one entry of a room roster.
type MemberInfo struct {
	ConnID      string `json:"connID"`
	DisplayName string `json:"displayName"`
}

// JoinedAck acknowledges a join and carries the roster of members that were
// already in the room.
type JoinedAck struct {
	ConnID  string       `json:"connID"`
	RoomID  string       `json:"roomID"`
	Members []MemberInfo `json:"members"`
}

// MemberJoined notifies existing room members of an arrival.
type MemberJoined struct {
	DisplayName string `json:"displayName"`
}

// NewPeer tells existing room members to start negotiating with the arrival.
type NewPeer struct {
	ConnID      string `json:"connID"`
	DisplayName string `json:"displayName"`
}

// SignalRequest asks the server to relay an opaque negotiation payload to one
// named connection. The server never inspects Data.
type SignalRequest struct {
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}

// SignalRelay is the relayed form delivered to the target connection.
type SignalRelay struct {
	From        string          `json:"from"`
	DisplayName string          `json:"displayName"`
	Data        json.RawMessage `json:"data"`
}

// StrokeRequest publishes a drawing event to the sender's room. The stroke
// itself is opaque to the server.
type StrokeRequest struct {
	Stroke json.RawMessage `json:"stroke"`
}

// StrokeBroadcast is the fanout form of a stroke.
type StrokeBroadcast struct {
	Stroke json.RawMessage `json:"stroke"`
}

// ChatRequest publishes a chat line to the sender's room.
type ChatRequest struct {
	Text string `json:"text"`
}

// ChatBroadcast is the fanout form of a chat line, annotated with the
// sender's display name.
type ChatBroadcast struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// PeerLeft notifies room members of a departure.
type PeerLeft struct {
	ConnID string `json:"connID"`
}

// ErrorInfo reports a rejected request back to its sender.
type ErrorInfo struct {
	Message string `json:"message"`
}
