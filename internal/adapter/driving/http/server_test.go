package http

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hdboard/signaling/internal/adapter/gateway/ws"
	"github.com/hdboard/signaling/internal/core/service"
	"github.com/hdboard/signaling/internal/wire"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	registry := service.NewRegistry(0)
	hub := ws.NewHub()
	relay := service.NewRelay(registry, hub)
	fanout := service.NewFanout(registry, relay)
	h := NewHandler(registry, relay, fanout, hub)

	ts := httptest.NewServer(h.NewRouter())
	t.Cleanup(func() {
		hub.Stop()
		ts.Close()
	})
	return ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	env, err := wire.NewEnvelope(event, data)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// expectEvent reads until it sees the named event, failing on timeout.
func expectEvent(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env wire.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env.Data
		}
	}
}

// expectSilence asserts nothing arrives within the window.
func expectSilence(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(window))
	var env wire.Envelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Fatalf("expected silence, got event %s", env.Event)
	}
}

func join(t *testing.T, conn *websocket.Conn, name, room string) wire.JoinedAck {
	t.Helper()
	sendEvent(t, conn, wire.EventJoin, wire.JoinRequest{DisplayName: name, RoomID: room})
	var ack wire.JoinedAck
	if err := json.Unmarshal(expectEvent(t, conn, wire.EventJoined), &ack); err != nil {
		t.Fatalf("decode joined ack: %v", err)
	}
	return ack
}

func TestJoinRosterAndAnnouncements(t *testing.T) {
	ts := newTestServer(t)

	a := dialWS(t, ts)
	ackA := join(t, a, "alice", "R1")
	if ackA.ConnID == "" || ackA.RoomID != "R1" || len(ackA.Members) != 0 {
		t.Fatalf("bad first ack: %+v", ackA)
	}

	b := dialWS(t, ts)
	ackB := join(t, b, "bob", "R1")
	if len(ackB.Members) != 1 || ackB.Members[0].ConnID != ackA.ConnID {
		t.Fatalf("bob's roster should list alice, got %+v", ackB.Members)
	}

	var mj wire.MemberJoined
	if err := json.Unmarshal(expectEvent(t, a, wire.EventMemberJoined), &mj); err != nil {
		t.Fatalf("decode member-joined: %v", err)
	}
	if mj.DisplayName != "bob" {
		t.Fatalf("member-joined = %+v", mj)
	}

	var np wire.NewPeer
	if err := json.Unmarshal(expectEvent(t, a, wire.EventNewPeer), &np); err != nil {
		t.Fatalf("decode new-peer: %v", err)
	}
	if np.ConnID != ackB.ConnID || np.DisplayName != "bob" {
		t.Fatalf("new-peer = %+v", np)
	}
}

func TestNewPeerScopedToRoom(t *testing.T) {
	ts := newTestServer(t)

	a := dialWS(t, ts)
	join(t, a, "alice", "R1")
	x := dialWS(t, ts)
	join(t, x, "xena", "R2")

	b := dialWS(t, ts)
	join(t, b, "bob", "R1")

	expectEvent(t, a, wire.EventNewPeer)
	expectSilence(t, x, 200*time.Millisecond)
}

func TestDuplicateJoinRejected(t *testing.T) {
	ts := newTestServer(t)

	a := dialWS(t, ts)
	join(t, a, "alice", "R1")
	sendEvent(t, a, wire.EventJoin, wire.JoinRequest{DisplayName: "alice", RoomID: "R2"})

	var ei wire.ErrorInfo
	if err := json.Unmarshal(expectEvent(t, a, wire.EventError), &ei); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !strings.Contains(ei.Message, "already joined") {
		t.Fatalf("unexpected rejection message: %q", ei.Message)
	}

	// Membership is untouched: strokes still reach the original room.
	b := dialWS(t, ts)
	join(t, b, "bob", "R1")
	expectEvent(t, a, wire.EventNewPeer)
	sendEvent(t, a, wire.EventStroke, wire.StrokeRequest{Stroke: json.RawMessage(`{"x":1}`)})
	expectEvent(t, b, wire.EventStroke)
}

func TestStrokeFanout(t *testing.T) {
	ts := newTestServer(t)

	a := dialWS(t, ts)
	join(t, a, "alice", "R1")
	b := dialWS(t, ts)
	join(t, b, "bob", "R1")
	x := dialWS(t, ts)
	join(t, x, "xena", "R2")
	expectEvent(t, a, wire.EventNewPeer)

	stroke := json.RawMessage(`{"points":[[1,2],[3,4]],"width":2}`)
	sendEvent(t, a, wire.EventStroke, wire.StrokeRequest{Stroke: stroke})

	var sb wire.StrokeBroadcast
	if err := json.Unmarshal(expectEvent(t, b, wire.EventStroke), &sb); err != nil {
		t.Fatalf("decode stroke: %v", err)
	}
	if string(sb.Stroke) != string(stroke) {
		t.Fatalf("stroke altered: got %s want %s", sb.Stroke, stroke)
	}

	expectSilence(t, x, 200*time.Millisecond)
	expectSilence(t, a, 200*time.Millisecond)
}

func TestChatFanout(t *testing.T) {
	ts := newTestServer(t)

	a := dialWS(t, ts)
	join(t, a, "alice", "R1")
	b := dialWS(t, ts)
	join(t, b, "bob", "R1")
	expectEvent(t, a, wire.EventNewPeer)

	sendEvent(t, b, wire.EventChat, wire.ChatRequest{Text: "hi alice"})

	var cb wire.ChatBroadcast
	if err := json.Unmarshal(expectEvent(t, a, wire.EventChat), &cb); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if cb.From != "bob" || cb.Text != "hi alice" {
		t.Fatalf("chat = %+v", cb)
	}
}

func TestSignalRelayAnnotation(t *testing.T) {
	ts := newTestServer(t)

	a := dialWS(t, ts)
	ackA := join(t, a, "alice", "R1")
	b := dialWS(t, ts)
	join(t, b, "bob", "R1")
	expectEvent(t, a, wire.EventNewPeer)

	payload := json.RawMessage(`{"sdp":{"type":"offer","sdp":"v=0"}}`)
	sendEvent(t, b, wire.EventSignal, wire.SignalRequest{To: ackA.ConnID, Data: payload})

	var relay wire.SignalRelay
	if err := json.Unmarshal(expectEvent(t, a, wire.EventSignal), &relay); err != nil {
		t.Fatalf("decode relay: %v", err)
	}
	if relay.DisplayName != "bob" || string(relay.Data) != string(payload) {
		t.Fatalf("relay = %+v", relay)
	}
}

func TestDisconnectCleanup(t *testing.T) {
	ts := newTestServer(t)

	a := dialWS(t, ts)
	join(t, a, "alice", "R1")
	b := dialWS(t, ts)
	ackB := join(t, b, "bob", "R1")
	expectEvent(t, a, wire.EventNewPeer)

	b.Close()

	var pl wire.PeerLeft
	if err := json.Unmarshal(expectEvent(t, a, wire.EventPeerLeft), &pl); err != nil {
		t.Fatalf("decode peer-left: %v", err)
	}
	if pl.ConnID != ackB.ConnID {
		t.Fatalf("peer-left = %+v", pl)
	}

	// Signaling toward the gone peer is dropped without error and the relay
	// keeps serving: the very next thing alice hears is carol's arrival.
	sendEvent(t, a, wire.EventSignal, wire.SignalRequest{To: ackB.ConnID, Data: json.RawMessage(`{}`)})

	c := dialWS(t, ts)
	join(t, c, "carol", "R1")

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env wire.Envelope
	if err := a.ReadJSON(&env); err != nil {
		t.Fatalf("read after drop: %v", err)
	}
	if env.Event != wire.EventMemberJoined {
		t.Fatalf("expected carol's member-joined next, got %s", env.Event)
	}
}

func TestPublishBeforeJoinRejected(t *testing.T) {
	ts := newTestServer(t)

	a := dialWS(t, ts)
	sendEvent(t, a, wire.EventStroke, wire.StrokeRequest{Stroke: json.RawMessage(`{}`)})

	var ei wire.ErrorInfo
	if err := json.Unmarshal(expectEvent(t, a, wire.EventError), &ei); err != nil {
		t.Fatalf("decode error: %v", err)
	}
}

func TestMalformedPayloadDoesNotKillConnection(t *testing.T) {
	ts := newTestServer(t)

	a := dialWS(t, ts)
	sendEvent(t, a, wire.EventJoin, "not an object")
	expectEvent(t, a, wire.EventError)

	// Unknown events are dropped silently.
	sendEvent(t, a, "bogus-event", map[string]string{"k": "v"})

	// The connection still works.
	ack := join(t, a, "alice", "R1")
	if ack.RoomID != "R1" {
		t.Fatalf("join after malformed payload failed: %+v", ack)
	}
}
