package service

import (
	"errors"
	"testing"
	"time"

	"github.com/hdboard/signaling/internal/core/domain"
)

func TestJoinLeaveMembership(t *testing.T) {
	r := NewRegistry(0)

	existing, err := r.Join("a", "alice", "r1")
	if err != nil {
		t.Fatalf("join a: %v", err)
	}
	if len(existing) != 0 {
		t.Fatalf("expected empty room before first join, got %d members", len(existing))
	}

	existing, err = r.Join("b", "bob", "r1")
	if err != nil {
		t.Fatalf("join b: %v", err)
	}
	if len(existing) != 1 || existing[0].ID != "a" {
		t.Fatalf("expected snapshot [a], got %+v", existing)
	}

	members := r.Members("r1")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	member, ok := r.Leave("a")
	if !ok {
		t.Fatal("leave a: not found")
	}
	if member.Room != "r1" || member.DisplayName != "alice" {
		t.Fatalf("unexpected member record: %+v", member)
	}

	members = r.Members("r1")
	if len(members) != 1 || members[0].ID != "b" {
		t.Fatalf("expected [b] after leave, got %+v", members)
	}

	if _, ok := r.Leave("a"); ok {
		t.Fatal("second leave should be a no-op")
	}
}

func TestMembershipMatchesEventSequence(t *testing.T) {
	r := NewRegistry(0)

	type event struct {
		join bool
		id   domain.ConnID
	}
	seq := []event{
		{true, "a"}, {true, "b"}, {true, "c"},
		{false, "b"}, {true, "d"}, {false, "a"}, {false, "x"},
	}
	want := map[domain.ConnID]bool{"c": true, "d": true}

	for _, e := range seq {
		if e.join {
			if _, err := r.Join(e.id, string(e.id), "room"); err != nil {
				t.Fatalf("join %s: %v", e.id, err)
			}
		} else {
			r.Leave(e.id)
		}
	}

	got := map[domain.ConnID]bool{}
	for _, m := range r.Members("room") {
		got[m.ID] = true
	}
	if len(got) != len(want) {
		t.Fatalf("member set mismatch: got %v want %v", got, want)
	}
	for id := range want {
		if !got[id] {
			t.Fatalf("missing member %s", id)
		}
	}
}

func TestDuplicateJoinRejected(t *testing.T) {
	r := NewRegistry(0)

	if _, err := r.Join("a", "alice", "r1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := r.Join("a", "alice", "r2"); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined for different room, got %v", err)
	}
	if _, err := r.Join("a", "alice", "r1"); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined for same room, got %v", err)
	}

	// Existing membership must be untouched by the rejections.
	room, ok := r.LookupRoom("a")
	if !ok || room != "r1" {
		t.Fatalf("expected a still in r1, got %q found=%v", room, ok)
	}
	if members := r.Members("r2"); len(members) != 0 {
		t.Fatalf("r2 should be empty, got %+v", members)
	}
}

func TestLookupRoom(t *testing.T) {
	r := NewRegistry(0)

	if _, ok := r.LookupRoom("ghost"); ok {
		t.Fatal("unknown connection should not resolve")
	}
	r.Join("a", "alice", "r1")
	room, ok := r.LookupRoom("a")
	if !ok || room != "r1" {
		t.Fatalf("expected r1, got %q found=%v", room, ok)
	}
}

func TestEmptyRoomCollectedAfterGrace(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)

	r.Join("a", "alice", "r1")
	r.Leave("a")

	r.mu.RLock()
	_, exists := r.rooms["r1"]
	r.mu.RUnlock()
	if !exists {
		t.Fatal("room should survive the grace period")
	}

	deadline := time.Now().Add(time.Second)
	for {
		r.mu.RLock()
		_, exists = r.rooms["r1"]
		r.mu.RUnlock()
		if !exists {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("room was not collected after the grace period")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRejoinWithinGraceCancelsCollection(t *testing.T) {
	r := NewRegistry(50 * time.Millisecond)

	r.Join("a", "alice", "r1")
	r.Leave("a")
	if _, err := r.Join("b", "bob", "r1"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	r.mu.RLock()
	_, exists := r.rooms["r1"]
	r.mu.RUnlock()
	if !exists {
		t.Fatal("repopulated room must not be collected")
	}
	if members := r.Members("r1"); len(members) != 1 || members[0].ID != "b" {
		t.Fatalf("expected [b], got %+v", members)
	}
}
