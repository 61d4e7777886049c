package service

import (
	"sort"
	"sync"
	"time"

	"github.com/hdboard/signaling/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// Registry is the single source of truth for room membership. Rooms are
// created implicitly on first join and garbage-collected a grace period after
// the last member leaves, so a refresh-and-rejoin does not churn room state.
type Registry struct {
	mu       sync.RWMutex
	members  map[domain.ConnID]domain.Member
	rooms    map[domain.RoomID]map[domain.ConnID]struct{}
	gcGrace  time.Duration
	gcTimers map[domain.RoomID]*time.Timer
}

func NewRegistry(gcGrace time.Duration) *Registry {
	return &Registry{
		members:  make(map[domain.ConnID]domain.Member),
		rooms:    make(map[domain.RoomID]map[domain.ConnID]struct{}),
		gcGrace:  gcGrace,
		gcTimers: make(map[domain.RoomID]*time.Timer),
	}
}

// Join binds connID to roomID and returns a snapshot of the members that
// were already in the room. A connection bound to any room (the same one
// included) is rejected with domain.ErrAlreadyJoined and nothing changes.
func (r *Registry) Join(connID domain.ConnID, displayName string, roomID domain.RoomID) ([]domain.Member, error) {
	member, err := domain.NewMember(connID, displayName, roomID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[connID]; ok {
		return nil, domain.ErrAlreadyJoined
	}

	if t, ok := r.gcTimers[roomID]; ok {
		t.Stop()
		delete(r.gcTimers, roomID)
	}

	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[domain.ConnID]struct{})
		r.rooms[roomID] = room
		log.Debug().Str("room_id", roomID.String()).Msg("Room created")
	}

	existing := r.snapshotLocked(roomID)

	room[connID] = struct{}{}
	r.members[connID] = member

	return existing, nil
}

// Leave removes connID from its room. It reports the member record that was
// removed, or false when the connection never joined (a no-op).
func (r *Registry) Leave(connID domain.ConnID) (domain.Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	member, ok := r.members[connID]
	if !ok {
		return domain.Member{}, false
	}

	delete(r.members, connID)
	if room, ok := r.rooms[member.Room]; ok {
		delete(room, connID)
		if len(room) == 0 {
			r.scheduleGCLocked(member.Room)
		}
	}
	return member, true
}

// LookupRoom reports the room connID is bound to, if any.
func (r *Registry) LookupRoom(connID domain.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	member, ok := r.members[connID]
	if !ok {
		return "", false
	}
	return member.Room, true
}

// Member returns the registry record for connID.
func (r *Registry) Member(connID domain.ConnID) (domain.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	member, ok := r.members[connID]
	return member, ok
}

// Members returns the room's member records, ordered by connection ID for
// deterministic rosters.
func (r *Registry) Members(roomID domain.RoomID) []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(roomID)
}

func (r *Registry) snapshotLocked(roomID domain.RoomID) []domain.Member {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]domain.Member, 0, len(room))
	for id := range room {
		out = append(out, r.members[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) scheduleGCLocked(roomID domain.RoomID) {
	if r.gcGrace <= 0 {
		delete(r.rooms, roomID)
		log.Debug().Str("room_id", roomID.String()).Msg("Empty room deleted")
		return
	}
	if t, ok := r.gcTimers[roomID]; ok {
		t.Stop()
	}
	r.gcTimers[roomID] = time.AfterFunc(r.gcGrace, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.gcTimers, roomID)
		if room, ok := r.rooms[roomID]; ok && len(room) == 0 {
			delete(r.rooms, roomID)
			log.Debug().Str("room_id", roomID.String()).Msg("Empty room collected")
		}
	})
}
