package domain

import "errors"

// Member is the registry-owned record for one connection. Display names and
// room bindings live here, never on the transport object itself.
type Member struct {
	ID          ConnID
	DisplayName string
	Room        RoomID
}

func NewMember(id ConnID, displayName string, room RoomID) (Member, error) {
	if id == "" {
		return Member{}, errors.New("member connection id cannot be empty")
	}
	if room == "" {
		return Member{}, errors.New("room id cannot be empty")
	}
	return Member{
		ID:          id,
		DisplayName: displayName,
		Room:        room,
	}, nil
}
