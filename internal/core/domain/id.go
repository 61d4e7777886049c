package domain

import (
	"github.com/google/uuid"
)

// ConnID identifies one live transport endpoint for the lifetime of its
// connection. Minted server-side at upgrade time.
type ConnID string

// RoomID is an opaque, client-supplied room name.
type RoomID string

func NewConnID() ConnID {
	return ConnID(uuid.New().String())
}

func (id ConnID) String() string {
	return string(id)
}

func (id RoomID) String() string {
	return string(id)
}
