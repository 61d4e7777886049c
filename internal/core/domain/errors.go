package domain

import "errors"

var (
	// ErrAlreadyJoined is returned when a connection that is already bound to
	// a room attempts to join another one. Existing membership is untouched.
	ErrAlreadyJoined = errors.New("connection already joined a room")

	// ErrNotInRoom is returned when a room-scoped publish arrives from a
	// connection that never joined.
	ErrNotInRoom = errors.New("connection is not a room member")
)
