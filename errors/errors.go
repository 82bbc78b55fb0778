// Package errors defines the failure taxonomy of the chat core. Every
// sentinel carries the user-visible message that is sent back to the
// originating connection as an "error" event.
package errors

import "errors"

var (
	ErrUnauthenticated = errors.New("not authorized, token invalid or expired")
	ErrRoomNotFound    = errors.New("Room not found")
	ErrRoomNameTaken   = errors.New("Room name already exists")
	ErrForbidden       = errors.New("Not authorized to delete this room")
	ErrInvalidContent  = errors.New("Invalid message content")
	ErrNotInRoom       = errors.New("You must join a room before sending messages")
	ErrRateLimited     = errors.New("Too many messages. Please slow down.")
)

// Is reports whether err matches target, re-exported so callers do not
// need to import both this package and the stdlib errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
