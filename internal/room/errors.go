package room

import (
	"errors"
	"fmt"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrNotHost = errors.New("only the host can do that")
var ErrInvalidAction = errors.New("invalid action")
var ErrStaleSession = errors.New("session is no longer current")

var ErrRoomFull = fmt.Errorf("%w: room is full", ErrInvalidAction)
var ErrUnknownGame = fmt.Errorf("%w: unknown game", ErrInvalidAction)
var ErrNotMember = fmt.Errorf("%w: not a member of this room", ErrInvalidAction)
var ErrGameInProgress = fmt.Errorf("%w: game in progress", ErrInvalidAction)

// Wire codes carried by room-error events.
const (
	CodeRoomNotFound  = "RoomNotFound"
	CodeNotHost       = "NotHost"
	CodeInvalidAction = "InvalidAction"
	CodeStaleSession  = "StaleSession"
)

// Code maps an error to its wire code. Unknown errors are reported as InvalidAction.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrNotHost):
		return CodeNotHost
	case errors.Is(err, ErrStaleSession):
		return CodeStaleSession
	default:
		return CodeInvalidAction
	}
}
