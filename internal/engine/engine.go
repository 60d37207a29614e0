// Package engine holds the host-side plumbing shared by every game: frame
// sequencing, broadcast throttling, elapsed-time stepping for ticked games and
// the mirror non-host clients keep of the host's frames.
package engine

import (
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

const (
	StatePlaying  = "playing"
	StateGameOver = "gameover"
)

// Header is the part of a game payload the server understands.
type Header struct {
	State  string
	Winner string
	Scores map[string]int
}

type Payload interface {
	Header() Header
}

type Publisher interface {
	Publish(env types.Envelope) error
}
