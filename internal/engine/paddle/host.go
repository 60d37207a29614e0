package paddle

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

// Host runs the authoritative game on the host's client. Both seats' paddle
// positions, local or relayed, land in the same frame stream.
type Host struct {
	game *Game
	auth *engine.Authority[State]
}

func NewHost(sessionID int, seed int64, players [2]string, pub engine.Publisher, hz int, log *zap.Logger) *Host {
	game := New(seed, players)
	return &Host{
		game: game,
		auth: engine.NewAuthority[State](game, engine.NewSession[State](sessionID, pub, hz, log)),
	}
}

// ResumeHost takes over a session from the last frame this client mirrored.
func ResumeHost(sessionID int, seed int64, last State, seq uint64, pub engine.Publisher, hz int, log *zap.Logger) *Host {
	game := Restore(seed, last)
	session := engine.NewSession[State](sessionID, pub, hz, log)
	session.Resume(seq, last)
	return &Host{game: game, auth: engine.NewAuthority[State](game, session)}
}

func (h *Host) Start(now time.Time) error { return h.auth.Start(now) }

func (h *Host) Frame(now time.Time) error { return h.auth.Frame(now) }

func (h *Host) Move(seat int, x float64) { h.game.SetPaddle(seat, x) }

func (h *Host) State() State { return h.game.State() }

func (h *Host) Over() bool { return h.game.Over() }

func (h *Host) SessionID() int { return h.auth.Session().ID() }

// Handle applies a relayed paddle-move. The seat was stamped by the server.
func (h *Host) Handle(env types.Envelope) error {
	if env.Type != types.EvtPaddleMove {
		return nil
	}
	if env.Session != h.SessionID() {
		return nil
	}
	var p types.PaddleMove
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("decode paddle-move: %w", err)
	}
	h.Move(p.Seat, p.Position)
	return nil
}
