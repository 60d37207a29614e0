package memory

import (
	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

// Client mirrors the host's frames. Card flips from other players are shown as
// soon as they are relayed; the next host frame replaces them.
type Client struct {
	me        string
	sessionID int
	pub       engine.Publisher
	mirror    *engine.Mirror[State]
	view      State
}

func NewClient(sessionID int, me string, pub engine.Publisher, log *zap.Logger) *Client {
	return &Client{
		me:        me,
		sessionID: sessionID,
		pub:       pub,
		mirror:    engine.NewMirror[State](log),
	}
}

func (c *Client) Apply(env types.Envelope) error {
	if env.Session != c.sessionID {
		return nil
	}
	switch env.Type {
	case types.EvtGameStart, types.EvtGameState:
		if _, err := c.mirror.Apply(env); err != nil {
			return err
		}
		st, _ := c.mirror.State()
		c.view = st.Clone()
	case types.EvtCardFlip:
		var p types.CardFlip
		if err := env.Decode(&p); err != nil {
			return err
		}
		if _, ok := c.mirror.State(); ok {
			// display only; the host decides whether it stands
			_, _ = c.view.Reveal(p.PlayerID, p.Position)
		}
	}
	return nil
}

// Flip sends a card-flip for the local player. Flips that cannot be legal
// against the current view are dropped and Flip reports false.
func (c *Client) Flip(pos int) (bool, error) {
	if _, ok := c.mirror.State(); !ok {
		return false, nil
	}
	if err := c.view.CanReveal(c.me, pos); err != nil {
		return false, nil
	}
	env, err := types.NewEnvelope(types.EvtCardFlip, c.sessionID, types.CardFlip{PlayerID: c.me, Position: pos})
	if err != nil {
		return false, err
	}
	if err := c.pub.Publish(env); err != nil {
		return false, err
	}
	_, _ = c.view.Reveal(c.me, pos)
	return true, nil
}

// View is the state to render, including flips not yet judged.
func (c *Client) View() State { return c.view.Clone() }

func (c *Client) Authoritative() (State, bool) { return c.mirror.State() }

func (c *Client) Mirror() *engine.Mirror[State] { return c.mirror }
