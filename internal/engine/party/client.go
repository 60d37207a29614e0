package party

import (
	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

// Client mirrors the host's frames and reports the local player's scores.
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
	if env.Type != types.EvtGameStart && env.Type != types.EvtGameState {
		return nil
	}
	if _, err := c.mirror.Apply(env); err != nil {
		return err
	}
	st, _ := c.mirror.State()
	c.view = st.Clone()
	return nil
}

// Submit reports points for the current round. A result that cannot count
// against the current view is dropped and Submit reports false.
func (c *Client) Submit(points int) (bool, error) {
	if _, ok := c.mirror.State(); !ok {
		return false, nil
	}
	round := c.view.Round
	if c.view.CanSubmit(c.me, round, points) != nil {
		return false, nil
	}
	env, err := types.NewEnvelope(types.EvtRoundResult, c.sessionID, types.RoundResult{PlayerID: c.me, Round: round, Points: points})
	if err != nil {
		return false, err
	}
	if err := c.pub.Publish(env); err != nil {
		return false, err
	}
	// shown until the host's next frame
	_, _ = c.view.Submit(c.me, round, points)
	return true, nil
}

func (c *Client) View() State { return c.view.Clone() }

func (c *Client) Authoritative() (State, bool) { return c.mirror.State() }

func (c *Client) Mirror() *engine.Mirror[State] { return c.mirror }
