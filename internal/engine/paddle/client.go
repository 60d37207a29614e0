package paddle

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

const MoveHz = 60

// Client mirrors the host's frames and predicts the local seat's paddle. The
// prediction only affects View; Authoritative is what game logic reads.
type Client struct {
	sessionID int
	seat      int
	pub       engine.Publisher
	mirror    *engine.Mirror[State]
	limiter   *rate.Limiter

	predicted  float64
	predicting bool
	unsent     bool
}

// NewClient builds a mirror for sessionID. seat is -1 for players waiting in the queue.
func NewClient(sessionID, seat int, pub engine.Publisher, log *zap.Logger) *Client {
	return &Client{
		sessionID: sessionID,
		seat:      seat,
		pub:       pub,
		mirror:    engine.NewMirror[State](log),
		limiter:   rate.NewLimiter(MoveHz, 1),
	}
}

func (c *Client) Seat() int { return c.seat }

// Apply consumes game-start and game-state frames for this session.
func (c *Client) Apply(env types.Envelope) error {
	if env.Session != c.sessionID {
		return nil
	}
	switch env.Type {
	case types.EvtGameStart, types.EvtGameState:
		_, err := c.mirror.Apply(env)
		return err
	}
	return nil
}

// Move applies local input at once and sends it to the host, at most MoveHz
// times a second. A move the limiter holds back goes out on the next Flush.
func (c *Client) Move(now time.Time, x float64) error {
	if c.seat < 0 {
		return nil
	}
	if st, ok := c.mirror.State(); ok && st.Over {
		return nil
	}
	c.predicted, c.predicting, c.unsent = ClampPaddle(x), true, true
	return c.Flush(now)
}

func (c *Client) Flush(now time.Time) error {
	if !c.unsent || !c.limiter.AllowN(now, 1) {
		return nil
	}
	env, err := types.NewEnvelope(types.EvtPaddleMove, c.sessionID, types.PaddleMove{Seat: c.seat, Position: c.predicted})
	if err != nil {
		return err
	}
	c.unsent = false
	return c.pub.Publish(env)
}

// View is the state to render: the host's frame with the local paddle replaced
// by the prediction.
func (c *Client) View() State {
	st, _ := c.mirror.State()
	if c.predicting && c.seat >= 0 && !st.Over {
		st.Paddles[c.seat] = c.predicted
	}
	return st
}

func (c *Client) Authoritative() (State, bool) { return c.mirror.State() }

func (c *Client) Mirror() *engine.Mirror[State] { return c.mirror }
