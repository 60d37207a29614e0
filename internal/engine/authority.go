package engine

import "time"

const (
	// MaxStep is the longest single integration step.
	MaxStep = 1.0 / 120
	// MaxFrame caps the elapsed time integrated in one frame; a stalled host
	// resumes instead of fast-forwarding.
	MaxFrame = 0.25

	epsilon = 1e-9
)

// Ticked is a game the host advances by elapsed time.
type Ticked[S Payload] interface {
	// Step advances dt seconds and reports whether a score or the game state changed.
	Step(dt float64) bool
	State() S
	Over() bool
}

// Authority steps a ticked game on the host and publishes its frames.
type Authority[S Payload] struct {
	game    Ticked[S]
	session *Session[S]
	last    time.Time
}

func NewAuthority[S Payload](game Ticked[S], session *Session[S]) *Authority[S] {
	return &Authority[S]{game: game, session: session}
}

func (a *Authority[S]) Session() *Session[S] { return a.session }

// Start publishes the initial state as game-start.
func (a *Authority[S]) Start(now time.Time) error {
	a.last = now
	return a.session.Start(a.game.State())
}

// Frame integrates the time since the previous frame and publishes the result.
// A scoring step ends the frame early so the scoring state is the next frame
// anyone sees.
func (a *Authority[S]) Frame(now time.Time) error {
	if a.game.Over() && a.session.Over() {
		return nil
	}
	if a.last.IsZero() {
		a.last = now
	}
	dt := min(max(now.Sub(a.last).Seconds(), 0), MaxFrame)
	a.last = now

	for dt > epsilon && !a.game.Over() {
		step := min(dt, MaxStep)
		dt -= step
		if a.game.Step(step) {
			break
		}
	}
	_, err := a.session.Publish(now, a.game.State())
	return err
}
