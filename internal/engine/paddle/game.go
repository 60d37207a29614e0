// Package paddle is the two-seat paddle game. Seat 0 defends the bottom edge,
// seat 1 the top edge.
package paddle

import (
	"math"
	"math/rand/v2"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
)

const (
	Width  = 400.0
	Height = 600.0

	PaddleWidth  = 80.0
	PaddleMargin = 20.0 // distance from the edge to the paddle face
	BallRadius   = 6.0

	BallSpeed = 300.0 // vertical px/s
	// MaxLateral caps the lateral speed an edge hit imparts, as a multiple of
	// the vertical speed.
	MaxLateral = 1.5
	// PaddleSpeed is how far a paddle may travel per second of input.
	PaddleSpeed = 480.0

	WinScore = 5
)

type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Ball struct {
	Pos Vec `json:"pos"`
	Vel Vec `json:"vel"`
}

type State struct {
	Ball    Ball       `json:"ball"`
	Paddles [2]float64 `json:"paddles"` // paddle centre x per seat
	Scores  [2]int     `json:"scores"`
	Players [2]string  `json:"players"`
	Serves  int        `json:"serves"`
	Over    bool       `json:"over"`
	Winner  int        `json:"winner"` // seat, -1 until over
}

func (s State) Header() engine.Header {
	h := engine.Header{
		State:  engine.StatePlaying,
		Scores: map[string]int{s.Players[0]: s.Scores[0], s.Players[1]: s.Scores[1]},
	}
	if s.Over {
		h.State = engine.StateGameOver
		if s.Winner >= 0 {
			h.Winner = s.Players[s.Winner]
		}
	}
	return h
}

// FaceY is the y of the paddle face the ball bounces off for seat.
func FaceY(seat int) float64 {
	if seat == 0 {
		return Height - PaddleMargin
	}
	return PaddleMargin
}

type Game struct {
	st   State
	seed int64
}

// New lays out a fresh game. Only the launch direction depends on seed.
func New(seed int64, players [2]string) *Game {
	g := &Game{
		st: State{
			Paddles: [2]float64{Width / 2, Width / 2},
			Players: players,
			Winner:  -1,
		},
		seed: seed,
	}
	g.serve()
	return g
}

// Restore resumes from a mirrored state, for a host taking over mid-game.
func Restore(seed int64, st State) *Game {
	return &Game{st: st, seed: seed}
}

func (g *Game) State() State { return g.st }

func (g *Game) Over() bool { return g.st.Over }

func (g *Game) SetPaddle(seat int, x float64) {
	if seat < 0 || seat > 1 || g.st.Over {
		return
	}
	g.st.Paddles[seat] = ClampPaddle(x)
}

func ClampPaddle(x float64) float64 {
	return min(max(x, PaddleWidth/2), Width-PaddleWidth/2)
}

func (g *Game) Step(dt float64) bool {
	if g.st.Over {
		return false
	}
	b := &g.st.Ball
	prevY := b.Pos.Y
	b.Pos.X += b.Vel.X * dt
	b.Pos.Y += b.Vel.Y * dt

	if b.Pos.X < BallRadius {
		b.Pos.X = 2*BallRadius - b.Pos.X
		b.Vel.X = -b.Vel.X
	} else if b.Pos.X > Width-BallRadius {
		b.Pos.X = 2*(Width-BallRadius) - b.Pos.X
		b.Vel.X = -b.Vel.X
	}

	switch {
	case b.Vel.Y > 0 && prevY+BallRadius <= FaceY(0) && b.Pos.Y+BallRadius >= FaceY(0) && g.onPaddle(0):
		Bounce(b, g.st.Paddles[0])
		b.Pos.Y = FaceY(0) - BallRadius
	case b.Vel.Y < 0 && prevY-BallRadius >= FaceY(1) && b.Pos.Y-BallRadius <= FaceY(1) && g.onPaddle(1):
		Bounce(b, g.st.Paddles[1])
		b.Pos.Y = FaceY(1) + BallRadius
	}

	switch {
	case b.Pos.Y < 0:
		return g.score(0)
	case b.Pos.Y > Height:
		return g.score(1)
	}
	return false
}

func (g *Game) onPaddle(seat int) bool {
	return math.Abs(g.st.Ball.Pos.X-g.st.Paddles[seat]) <= PaddleWidth/2+BallRadius
}

// Bounce reflects the vertical velocity and sets the lateral velocity from the
// hit offset: zero at the centre, MaxLateral times the vertical speed at an edge.
func Bounce(b *Ball, paddleX float64) {
	vy := math.Abs(b.Vel.Y)
	offset := min(max((b.Pos.X-paddleX)/(PaddleWidth/2), -1), 1)
	b.Vel.Y = -b.Vel.Y
	b.Vel.X = offset * MaxLateral * vy
}

func (g *Game) score(seat int) bool {
	g.st.Scores[seat]++
	if g.st.Scores[seat] >= WinScore {
		g.st.Over = true
		g.st.Winner = seat
		g.st.Ball.Vel = Vec{}
		return true
	}
	g.serve()
	return true
}

// serve puts the ball in the centre with a launch direction drawn from the
// session seed and the serve count, so a restored game keeps the same sequence.
func (g *Game) serve() {
	rng := rand.New(rand.NewPCG(uint64(g.seed), uint64(g.st.Serves)))
	g.st.Serves++

	vy := BallSpeed
	if rng.IntN(2) == 0 {
		vy = -vy
	}
	vx := (rng.Float64()*2 - 1) * 0.5 * BallSpeed
	g.st.Ball = Ball{Pos: Vec{X: Width / 2, Y: Height / 2}, Vel: Vec{X: vx, Y: vy}}
}
