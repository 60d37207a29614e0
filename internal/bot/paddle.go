// Package bot holds the opponent predictors that stand in for a human on a bot
// seat. Whoever drives the seat, host or client, calls the same functions.
package bot

import (
	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
	"github.com/jrizzo9/multiplayer-arcade/internal/engine/paddle"
)

// DefaultSteps bounds the forward simulation to a few seconds of flight.
const DefaultSteps = 600

// PredictIntercept simulates the ball forward with side-wall reflection until
// its centre reaches planeY. ok is false when the ball is moving away from the
// plane or does not arrive within maxSteps.
func PredictIntercept(b paddle.Ball, planeY float64, maxSteps int) (x float64, ok bool) {
	pos, vel := b.Pos, b.Vel
	if vel.Y == 0 || (planeY-pos.Y)*vel.Y < 0 {
		return pos.X, false
	}
	const lo, hi = paddle.BallRadius, paddle.Width - paddle.BallRadius
	for range maxSteps {
		dt := engine.MaxStep
		if rem := (planeY - pos.Y) / vel.Y; rem <= dt {
			dt = rem
			ok = true
		}
		pos.X += vel.X * dt
		pos.Y += vel.Y * dt
		if pos.X < lo {
			pos.X, vel.X = 2*lo-pos.X, -vel.X
		} else if pos.X > hi {
			pos.X, vel.X = 2*hi-pos.X, -vel.X
		}
		if ok {
			return pos.X, true
		}
	}
	return pos.X, false
}

// Paddle drives one seat of the paddle game.
type Paddle struct {
	Seat     int
	Speed    float64 // px/s, never more than a human gets
	MaxSteps int
}

func NewPaddle(seat int) Paddle {
	return Paddle{Seat: seat, Speed: paddle.PaddleSpeed, MaxSteps: DefaultSteps}
}

// Decide returns the paddle position after dt seconds: toward the predicted
// intercept while the ball approaches, back to the centre while it recedes.
func (p Paddle) Decide(st paddle.State, dt float64) float64 {
	cur := st.Paddles[p.Seat]
	target := paddle.Width / 2
	if x, ok := PredictIntercept(st.Ball, p.plane(), p.MaxSteps); ok && !st.Over {
		target = x
	}
	limit := p.Speed * dt
	move := min(max(target-cur, -limit), limit)
	return paddle.ClampPaddle(cur + move)
}

func (p Paddle) plane() float64 {
	if p.Seat == 0 {
		return paddle.FaceY(0) - paddle.BallRadius
	}
	return paddle.FaceY(1) + paddle.BallRadius
}
