package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine/memory"
	"github.com/jrizzo9/multiplayer-arcade/internal/engine/paddle"
	"github.com/jrizzo9/multiplayer-arcade/internal/engine/party"
)

func TestPredictIntercept(t *testing.T) {
	plane := paddle.FaceY(0) - paddle.BallRadius

	t.Run("straight down", func(t *testing.T) {
		x, ok := PredictIntercept(paddle.Ball{Pos: paddle.Vec{X: 120, Y: 300}, Vel: paddle.Vec{Y: 300}}, plane, DefaultSteps)
		require.True(t, ok)
		assert.InDelta(t, 120, x, 1e-6)
	})
	t.Run("off the right wall", func(t *testing.T) {
		// 294px to fall at equal speeds, 100px short of the wall
		b := paddle.Ball{Pos: paddle.Vec{X: 200, Y: plane - 294}, Vel: paddle.Vec{X: 300, Y: 300}}
		x, ok := PredictIntercept(b, plane, DefaultSteps)
		require.True(t, ok)
		assert.InDelta(t, 294, x, 1e-6)
	})
	t.Run("receding", func(t *testing.T) {
		_, ok := PredictIntercept(paddle.Ball{Pos: paddle.Vec{X: 200, Y: 300}, Vel: paddle.Vec{Y: -300}}, plane, DefaultSteps)
		assert.False(t, ok)
	})
	t.Run("out of steps", func(t *testing.T) {
		_, ok := PredictIntercept(paddle.Ball{Pos: paddle.Vec{X: 200, Y: 0}, Vel: paddle.Vec{Y: 300}}, plane, 10)
		assert.False(t, ok)
	})
}

func TestPaddle_HeadsForInterceptThenCentre(t *testing.T) {
	bot := NewPaddle(1)
	st := paddle.State{
		Ball:    paddle.Ball{Pos: paddle.Vec{X: 100, Y: 300}, Vel: paddle.Vec{Y: -300}},
		Paddles: [2]float64{200, 200},
	}
	x := bot.Decide(st, 0.1)
	assert.InDelta(t, 200-paddle.PaddleSpeed*0.1, x, 1e-9)

	st.Ball.Vel.Y = 300
	st.Paddles[1] = 100
	x = bot.Decide(st, 0.1)
	assert.InDelta(t, 148, x, 1e-9)
}

func TestPaddle_NeverOutrunsHumanSpeed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seat := rapid.IntRange(0, 1).Draw(t, "seat")
		st := paddle.State{
			Ball: paddle.Ball{
				Pos: paddle.Vec{X: rapid.Float64Range(paddle.BallRadius, paddle.Width-paddle.BallRadius).Draw(t, "x"), Y: rapid.Float64Range(0, paddle.Height).Draw(t, "y")},
				Vel: paddle.Vec{X: rapid.Float64Range(-450, 450).Draw(t, "vx"), Y: rapid.Float64Range(-300, 300).Draw(t, "vy")},
			},
		}
		cur := rapid.Float64Range(paddle.PaddleWidth/2, paddle.Width-paddle.PaddleWidth/2).Draw(t, "paddle")
		st.Paddles[seat] = cur
		dt := rapid.Float64Range(0, 0.25).Draw(t, "dt")

		next := NewPaddle(seat).Decide(st, dt)
		if d := next - cur; d > paddle.PaddleSpeed*dt+1e-9 || d < -paddle.PaddleSpeed*dt-1e-9 {
			t.Fatalf("moved %v in %v s", d, dt)
		}
		if next != paddle.ClampPaddle(next) {
			t.Fatalf("paddle left the field at %v", next)
		}
	})
}

func board(symbols ...int) memory.State {
	st := memory.State{Order: []string{"B", "H"}, Turn: "B", Scores: map[string]int{"B": 0, "H": 0}, Pending: []int{}}
	for _, s := range symbols {
		st.Board = append(st.Board, memory.Card{Symbol: s})
	}
	return st
}

func TestMemory_PrefersKnownPair(t *testing.T) {
	st := board(0, 1, 2, 0, 1, 2)
	m := NewMemory("B", 1)
	m.Revealed(st, 1)
	m.Revealed(st, 3)
	m.Revealed(st, 0)

	require.Equal(t, 0, m.Choose(st))
	st.Pending = []int{0}
	assert.Equal(t, 3, m.Choose(st))
}

func TestMemory_CompletesPairAfterLuckyFirstFlip(t *testing.T) {
	st := board(0, 1, 2, 0, 1, 2)
	m := NewMemory("B", 1)
	m.Revealed(st, 4)

	st.Pending = []int{1}
	m.Revealed(st, 1)
	assert.Equal(t, 4, m.Choose(st))
}

func TestMemory_IgnoresOpponentReveals(t *testing.T) {
	st := board(0, 1, 0, 1)
	st.Turn = "H"
	st.Pending = []int{0, 2}
	m := NewMemory("B", 1)
	assert.Equal(t, -1, m.Choose(st), "not the bot's turn")

	st.Turn, st.Pending = "B", []int{}
	m.Choose(st)
	for pos := range st.Board {
		_, ok := m.Known(pos)
		assert.False(t, ok, "position %d", pos)
	}
}

func TestMemory_PicksUnseenFaceDownCards(t *testing.T) {
	for seed := range int64(20) {
		st := board(0, 1, 2, 0, 1, 2)
		st.Board[2].Matched, st.Board[5].Matched = true, true
		m := NewMemory("B", seed)
		m.Revealed(st, 0)
		m.Revealed(st, 1)

		pos := m.Choose(st)
		assert.Contains(t, []int{3, 4}, pos, "seed %d", seed)
	}
}

func TestMemory_ForgetsMatchedCards(t *testing.T) {
	st := board(0, 0, 1, 1)
	m := NewMemory("B", 1)
	m.Revealed(st, 0)
	m.Revealed(st, 1)
	st.Board[0].Matched, st.Board[1].Matched = true, true

	pos := m.Choose(st)
	assert.Contains(t, []int{2, 3}, pos)
	_, ok := m.Known(0)
	assert.False(t, ok)
}

func TestParty_ReportsOncePerRoundWithinRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewParty("B1", rapid.Int64().Draw(t, "seed"))
		b.Skill = rapid.IntRange(0, party.MaxPoints).Draw(t, "skill")
		st := party.NewState(1, 2, []string{"B1", "P1"})

		pts := b.Points(st)
		if pts < 0 || pts > party.MaxPoints {
			t.Fatalf("points %d out of range", pts)
		}
		if _, err := st.Submit("B1", st.Round, pts); err != nil {
			t.Fatalf("bot result refused: %v", err)
		}
		if again := b.Points(st); again != -1 {
			t.Fatalf("bot reported twice: %d", again)
		}
	})
}
