package memory

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
	"github.com/jrizzo9/multiplayer-arcade/internal/room"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type recorder struct{ envs []types.Envelope }

func (r *recorder) Publish(env types.Envelope) error {
	r.envs = append(r.envs, env)
	return nil
}

func (r *recorder) last() types.Envelope { return r.envs[len(r.envs)-1] }

func fixed(symbols []int, order ...string) State {
	board := make([]Card, len(symbols))
	for i, s := range symbols {
		board[i] = Card{Symbol: s}
	}
	scores := map[string]int{}
	for _, id := range order {
		scores[id] = 0
	}
	return State{Board: board, Order: order, Turn: order[0], Scores: scores, Pending: []int{}}
}

func frameState(t *testing.T, env types.Envelope) (types.GameFrame, State) {
	t.Helper()
	var f types.GameFrame
	require.NoError(t, env.Decode(&f))
	var st State
	require.NoError(t, json.Unmarshal(f.Payload, &st))
	return f, st
}

func flipEnv(t *testing.T, session int, player string, pos int) types.Envelope {
	t.Helper()
	env, err := types.NewEnvelope(types.EvtCardFlip, session, types.CardFlip{PlayerID: player, Position: pos})
	require.NoError(t, err)
	return env
}

func TestState_MatchKeepsTurn(t *testing.T) {
	st := fixed([]int{0, 0, 1, 1}, "P1", "P2")

	pair, err := st.Reveal("P1", 0)
	require.NoError(t, err)
	assert.False(t, pair)
	pair, err = st.Reveal("P1", 1)
	require.NoError(t, err)
	assert.True(t, pair)

	assert.Equal(t, Match, st.Judge(0))
	assert.Equal(t, "P1", st.Turn)
	assert.Equal(t, 1, st.Scores["P1"])
	assert.Equal(t, uint64(1), st.PairSeq)
	assert.Empty(t, st.Pending)
	assert.True(t, st.Board[0].Matched)
}

func TestState_MismatchPassesTurnAfterHide(t *testing.T) {
	st := fixed([]int{0, 1, 0, 1}, "P1", "P2")
	_, _ = st.Reveal("P1", 0)
	_, _ = st.Reveal("P1", 1)

	require.Equal(t, Mismatch, st.Judge(0))
	assert.Equal(t, "P1", st.Turn, "turn holds while the pair is shown")
	assert.Len(t, st.Pending, 2)
	assert.True(t, st.Judged)

	require.True(t, st.Hide(0))
	assert.Equal(t, "P2", st.Turn)
	assert.Empty(t, st.Pending)
	assert.False(t, st.Judged)
	assert.Equal(t, 0, st.Scores["P1"])
}

func TestState_JudgementIsIdempotent(t *testing.T) {
	st := fixed([]int{0, 1, 0, 1}, "P1", "P2")
	_, _ = st.Reveal("P1", 0)
	_, _ = st.Reveal("P1", 1)

	require.Equal(t, Mismatch, st.Judge(0))
	assert.Equal(t, NoOp, st.Judge(0))
	require.True(t, st.Hide(0))
	assert.False(t, st.Hide(0))
	assert.False(t, st.Force(0))
	assert.Equal(t, "P2", st.Turn)

	_, _ = st.Reveal("P2", 0)
	_, _ = st.Reveal("P2", 2)
	require.Equal(t, Match, st.Judge(1))
	assert.Equal(t, NoOp, st.Judge(1))
	assert.Equal(t, 1, st.Scores["P2"])
}

func TestState_RejectsIllegalFlips(t *testing.T) {
	st := fixed([]int{0, 0, 1, 1}, "P1", "P2")
	st.Board[3].Matched = true

	assert.ErrorIs(t, st.CanReveal("P2", 0), ErrNotYourTurn)
	assert.ErrorIs(t, st.CanReveal("P1", 4), ErrBadPosition)
	assert.ErrorIs(t, st.CanReveal("P1", -1), ErrBadPosition)
	assert.ErrorIs(t, st.CanReveal("P1", 3), ErrCardUp)

	_, _ = st.Reveal("P1", 0)
	assert.ErrorIs(t, st.CanReveal("P1", 0), ErrCardUp)
	_, _ = st.Reveal("P1", 2)
	assert.ErrorIs(t, st.CanReveal("P1", 1), ErrPairPending)

	st.Over = true
	assert.ErrorIs(t, st.CanReveal("P1", 1), ErrGameOver)
}

func TestState_TieGoesToEarliestSeat(t *testing.T) {
	st := fixed([]int{0, 0, 1, 1}, "P1", "P2", "P3")
	st.Board[0].Matched, st.Board[1].Matched = true, true
	st.Scores = map[string]int{"P1": 0, "P2": 2, "P3": 1}
	st.Turn = "P3"

	_, _ = st.Reveal("P3", 2)
	_, _ = st.Reveal("P3", 3)
	require.Equal(t, Match, st.Judge(0))

	assert.True(t, st.Over)
	assert.Equal(t, "P2", st.Winner)
	h := st.Header()
	assert.Equal(t, engine.StateGameOver, h.State)
	assert.Equal(t, "P2", h.Winner)
	assert.Equal(t, map[string]int{"P1": 0, "P2": 2, "P3": 2}, h.Scores)
}

func TestState_RemovePlayer(t *testing.T) {
	t.Run("turn passes to the next seat", func(t *testing.T) {
		st := fixed([]int{0, 0, 1, 1}, "P1", "P2", "P3")
		st.Turn = "P2"
		_, _ = st.Reveal("P2", 0)

		require.True(t, st.RemovePlayer("P2"))
		assert.Equal(t, []string{"P1", "P3"}, st.Order)
		assert.Equal(t, "P3", st.Turn)
		assert.Empty(t, st.Pending)
		assert.Equal(t, uint64(1), st.PairSeq)
		assert.NotContains(t, st.Scores, "P2")
	})
	t.Run("last seat wraps", func(t *testing.T) {
		st := fixed([]int{0, 0, 1, 1}, "P1", "P2", "P3")
		st.Turn = "P3"
		require.True(t, st.RemovePlayer("P3"))
		assert.Equal(t, "P1", st.Turn)
	})
	t.Run("other player leaves", func(t *testing.T) {
		st := fixed([]int{0, 0, 1, 1}, "P1", "P2", "P3")
		_, _ = st.Reveal("P1", 0)
		require.True(t, st.RemovePlayer("P3"))
		assert.Equal(t, "P1", st.Turn)
		assert.Equal(t, []int{0}, st.Pending)
	})
	t.Run("one player left ends the game", func(t *testing.T) {
		st := fixed([]int{0, 0, 1, 1}, "P1", "P2")
		st.Scores["P1"] = 1
		require.True(t, st.RemovePlayer("P1"))
		assert.True(t, st.Over)
		assert.Equal(t, "P2", st.Winner)
	})
	t.Run("unknown player", func(t *testing.T) {
		st := fixed([]int{0, 0}, "P1", "P2")
		assert.False(t, st.RemovePlayer("P9"))
	})
}

func TestNewState_DeterministicBoard(t *testing.T) {
	a := NewState(7, DefaultPairs, []string{"P1", "P2"})
	b := NewState(7, DefaultPairs, []string{"P1", "P2"})
	assert.Equal(t, a, b)
	require.Len(t, a.Board, 2*DefaultPairs)

	counts := map[int]int{}
	for _, c := range a.Board {
		counts[c.Symbol]++
		assert.False(t, c.Matched)
	}
	for sym := range DefaultPairs {
		assert.Equal(t, 2, counts[sym], "symbol %d", sym)
	}
	assert.Equal(t, "P1", a.Turn)
	assert.Equal(t, map[string]int{"P1": 0, "P2": 0}, a.Scores)
}

func TestHost_JudgesAfterResolveDelay(t *testing.T) {
	rec := &recorder{}
	h := newHost(4, fixed([]int{0, 0, 1, 2, 1, 2}, "P1", "P2"), DefaultTiming, rec, nil)
	require.NoError(t, h.Start())
	assert.Equal(t, types.EvtGameStart, rec.envs[0].Type)

	require.NoError(t, h.Handle(t0, flipEnv(t, 4, "P1", 0)))
	require.NoError(t, h.Handle(t0, flipEnv(t, 4, "P1", 1)))
	_, st := frameState(t, rec.last())
	assert.Equal(t, []int{0, 1}, st.Pending)

	n := len(rec.envs)
	require.NoError(t, h.Frame(t0.Add(500*time.Millisecond)))
	assert.Len(t, rec.envs, n, "nothing due yet")

	require.NoError(t, h.Frame(t0.Add(time.Second)))
	f, st := frameState(t, rec.last())
	assert.Equal(t, 1, f.Scores["P1"])
	assert.Equal(t, "P1", st.Turn)
	assert.Empty(t, st.Pending)

	// a mismatch stays up for MismatchDelay, then the turn passes
	t1 := t0.Add(2 * time.Second)
	require.NoError(t, h.Flip(t1, "P1", 2))
	assert.Equal(t, types.EvtCardFlip, rec.envs[len(rec.envs)-2].Type)
	require.NoError(t, h.Flip(t1, "P1", 3))

	require.NoError(t, h.Frame(t1.Add(time.Second)))
	_, st = frameState(t, rec.last())
	assert.True(t, st.Judged)
	assert.Equal(t, "P1", st.Turn)

	n = len(rec.envs)
	require.NoError(t, h.Frame(t1.Add(1500*time.Millisecond)))
	assert.Len(t, rec.envs, n)

	require.NoError(t, h.Frame(t1.Add(2*time.Second)))
	_, st = frameState(t, rec.last())
	assert.Equal(t, "P2", st.Turn)
	assert.Empty(t, st.Pending)
	assert.Equal(t, uint64(2), st.PairSeq)
}

func TestHost_SafetyTimeoutSettlesStuckPair(t *testing.T) {
	rec := &recorder{}
	slow := Timing{ResolveDelay: 10 * time.Second, MismatchDelay: time.Second, SafetyTimeout: 5 * time.Second}
	h := newHost(1, fixed([]int{0, 1, 0, 1}, "P1", "P2"), slow, rec, nil)
	require.NoError(t, h.Start())

	require.NoError(t, h.Flip(t0, "P1", 0))
	require.NoError(t, h.Flip(t0, "P1", 1))
	require.NoError(t, h.Frame(t0.Add(4*time.Second)))
	assert.Len(t, h.State().Pending, 2)

	require.NoError(t, h.Frame(t0.Add(5*time.Second)))
	st := h.State()
	assert.Empty(t, st.Pending)
	assert.Equal(t, "P2", st.Turn)

	n := len(rec.envs)
	require.NoError(t, h.Frame(t0.Add(10*time.Second)))
	assert.Len(t, rec.envs, n, "the resolve timer from the old pair is stale")
}

func TestHost_RejectedFlipErrorsOnlyTheSender(t *testing.T) {
	rec := &recorder{}
	h := newHost(2, fixed([]int{0, 0, 1, 1}, "P1", "P2"), DefaultTiming, rec, nil)
	require.NoError(t, h.Start())

	require.NoError(t, h.Handle(t0, flipEnv(t, 2, "P2", 0)))
	env := rec.last()
	require.Equal(t, types.EvtRoomError, env.Type)
	var re types.RoomError
	require.NoError(t, env.Decode(&re))
	assert.Equal(t, room.CodeInvalidAction, re.Code)
	assert.Equal(t, "P2", re.Target)
	assert.Empty(t, h.State().Pending)

	n := len(rec.envs)
	require.NoError(t, h.Handle(t0, flipEnv(t, 1, "P1", 0)))
	assert.Len(t, rec.envs, n, "other sessions are ignored")
}

func TestHost_LeaveMidPairDisarmsTimers(t *testing.T) {
	rec := &recorder{}
	h := newHost(1, fixed([]int{0, 0, 1, 1}, "P1", "P2", "P3"), DefaultTiming, rec, nil)
	require.NoError(t, h.Start())
	require.NoError(t, h.Flip(t0, "P1", 0))
	require.NoError(t, h.Flip(t0, "P1", 1))

	require.NoError(t, h.RemovePlayer("P1"))
	require.NoError(t, h.Frame(t0.Add(time.Second)))

	st := h.State()
	assert.Equal(t, "P2", st.Turn)
	assert.False(t, st.Board[0].Matched)
	assert.Equal(t, map[string]int{"P2": 0, "P3": 0}, st.Scores)
}

func TestResumeHost_JudgesPendingPairOnItsOwnClock(t *testing.T) {
	last := fixed([]int{0, 0, 1, 1}, "P1", "P2")
	last.Pending = []int{0, 1}

	rec := &recorder{}
	h := ResumeHost(6, last, 10, DefaultTiming, rec, nil)
	require.NoError(t, h.Frame(t0))
	assert.Empty(t, rec.envs)

	require.NoError(t, h.Frame(t0.Add(time.Second)))
	require.Len(t, rec.envs, 1)
	f, st := frameState(t, rec.envs[0])
	assert.Equal(t, uint64(11), f.Seq)
	assert.Equal(t, 1, st.Scores["P1"])
	assert.Equal(t, []int{0, 1}, last.Pending, "the mirrored state is not mutated")
}

func TestClient_FlipsAndMirrors(t *testing.T) {
	hostOut := &recorder{}
	h := newHost(3, fixed([]int{0, 1, 0, 1}, "P1", "P2"), DefaultTiming, hostOut, nil)
	require.NoError(t, h.Start())

	sent := &recorder{}
	c := NewClient(3, "P2", sent, nil)
	ok, err := c.Flip(0)
	require.NoError(t, err)
	assert.False(t, ok, "no frame yet")

	require.NoError(t, c.Apply(hostOut.envs[0]))
	ok, err = c.Flip(0)
	require.NoError(t, err)
	assert.False(t, ok, "not P2's turn")
	assert.Empty(t, sent.envs)

	// P1's flip is shown before the host judges it
	require.NoError(t, c.Apply(flipEnv(t, 3, "P1", 2)))
	assert.Equal(t, []int{2}, c.View().Pending)
	auth, _ := c.Authoritative()
	assert.Empty(t, auth.Pending)

	require.NoError(t, h.Flip(t0, "P1", 2))
	require.NoError(t, h.Flip(t0, "P1", 3))
	require.NoError(t, h.Frame(t0.Add(time.Second)))
	require.NoError(t, h.Frame(t0.Add(2*time.Second)))
	require.NoError(t, c.Apply(hostOut.last()))
	assert.Equal(t, "P2", c.View().Turn)

	ok, err = c.Flip(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, sent.envs, 1)
	var p types.CardFlip
	require.NoError(t, sent.envs[0].Decode(&p))
	assert.Equal(t, types.CardFlip{PlayerID: "P2", Position: 1}, p)
	assert.Equal(t, []int{1}, c.View().Pending)

	ok, _ = c.Flip(1)
	assert.False(t, ok, "already face up locally")
}
