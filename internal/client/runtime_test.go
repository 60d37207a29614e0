package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine/memory"
	"github.com/jrizzo9/multiplayer-arcade/internal/engine/paddle"
	"github.com/jrizzo9/multiplayer-arcade/internal/engine/party"
	"github.com/jrizzo9/multiplayer-arcade/internal/room"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type recorder struct{ envs []types.Envelope }

func (r *recorder) Publish(env types.Envelope) error {
	r.envs = append(r.envs, env)
	return nil
}

func (r *recorder) ofType(typ string) []types.Envelope {
	var out []types.Envelope
	for _, env := range r.envs {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func snapshotEnv(t *testing.T, snap types.RoomSnapshot) types.Envelope {
	t.Helper()
	env, err := types.NewEnvelope(types.EvtRoomSnapshot, 0, snap)
	require.NoError(t, err)
	return env
}

func seatedPlayers(ids ...string) []types.PlayerView {
	out := make([]types.PlayerView, len(ids))
	for i, id := range ids {
		out[i] = types.PlayerView{ID: id, Name: id, Seat: i}
	}
	return out
}

func playing(version int, host, game string, sessionID int, players []types.PlayerView) types.RoomSnapshot {
	return types.RoomSnapshot{
		Version:      version,
		RoomID:       "R1",
		HostPlayerID: host,
		SelectedGame: game,
		Players:      players,
		Session:      &types.SessionView{ID: sessionID, Game: game, State: string(room.StatePlaying), Seed: 3},
	}
}

func newRuntime(me string) (*Runtime, *recorder) {
	rec := &recorder{}
	return NewRuntime(me, rec, Options{Now: func() time.Time { return t0 }}), rec
}

func TestRuntime_HostStartsPaddleSession(t *testing.T) {
	rt, rec := newRuntime("P1")
	require.NoError(t, rt.Handle(snapshotEnv(t, playing(4, "P1", room.GamePong, 1, seatedPlayers("P1", "P2")))))

	require.Len(t, rec.envs, 1)
	assert.Equal(t, types.EvtGameStart, rec.envs[0].Type)
	assert.Equal(t, 1, rec.envs[0].Session)

	st, ok := rt.PaddleView()
	require.True(t, ok)
	assert.Equal(t, [2]string{"P1", "P2"}, st.Players)

	// a relayed move from seat 1 lands in the host's game
	mv, err := types.NewEnvelope(types.EvtPaddleMove, 1, types.PaddleMove{Seat: 1, Position: 70})
	require.NoError(t, err)
	require.NoError(t, rt.Handle(mv))
	st, _ = rt.PaddleView()
	assert.Equal(t, 70.0, st.Paddles[1])

	// replaying the same snapshot does not restart the game
	require.NoError(t, rt.Handle(snapshotEnv(t, playing(4, "P1", room.GamePong, 1, seatedPlayers("P1", "P2")))))
	assert.Len(t, rec.ofType(types.EvtGameStart), 1)
}

func TestRuntime_MirrorsWhenNotHost(t *testing.T) {
	rt, rec := newRuntime("P2")
	require.NoError(t, rt.Handle(snapshotEnv(t, playing(2, "P1", room.GamePong, 1, seatedPlayers("P1", "P2")))))
	assert.Empty(t, rec.envs)

	hostOut := &recorder{}
	host := paddle.NewHost(1, 3, [2]string{"P1", "P2"}, hostOut, 30, nil)
	require.NoError(t, host.Start(t0))
	require.NoError(t, rt.Handle(hostOut.envs[0]))

	require.NoError(t, rt.MovePaddle(t0, 300))
	sent := rec.ofType(types.EvtPaddleMove)
	require.Len(t, sent, 1)
	var pm types.PaddleMove
	require.NoError(t, sent[0].Decode(&pm))
	assert.Equal(t, types.PaddleMove{Seat: 1, Position: 300}, pm)

	view, ok := rt.PaddleView()
	require.True(t, ok)
	assert.Equal(t, 300.0, view.Paddles[1])
}

func TestRuntime_TakeoverResumesFromLastFrame(t *testing.T) {
	rt, rec := newRuntime("P2")
	players := seatedPlayers("P1", "P2", "P3")
	require.NoError(t, rt.Handle(snapshotEnv(t, playing(5, "P1", room.GameMemory, 2, players))))

	hostOut := &recorder{}
	old := memory.NewHost(2, 9, []string{"P1", "P2", "P3"}, memory.DefaultPairs, memory.DefaultTiming, hostOut, nil)
	require.NoError(t, old.Start())
	require.NoError(t, old.Flip(t0, "P1", 0))
	for _, env := range hostOut.envs {
		require.NoError(t, rt.Handle(env))
	}
	var lastSeq uint64
	for _, env := range hostOut.ofType(types.EvtGameState) {
		var f types.GameFrame
		require.NoError(t, env.Decode(&f))
		lastSeq = f.Seq
	}
	require.NotZero(t, lastSeq)

	// P1 drops; the registry promotes P2
	require.NoError(t, rt.Handle(snapshotEnv(t, playing(6, "P2", room.GameMemory, 2, players[1:]))))
	require.True(t, rt.IsHost())
	assert.Empty(t, rec.ofType(types.EvtGameStart), "a takeover does not restart the session")

	frames := rec.ofType(types.EvtGameState)
	require.Len(t, frames, 1)
	var f types.GameFrame
	require.NoError(t, frames[0].Decode(&f))
	assert.Equal(t, lastSeq+1, f.Seq)
	var st memory.State
	require.NoError(t, json.Unmarshal(f.Payload, &st))
	assert.Equal(t, []string{"P2", "P3"}, st.Order)
	assert.Equal(t, "P2", st.Turn)
	assert.Empty(t, st.Pending)
}

func TestRuntime_DrivesBotSeats(t *testing.T) {
	now := t0
	rec := &recorder{}
	rt := NewRuntime("P1", rec, Options{Now: func() time.Time { return now }, BotDelay: 500 * time.Millisecond})

	players := []types.PlayerView{
		{ID: "B1", Name: "Bot 1", Bot: true, Seat: 0},
		{ID: "P1", Name: "P1", Seat: 1},
	}
	require.NoError(t, rt.Handle(snapshotEnv(t, playing(3, "P1", room.GameMemory, 1, players))))

	require.NoError(t, rt.Frame(now))
	now = now.Add(200 * time.Millisecond)
	require.NoError(t, rt.Frame(now))
	require.Len(t, rec.ofType(types.EvtCardFlip), 1, "bots wait between flips")

	now = now.Add(300 * time.Millisecond)
	require.NoError(t, rt.Frame(now))
	flips := rec.ofType(types.EvtCardFlip)
	require.Len(t, flips, 2)
	for _, env := range flips {
		var p types.CardFlip
		require.NoError(t, env.Decode(&p))
		assert.Equal(t, "B1", p.PlayerID)
	}
	st, _ := rt.MemoryView()
	assert.Len(t, st.Pending, 2)
}

func TestRuntime_DropsInvalidLocalActions(t *testing.T) {
	rt, rec := newRuntime("P2")
	require.NoError(t, rt.Handle(snapshotEnv(t, playing(2, "P1", room.GameMemory, 1, seatedPlayers("P1", "P2")))))

	hostOut := &recorder{}
	host := memory.NewHost(1, 3, []string{"P1", "P2"}, memory.DefaultPairs, memory.DefaultTiming, hostOut, nil)
	require.NoError(t, host.Start())
	require.NoError(t, rt.Handle(hostOut.envs[0]))

	// not host, game running, not P2's turn, not a paddle game
	require.NoError(t, rt.SelectGame(room.GamePong))
	require.NoError(t, rt.Ready(true))
	require.NoError(t, rt.Flip(t0, 0))
	require.NoError(t, rt.Rotate())
	require.NoError(t, rt.Restart())
	require.NoError(t, rt.AddBot("Robo"))
	require.NoError(t, rt.MovePaddle(t0, 10))
	assert.Empty(t, rec.envs)
}

func TestRuntime_HostRotatesAfterGameOver(t *testing.T) {
	rt, rec := newRuntime("P1")
	snap := playing(9, "P1", room.GamePong, 4, []types.PlayerView{
		{ID: "P1", Seat: 0}, {ID: "P2", Seat: 1}, {ID: "P3", Seat: -1},
	})
	snap.Session.State = string(room.StateGameOver)
	snap.Session.Winner = "P1"
	require.NoError(t, rt.Handle(snapshotEnv(t, snap)))

	require.NoError(t, rt.Rotate())
	require.Len(t, rec.envs, 1)
	assert.Equal(t, types.EvtRotatePlayers, rec.envs[0].Type)
	var p types.Rotation
	require.NoError(t, rec.envs[0].Decode(&p))
	assert.Equal(t, types.Rotation{Winner: "P1", Loser: "P2"}, p)

	require.NoError(t, rt.Restart())
	assert.Equal(t, types.EvtRestart, rec.envs[1].Type)
}

func TestRuntime_HostPlaysMicrogamesToTheEnd(t *testing.T) {
	now := t0
	rec := &recorder{}
	rt := NewRuntime("P1", rec, Options{
		Now:       func() time.Time { return now },
		BotDelay:  100 * time.Millisecond,
		RoundTime: 2 * time.Second,
	})
	players := []types.PlayerView{
		{ID: "P1", Name: "P1", Seat: 0},
		{ID: "B1", Name: "Bot 1", Bot: true, Seat: 1},
	}
	snap := playing(2, "P1", room.GameMicrogames, 1, players)
	require.NoError(t, rt.Handle(snapshotEnv(t, snap)))
	require.Len(t, rec.ofType(types.EvtGameStart), 1)

	for range 200 {
		now = now.Add(50 * time.Millisecond)
		require.NoError(t, rt.Submit(now, 40))
		require.NoError(t, rt.Frame(now))
	}

	frames := rec.ofType(types.EvtGameState)
	require.NotEmpty(t, frames)
	var f types.GameFrame
	require.NoError(t, frames[len(frames)-1].Decode(&f))
	assert.Equal(t, string(room.StateGameOver), f.State)
	assert.Equal(t, 40*party.DefaultRounds, f.Scores["P1"])
	assert.Contains(t, []string{"P1", "B1"}, f.Winner)
	var st party.State
	require.NoError(t, json.Unmarshal(f.Payload, &st))
	assert.True(t, st.Over)

	// the server closes the session; the host can then restart the room
	snap.Version, snap.Session.State, snap.Session.Winner = 3, string(room.StateGameOver), f.Winner
	require.NoError(t, rt.Handle(snapshotEnv(t, snap)))
	require.NoError(t, rt.Restart())
	assert.Equal(t, types.EvtRestart, rec.envs[len(rec.envs)-1].Type)
}

func TestRuntime_IgnoresOlderSnapshots(t *testing.T) {
	rt, _ := newRuntime("P1")
	require.NoError(t, rt.Handle(snapshotEnv(t, types.RoomSnapshot{Version: 3, HostPlayerID: "P1", Players: seatedPlayers("P1")})))
	require.NoError(t, rt.Handle(snapshotEnv(t, types.RoomSnapshot{Version: 2, HostPlayerID: "P9", Players: seatedPlayers("P9")})))
	snap, ok := rt.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 3, snap.Version)
	assert.True(t, rt.IsHost())
}

func TestRuntime_RoomClosed(t *testing.T) {
	rt, _ := newRuntime("P1")
	env, err := types.NewEnvelope(types.EvtRoomClosed, 0, types.RoomClosed{Reason: "replaced"})
	require.NoError(t, err)
	assert.ErrorIs(t, rt.Handle(env), ErrClosed)
	reason, closed := rt.Closed()
	assert.True(t, closed)
	assert.Equal(t, "replaced", reason)
}
