package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrizzo9/multiplayer-arcade/internal/lobby"
	"github.com/jrizzo9/multiplayer-arcade/internal/room"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, lobby.Options{})
}

func joinRoom(t *testing.T, lb *lobby.Lobby, connID, playerID string) chan types.Envelope {
	t.Helper()
	out := make(chan types.Envelope, 16)
	reply := make(chan error, 1)
	require.NoError(t, lb.Submit(context.Background(), lobby.Join{
		ConnID: connID, Player: room.Player{ID: playerID}, Outbox: out, Reply: reply,
	}))
	require.NoError(t, <-reply)
	return out
}

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)

	lb1, err := h.Ensure(ctx, "ZED123")
	require.NoError(t, err)
	lb2, err := h.Ensure(ctx, "ZED123")
	require.NoError(t, err)
	lb3, err := h.Get(ctx, "ZED123")
	require.NoError(t, err)

	if lb1 == nil || lb1 != lb2 || lb1 != lb3 {
		t.Fatalf("expected same lobby pointer")
	}

	missing, err := h.Get(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHub_EmptyRoomIsRemovedAndRecreated(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)

	lb1, err := h.Ensure(ctx, "R1")
	require.NoError(t, err)
	joinRoom(t, lb1, "c1", "P1")
	require.NoError(t, lb1.Submit(ctx, lobby.Leave{ConnID: "c1"}))

	require.Eventually(t, func() bool {
		lb, err := h.Get(ctx, "R1")
		return err == nil && lb == nil
	}, time.Second, 5*time.Millisecond)

	lb2, err := h.Ensure(ctx, "R1")
	require.NoError(t, err)
	assert.NotSame(t, lb1, lb2)
	assert.False(t, lb2.Closed())
}

func TestHub_StaleRemoveKeepsNewLobby(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)

	old, err := h.Ensure(ctx, "R1")
	require.NoError(t, err)
	require.NoError(t, old.Submit(ctx, lobby.Shutdown{Reason: "test"}))
	require.Eventually(t, old.Closed, time.Second, 5*time.Millisecond)

	fresh, err := h.Ensure(ctx, "R1")
	require.NoError(t, err)
	require.NotSame(t, old, fresh)

	h.Inbox() <- RemoveRoom{ID: "R1", Lobby: old}
	got, err := h.Get(ctx, "R1")
	require.NoError(t, err)
	assert.Same(t, fresh, got)
}

func TestHub_ListRooms(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)

	b, err := h.Ensure(ctx, "B")
	require.NoError(t, err)
	_, err = h.Ensure(ctx, "A")
	require.NoError(t, err)
	out := joinRoom(t, b, "c1", "P1")
	<-out // snapshot published, summary updated

	rooms, err := h.List(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "A", rooms[0].RoomID)
	assert.Equal(t, lobby.Summary{RoomID: "B", Players: 1}, rooms[1])
}

func TestHub_ShutdownClosesRooms(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)

	lb, err := h.Ensure(ctx, "R1")
	require.NoError(t, err)
	out := joinRoom(t, lb, "c1", "P1")

	h.Shutdown("server shutting down")

	var last types.Envelope
	for env := range out {
		last = env
	}
	assert.Equal(t, types.EvtRoomClosed, last.Type)
	require.Eventually(t, lb.Closed, time.Second, 5*time.Millisecond)
	<-h.Done()

	_, err = h.Ensure(ctx, "R2")
	assert.ErrorIs(t, err, ErrClosed)
}
