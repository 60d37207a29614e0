package hub

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/internal/lobby"
)

var ErrClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// EnsureRoom returns the live lobby for ID, creating one if none exists or the
// previous one already closed.
type EnsureRoom struct {
	ID    string
	Reply chan *lobby.Lobby
}

type GetRoom struct {
	ID    string
	Reply chan *lobby.Lobby // nil when absent
}

type ListRooms struct {
	Reply chan []lobby.Summary
}

// RemoveRoom deletes ID only while it still maps to Lobby, so a late removal
// cannot evict a fresh lobby created under the same code.
type RemoveRoom struct {
	ID    string
	Lobby *lobby.Lobby
}

type ShutdownHub struct{ Reason string }

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (ListRooms) isHubMsg()   {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	opts    lobby.Options
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewHub starts the hub loop. opts is the template for every lobby it creates;
// OnEmpty is overwritten.
func NewHub(parent context.Context, opts lobby.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		log:     opts.Log,
		ctx:     ctx,
		cancel:  cancel,
	}
	opts.OnEmpty = h.lobbyEmpty
	h.opts = opts
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) submit(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Ensure(ctx context.Context, id string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.submit(ctx, EnsureRoom{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

func (h *Hub) Get(ctx context.Context, id string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.submit(ctx, GetRoom{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

func (h *Hub) List(ctx context.Context) ([]lobby.Summary, error) {
	reply := make(chan []lobby.Summary, 1)
	if err := h.submit(ctx, ListRooms{Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

func (h *Hub) Shutdown(reason string) {
	select {
	case h.inbox <- ShutdownHub{Reason: reason}:
	case <-h.ctx.Done():
	}
}

func await[T any](ctx context.Context, h *Hub, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// lobbyEmpty runs on the lobby's goroutine.
func (h *Hub) lobbyEmpty(lb *lobby.Lobby) {
	select {
	case h.inbox <- RemoveRoom{ID: lb.ID(), Lobby: lb}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			clear(h.lobbies)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				if lb := h.lobbies[msg.ID]; lb != nil && !lb.Closed() {
					msg.Reply <- lb
					break
				}
				lb := lobby.NewLobby(h.ctx, msg.ID, h.opts)
				h.lobbies[msg.ID] = lb
				h.log.Info("room created", zap.String("room", msg.ID), zap.Int("rooms", len(h.lobbies)))
				msg.Reply <- lb

			case GetRoom:
				lb := h.lobbies[msg.ID]
				if lb != nil && lb.Closed() {
					lb = nil
				}
				msg.Reply <- lb // May be nil

			case ListRooms:
				out := make([]lobby.Summary, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					if !lb.Closed() {
						out = append(out, lb.Summary())
					}
				}
				sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
				msg.Reply <- out

			case RemoveRoom:
				if h.lobbies[msg.ID] == msg.Lobby {
					delete(h.lobbies, msg.ID)
					h.log.Info("room removed", zap.String("room", msg.ID), zap.Int("rooms", len(h.lobbies)))
				}

			case ShutdownHub:
				for _, lb := range h.lobbies {
					select {
					case lb.Inbox() <- lobby.Shutdown{Reason: msg.Reason}:
					default:
						// the context cancel below still closes it
					}
				}
				clear(h.lobbies)
				h.cancel()
				return
			}
		}
	}
}
