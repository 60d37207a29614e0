package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/internal/hub"
	"github.com/jrizzo9/multiplayer-arcade/internal/lobby"
	"github.com/jrizzo9/multiplayer-arcade/internal/profile"
	"github.com/jrizzo9/multiplayer-arcade/internal/room"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	joinAttempts = 3
)

type Options struct {
	// Profiles may be nil; players then get generated defaults.
	Profiles     profile.Lookup
	Log          *zap.Logger
	OutboxSize   int
	PingInterval time.Duration
	// OriginPatterns loosens the same-origin check, e.g. "localhost:*" in dev.
	OriginPatterns []string
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		roomID := strings.ToUpper(strings.TrimSpace(q.Get("room")))
		playerID := strings.TrimSpace(q.Get("player"))
		if roomID == "" || playerID == "" {
			http.Error(w, "missing room or player", http.StatusBadRequest)
			return
		}

		prof := profile.Resolve(r.Context(), opts.Profiles, playerID, profile.Profile{
			Name:  q.Get("name"),
			Color: q.Get("color"),
			Emoji: q.Get("emoji"),
		})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.CloseNow()

		log := opts.Log.With(zap.String("room", roomID), zap.String("player", playerID))
		connID := uuid.NewString()
		player := room.Player{ID: prof.ID, Name: prof.Name, Color: prof.Color, Emoji: prof.Emoji}

		lb, out, err := joinRoom(r.Context(), h, roomID, lobby.Join{ConnID: connID, Player: player}, opts.OutboxSize)
		if err != nil {
			log.Info("join rejected", zap.Error(err))
			writeError(r.Context(), conn, err)
			conn.Close(websocket.StatusPolicyViolation, room.Code(err))
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = lb.Submit(ctx, lobby.Leave{ConnID: connID})
		}()
		log.Debug("connected", zap.String("conn", connID))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			defer conn.Close(websocket.StatusNormalClosure, "room closed")
			ping := time.NewTicker(opts.PingInterval)
			defer ping.Stop()
			for {
				select {
				case env, ok := <-out:
					if !ok {
						return
					}
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					err := wsjson.Write(ctx, conn, env)
					cancel()
					if err != nil {
						return
					}
				case <-ping.C:
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					err := conn.Ping(ctx)
					cancel()
					if err != nil {
						log.Debug("ping failed", zap.Error(err))
						return
					}
				case <-writeCtx.Done():
					return
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read ended", zap.Error(err))
				}
				// lobby.Leave in defer
				return
			}

			var env types.Envelope
			if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
				writeError(r.Context(), conn, fmt.Errorf("%w: bad json", room.ErrInvalidAction))
				continue
			}
			if env.Type == types.EvtJoin {
				continue // joining happens on connect
			}

			if err := lb.Submit(r.Context(), lobby.FromClient{ConnID: connID, Env: env}); err != nil {
				return
			}
		}
	}
}

// joinRoom retries when the lobby closed between lookup and join, which happens
// when the last player leaves just as someone reconnects. Every attempt gets its
// own outbox; a lobby that dies after registering one only closes that one.
func joinRoom(ctx context.Context, h *hub.Hub, roomID string, join lobby.Join, size int) (*lobby.Lobby, chan types.Envelope, error) {
	lastErr := lobby.ErrClosed
	for range joinAttempts {
		lb, err := h.Ensure(ctx, roomID)
		if err != nil {
			return nil, nil, err
		}
		out := make(chan types.Envelope, size)
		join.Outbox = out
		join.Reply = make(chan error, 1)
		if err := lb.Submit(ctx, join); err != nil {
			if errors.Is(err, lobby.ErrClosed) {
				lastErr = err
				continue
			}
			return nil, nil, err
		}
		select {
		case err := <-join.Reply:
			if err != nil {
				return nil, nil, err
			}
			return lb, out, nil
		case <-lb.Done():
			select {
			case err := <-join.Reply:
				if err != nil {
					return nil, nil, err
				}
			default:
			}
			lastErr = lobby.ErrClosed
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	return nil, nil, lastErr
}

func writeError(ctx context.Context, conn *websocket.Conn, err error) {
	env, encErr := types.NewEnvelope(types.EvtRoomError, 0, types.RoomError{
		Code:    room.Code(err),
		Message: err.Error(),
	})
	if encErr != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = wsjson.Write(ctx, conn, env)
}
