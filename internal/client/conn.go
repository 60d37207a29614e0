package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

const writeTimeout = 3 * time.Second

type Identity struct {
	Room   string
	Player string
	Name   string
	Color  string
	Emoji  string
}

// Conn is a player's websocket to the room server.
type Conn struct {
	ws  *websocket.Conn
	ctx context.Context
	mu  sync.Mutex
}

// Dial joins id.Room on the server at base, e.g. "http://localhost:8080".
func Dial(ctx context.Context, base string, id Identity) (*Conn, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := url.Values{}
	q.Set("room", id.Room)
	q.Set("player", id.Player)
	for k, v := range map[string]string{"name": id.Name, "color": id.Color, "emoji": id.Emoji} {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	ws, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &Conn{ws: ws, ctx: context.WithoutCancel(ctx)}, nil
}

// Publish writes one envelope. Writes from the frame loop and from callers are
// serialised.
func (c *Conn) Publish(env types.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, env)
}

func (c *Conn) Read(ctx context.Context) (types.Envelope, error) {
	var env types.Envelope
	err := wsjson.Read(ctx, c.ws, &env)
	return env, err
}

func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}

// Play runs rt against c until ctx ends or the room closes. Envelopes and
// frames are handled on one goroutine; onFrame runs after every frame and may
// issue local actions.
func Play(ctx context.Context, c *Conn, rt *Runtime, fps int, log *zap.Logger, onFrame func(now time.Time) error) error {
	if fps <= 0 {
		fps = 60
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	inbox := make(chan types.Envelope, 64)

	g.Go(func() error {
		defer close(inbox)
		for {
			env, err := c.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read: %w", err)
			}
			select {
			case inbox <- env:
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		defer c.ws.CloseNow()
		defer cancel()
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case env, ok := <-inbox:
				if !ok {
					return nil
				}
				if err := rt.Handle(env); err != nil {
					if errors.Is(err, ErrClosed) {
						reason, _ := rt.Closed()
						log.Info("room closed", zap.String("reason", reason))
						return nil
					}
					log.Warn("handle envelope", zap.String("type", env.Type), zap.Error(err))
				}
			case now := <-ticker.C:
				if err := rt.Frame(now); err != nil {
					log.Warn("frame", zap.Error(err))
				}
				if onFrame != nil {
					if err := onFrame(now); err != nil {
						return err
					}
				}
			}
		}
	})
	return g.Wait()
}
