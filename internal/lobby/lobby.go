package lobby

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/internal/room"
	"github.com/jrizzo9/multiplayer-arcade/internal/wins"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

var ErrClosed = errors.New("lobby closed")

type Msg interface{ isLobbyMsg() }

// Join attaches a connection for Player. Reply receives nil or the registry error.
type Join struct {
	ConnID string
	Player room.Player
	Outbox chan types.Envelope
	Reply  chan error
}

func (Join) isLobbyMsg() {}

type Leave struct{ ConnID string }

func (Leave) isLobbyMsg() {}

type FromClient struct {
	ConnID string
	Env    types.Envelope
}

func (FromClient) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Shutdown struct{ Reason string }

func (Shutdown) isLobbyMsg() {}

type countdownFired struct{ gen int }

func (countdownFired) isLobbyMsg() {}

type View struct {
	Version    int
	NumClients int
	Room       types.RoomSnapshot
}

// Summary is the lock-free listing entry the hub reads.
type Summary struct {
	RoomID  string `json:"room_id"`
	Players int    `json:"players"`
	Game    string `json:"game,omitempty"`
	State   string `json:"state,omitempty"`
}

type WinSink interface {
	Record(w wins.Win)
}

type discardWins struct{}

func (discardWins) Record(wins.Win) {}

type Options struct {
	Countdown     time.Duration
	CountdownTick time.Duration
	Now           func() time.Time
	Seed          func() int64
	Log           *zap.Logger
	Wins          WinSink
	// OnEmpty is called from the lobby goroutine after the last player left and
	// the lobby stopped accepting messages.
	OnEmpty func(*Lobby)
}

type conn struct {
	id       string
	playerID string
	out      chan types.Envelope
	dropped  bool
}

type Lobby struct {
	id      string
	inbox   chan Msg
	room    *room.Room
	version int
	conns   map[string]*conn
	players map[string]string // player id -> conn id
	drops   []string

	opts     Options
	log      *zap.Logger
	timer    *time.Timer
	timerGen int
	closing  bool
	summary  atomic.Pointer[Summary]

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, id string, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if opts.CountdownTick <= 0 {
		opts.CountdownTick = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Wins == nil {
		opts.Wins = discardWins{}
	}

	l := &Lobby{
		id:      id,
		inbox:   make(chan Msg, 64), // Small buffer
		room:    room.New(id, room.Config{Countdown: opts.Countdown, Seed: opts.Seed}),
		conns:   make(map[string]*conn),
		players: make(map[string]string),
		opts:    opts,
		log:     opts.Log.With(zap.String("room", id)),
		ctx:     ctx,
		cancel:  cancel,
	}
	l.storeSummary()

	go l.loop()
	return l
}

func (l *Lobby) ID() string { return l.id }

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Submit delivers m unless the lobby has already shut down.
func (l *Lobby) Submit(ctx context.Context, m Msg) error {
	select {
	case <-l.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case l.inbox <- m:
		return nil
	case <-l.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lobby) Closed() bool { return l.ctx.Err() != nil }

func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lobby) Summary() Summary { return *l.summary.Load() }

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown("server shutting down")
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.handleJoin(msg)

			case Leave:
				l.removeConn(msg.ConnID)

			case FromClient:
				l.handleClient(msg)

			case countdownFired:
				l.handleCountdown(msg.gen)

			case GetState:
				// test-only: reflect internal state without data races
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.conns),
					Room:       l.room.Snapshot(l.version, l.opts.Now()),
				}

			case Shutdown:
				l.shutdown(msg.Reason)
				return
			}

			for len(l.drops) > 0 {
				id := l.drops[0]
				l.drops = l.drops[1:]
				l.removeConn(id)
			}

			if l.closing {
				l.log.Info("room empty, closing")
				l.shutdown("room empty")
				if l.opts.OnEmpty != nil {
					l.opts.OnEmpty(l)
				}
				return
			}
		}
	}
}

func (l *Lobby) handleJoin(msg Join) {
	pid := msg.Player.ID
	if oldID, ok := l.players[pid]; ok {
		if old := l.conns[oldID]; old != nil {
			l.sendTo(old, types.EvtRoomClosed, types.RoomClosed{Reason: "replaced"})
			l.closeConn(old)
			delete(l.conns, oldID)
		}
		delete(l.players, pid)
	}

	joined, err := l.room.Join(msg.Player)
	if err != nil {
		msg.Reply <- err
		if len(l.conns) == 0 && l.room.Empty() {
			l.closing = true
		}
		return
	}

	l.conns[msg.ConnID] = &conn{id: msg.ConnID, playerID: pid, out: msg.Outbox}
	l.players[pid] = msg.ConnID
	msg.Reply <- nil

	l.log.Info("player joined",
		zap.String("player", pid),
		zap.String("conn", msg.ConnID),
		zap.Bool("reconnect", !joined))
	l.syncTimer()
	l.publish()
}

func (l *Lobby) removeConn(connID string) {
	c, ok := l.conns[connID]
	if !ok {
		return
	}
	l.closeConn(c)
	delete(l.conns, connID)
	if l.players[c.playerID] != connID {
		return
	}
	delete(l.players, c.playerID)

	res, err := l.room.Leave(c.playerID)
	if err != nil {
		l.log.Warn("leave failed", zap.String("player", c.playerID), zap.Error(err))
		return
	}
	l.log.Info("player left",
		zap.String("player", c.playerID),
		zap.Bool("host_changed", res.HostChanged))

	if res.Empty {
		l.closing = true
		return
	}
	if res.Forfeit != nil {
		l.recordWin(res.Forfeit.WinnerPlayerID)
	}
	l.syncTimer()
	l.publish()
}

// publish bumps the version and sends a full snapshot to every connection.
func (l *Lobby) publish() {
	l.version++
	l.storeSummary()
	snap := l.room.Snapshot(l.version, l.opts.Now())
	l.broadcast(types.EvtRoomSnapshot, snap, "")
}

func (l *Lobby) storeSummary() {
	s := Summary{RoomID: l.id, Players: len(l.room.Players), Game: l.room.SelectedGame}
	if l.room.Session != nil {
		s.State = string(l.room.Session.State)
	}
	l.summary.Store(&s)
}

func (l *Lobby) sessionID() int {
	if l.room.Session == nil {
		return 0
	}
	return l.room.Session.ID
}

// broadcast encodes v once and delivers it to every connection except skip.
func (l *Lobby) broadcast(typ string, v any, skip string) {
	env, err := types.NewEnvelope(typ, l.sessionID(), v)
	if err != nil {
		l.log.Error("encode broadcast", zap.String("type", typ), zap.Error(err))
		return
	}
	l.relay(env, skip)
}

func (l *Lobby) relay(env types.Envelope, skip string) {
	for id, c := range l.conns {
		if id == skip {
			continue
		}
		l.deliver(c, env)
	}
}

func (l *Lobby) sendTo(c *conn, typ string, v any) {
	env, err := types.NewEnvelope(typ, l.sessionID(), v)
	if err != nil {
		l.log.Error("encode message", zap.String("type", typ), zap.Error(err))
		return
	}
	l.deliver(c, env)
}

func (l *Lobby) deliver(c *conn, env types.Envelope) {
	if c.dropped {
		return
	}
	select {
	case c.out <- env:
		//ok
	default:
		// Client is slow/full - drop them.
		l.log.Warn("dropping slow connection", zap.String("player", c.playerID), zap.String("conn", c.id))
		l.closeConn(c)
		l.drops = append(l.drops, c.id)
	}
}

func (l *Lobby) closeConn(c *conn) {
	if c.dropped {
		return
	}
	c.dropped = true
	close(c.out) // Tell client no more messages
}

func (l *Lobby) recordWin(winner string) {
	if winner == "" || l.room.Session == nil {
		return
	}
	if p := l.room.Player(winner); p == nil || p.Bot {
		return
	}
	l.opts.Wins.Record(wins.Win{
		WinnerID: winner,
		GameType: l.room.Session.Game,
		RoomID:   l.id,
		At:       l.opts.Now(),
	})
}

func (l *Lobby) shutdown(reason string) {
	l.stopTimer()
	for id, c := range l.conns {
		l.sendTo(c, types.EvtRoomClosed, types.RoomClosed{Reason: reason})
		l.closeConn(c)
		delete(l.conns, id)
	}
	clear(l.players)
	l.cancel()
}
