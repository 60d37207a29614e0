// Package client is the player's side of a room: it mirrors the server's
// snapshots, runs the authoritative game engine while this player is host and
// drives the bot seats the host is responsible for.
package client

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/internal/bot"
	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
	"github.com/jrizzo9/multiplayer-arcade/internal/engine/memory"
	"github.com/jrizzo9/multiplayer-arcade/internal/engine/paddle"
	"github.com/jrizzo9/multiplayer-arcade/internal/engine/party"
	"github.com/jrizzo9/multiplayer-arcade/internal/room"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

var ErrClosed = errors.New("room closed")

type Options struct {
	Now         func() time.Time
	BroadcastHz int
	Timing      memory.Timing
	RoundTime   time.Duration
	// BotDelay spaces out the moves of bots so people can follow them.
	BotDelay time.Duration
	Log      *zap.Logger
}

// Runtime is not safe for concurrent use; one frame loop owns it.
type Runtime struct {
	me   string
	pub  engine.Publisher
	opts Options
	log  *zap.Logger

	snap      types.RoomSnapshot
	have      bool
	closed    string
	lastErr   types.RoomError
	countdown time.Duration

	session int
	game    string
	seed    int64

	paddleHost   *paddle.Host
	paddleClient *paddle.Client
	memHost      *memory.Host
	memClient    *memory.Client
	partyHost    *party.Host
	partyClient  *party.Client

	paddleBots map[int]bot.Paddle
	memBots    map[string]*bot.Memory
	partyBots  map[string]*bot.Party
	lastFrame  time.Time
	nextBotAt  time.Time
}

func NewRuntime(me string, pub engine.Publisher, opts Options) *Runtime {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Timing == (memory.Timing{}) {
		opts.Timing = memory.DefaultTiming
	}
	if opts.BotDelay <= 0 {
		opts.BotDelay = 700 * time.Millisecond
	}
	return &Runtime{
		me:   me,
		pub:  pub,
		opts: opts,
		log:  opts.Log.With(zap.String("player", me)),
	}
}

func (r *Runtime) Snapshot() (types.RoomSnapshot, bool) { return r.snap, r.have }

func (r *Runtime) IsHost() bool { return r.have && r.snap.HostPlayerID == r.me }

// Closed returns the reason the server gave for closing the room, if it did.
func (r *Runtime) Closed() (string, bool) { return r.closed, r.closed != "" }

func (r *Runtime) LastError() types.RoomError { return r.lastErr }

func (r *Runtime) Countdown() time.Duration { return r.countdown }

// PaddleView is the paddle game as this player should see it.
func (r *Runtime) PaddleView() (paddle.State, bool) {
	switch {
	case r.paddleHost != nil:
		return r.paddleHost.State(), true
	case r.paddleClient != nil:
		if _, ok := r.paddleClient.Authoritative(); ok {
			return r.paddleClient.View(), true
		}
	}
	return paddle.State{}, false
}

func (r *Runtime) MemoryView() (memory.State, bool) {
	switch {
	case r.memHost != nil:
		return r.memHost.State(), true
	case r.memClient != nil:
		if _, ok := r.memClient.Authoritative(); ok {
			return r.memClient.View(), true
		}
	}
	return memory.State{}, false
}

func (r *Runtime) PartyView() (party.State, bool) {
	switch {
	case r.partyHost != nil:
		return r.partyHost.State(), true
	case r.partyClient != nil:
		if _, ok := r.partyClient.Authoritative(); ok {
			return r.partyClient.View(), true
		}
	}
	return party.State{}, false
}

// Handle consumes one envelope from the server.
func (r *Runtime) Handle(env types.Envelope) error {
	switch env.Type {
	case types.EvtRoomSnapshot:
		var snap types.RoomSnapshot
		if err := env.Decode(&snap); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		if r.have && snap.Version <= r.snap.Version {
			return nil
		}
		r.snap, r.have = snap, true
		r.countdown = time.Duration(snap.CountdownMs) * time.Millisecond
		return r.sync()

	case types.EvtCountdownTick:
		var p types.CountdownTick
		if err := env.Decode(&p); err != nil {
			return err
		}
		r.countdown = time.Duration(p.RemainingMs) * time.Millisecond

	case types.EvtGameStart, types.EvtGameState:
		if env.Session != r.session {
			return nil
		}
		if r.paddleClient != nil {
			return r.paddleClient.Apply(env)
		}
		if r.memClient != nil {
			return r.memClient.Apply(env)
		}
		if r.partyClient != nil {
			return r.partyClient.Apply(env)
		}

	case types.EvtPaddleMove:
		if r.paddleHost != nil {
			return r.paddleHost.Handle(env)
		}

	case types.EvtCardFlip:
		if r.memHost != nil {
			return r.memHost.Handle(r.opts.Now(), env)
		}
		if r.memClient != nil {
			return r.memClient.Apply(env)
		}

	case types.EvtRoundResult:
		if r.partyHost != nil {
			return r.partyHost.Handle(r.opts.Now(), env)
		}

	case types.EvtRoomError:
		if err := env.Decode(&r.lastErr); err != nil {
			return err
		}
		r.log.Debug("room error", zap.String("code", r.lastErr.Code), zap.String("message", r.lastErr.Message))

	case types.EvtPlayersRotated:
		var p types.Rotation
		if err := env.Decode(&p); err == nil {
			r.log.Info("players rotated", zap.String("winner", p.Winner), zap.String("loser", p.Loser))
		}

	case types.EvtRoomClosed:
		var p types.RoomClosed
		_ = env.Decode(&p)
		r.closed = p.Reason
		if r.closed == "" {
			r.closed = "closed"
		}
		return ErrClosed
	}
	return nil
}

// sync brings the engines in line with the latest snapshot.
func (r *Runtime) sync() error {
	s := r.snap.Session
	if s == nil || s.ID == 0 {
		r.dropEngines()
		return nil
	}
	if s.ID != r.session {
		r.dropEngines()
		r.session, r.game, r.seed = s.ID, s.Game, s.Seed
		r.newClients()
	}
	if s.State != string(room.StatePlaying) {
		r.dropHosts()
		return nil
	}
	if !r.IsHost() {
		// host moved away from us; keep mirroring what the new host sends
		if r.paddleHost != nil || r.memHost != nil || r.partyHost != nil {
			r.log.Info("no longer host", zap.Int("session", r.session))
			r.dropHosts()
		}
		return nil
	}
	if err := r.ensureHost(); err != nil {
		return err
	}
	r.syncBots()
	if r.memHost != nil {
		for _, id := range r.memHost.State().Order {
			if _, ok := r.snap.Player(id); !ok {
				if err := r.memHost.RemovePlayer(id); err != nil {
					return err
				}
			}
		}
	}
	if r.partyHost != nil {
		for _, id := range r.partyHost.State().Order {
			if _, ok := r.snap.Player(id); !ok {
				if err := r.partyHost.RemovePlayer(r.opts.Now(), id); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *Runtime) dropHosts() {
	r.paddleHost, r.memHost, r.partyHost = nil, nil, nil
}

func (r *Runtime) dropEngines() {
	r.session, r.game, r.seed = 0, "", 0
	r.dropHosts()
	r.paddleClient, r.memClient, r.partyClient = nil, nil, nil
	r.paddleBots, r.memBots, r.partyBots = nil, nil, nil
	r.lastFrame = time.Time{}
}

func (r *Runtime) newClients() {
	switch r.game {
	case room.GamePong:
		seat := -1
		if p, ok := r.snap.Player(r.me); ok && p.Seat < 2 {
			seat = p.Seat
		}
		r.paddleClient = paddle.NewClient(r.session, seat, r.pub, r.log)
	case room.GameMemory:
		r.memClient = memory.NewClient(r.session, r.me, r.pub, r.log)
	case room.GameMicrogames:
		r.partyClient = party.NewClient(r.session, r.me, r.pub, r.log)
	}
}

// ensureHost seeds the host engine. A client that already mirrors frames for
// this session is taking over and resumes from the last frame it saw.
func (r *Runtime) ensureHost() error {
	now := r.opts.Now()
	switch r.game {
	case room.GamePong:
		if r.paddleHost != nil {
			return nil
		}
		mirror := r.paddleClient.Mirror()
		if last, ok := mirror.State(); ok && mirror.Session() == r.session {
			r.log.Info("taking over paddle session", zap.Int("session", r.session), zap.Uint64("seq", mirror.Frame().Seq))
			r.paddleHost = paddle.ResumeHost(r.session, r.seed, last, mirror.Frame().Seq, r.pub, r.opts.BroadcastHz, r.log)
			return nil
		}
		r.paddleHost = paddle.NewHost(r.session, r.seed, r.seated(), r.pub, r.opts.BroadcastHz, r.log)
		return r.paddleHost.Start(now)

	case room.GameMemory:
		if r.memHost != nil {
			return nil
		}
		mirror := r.memClient.Mirror()
		if last, ok := mirror.State(); ok && mirror.Session() == r.session {
			r.log.Info("taking over memory session", zap.Int("session", r.session), zap.Uint64("seq", mirror.Frame().Seq))
			r.memHost = memory.ResumeHost(r.session, last, mirror.Frame().Seq, r.opts.Timing, r.pub, r.log)
			return nil
		}
		r.memHost = memory.NewHost(r.session, r.seed, r.roster(), memory.DefaultPairs, r.opts.Timing, r.pub, r.log)
		return r.memHost.Start()

	case room.GameMicrogames:
		if r.partyHost != nil {
			return nil
		}
		mirror := r.partyClient.Mirror()
		if last, ok := mirror.State(); ok && mirror.Session() == r.session {
			r.log.Info("taking over party session", zap.Int("session", r.session), zap.Uint64("seq", mirror.Frame().Seq))
			r.partyHost = party.ResumeHost(r.session, last, mirror.Frame().Seq, r.opts.RoundTime, r.pub, r.log)
			return nil
		}
		r.partyHost = party.NewHost(r.session, r.seed, r.roster(), party.DefaultRounds, r.opts.RoundTime, r.pub, r.log)
		return r.partyHost.Start(now)
	}
	r.log.Debug("no engine for game", zap.String("game", r.game))
	return nil
}

// roster lists everyone with a seat, in seat order.
func (r *Runtime) roster() []string {
	var order []string
	for _, p := range r.snap.Players {
		if p.Seat >= 0 {
			order = append(order, p.ID)
		}
	}
	return order
}

func (r *Runtime) seated() [2]string {
	var out [2]string
	for _, p := range r.snap.Players {
		if p.Seat == 0 || p.Seat == 1 {
			out[p.Seat] = p.ID
		}
	}
	return out
}

// syncBots gives every bot in the roster a predictor. Only the host drives bots.
func (r *Runtime) syncBots() {
	switch r.game {
	case room.GamePong:
		r.paddleBots = map[int]bot.Paddle{}
		for _, p := range r.snap.Players {
			if p.Bot && (p.Seat == 0 || p.Seat == 1) {
				r.paddleBots[p.Seat] = bot.NewPaddle(p.Seat)
			}
		}
	case room.GameMemory:
		if r.memBots == nil {
			r.memBots = map[string]*bot.Memory{}
		}
		for i, p := range r.snap.Players {
			if _, ok := r.memBots[p.ID]; p.Bot && !ok {
				r.memBots[p.ID] = bot.NewMemory(p.ID, r.seed+int64(i))
			}
		}
	case room.GameMicrogames:
		if r.partyBots == nil {
			r.partyBots = map[string]*bot.Party{}
		}
		for i, p := range r.snap.Players {
			if _, ok := r.partyBots[p.ID]; p.Bot && !ok {
				r.partyBots[p.ID] = bot.NewParty(p.ID, r.seed+int64(i))
			}
		}
	}
}

// Frame advances whatever this player runs: the host engine and its bots, or
// the pending paddle input of a mirroring client.
func (r *Runtime) Frame(now time.Time) error {
	dt := 0.0
	if !r.lastFrame.IsZero() {
		dt = min(max(now.Sub(r.lastFrame).Seconds(), 0), engine.MaxFrame)
	}
	r.lastFrame = now

	if r.paddleClient != nil && r.paddleHost == nil {
		if err := r.paddleClient.Flush(now); err != nil {
			return err
		}
	}
	if r.paddleHost != nil {
		st := r.paddleHost.State()
		for seat, b := range r.paddleBots {
			r.paddleHost.Move(seat, b.Decide(st, dt))
		}
		if err := r.paddleHost.Frame(now); err != nil {
			return err
		}
	}
	if r.memHost != nil {
		if err := r.memHost.Frame(now); err != nil {
			return err
		}
		return r.botFlip(now)
	}
	if r.partyHost != nil {
		if err := r.partyHost.Frame(now); err != nil {
			return err
		}
		return r.botSubmit(now)
	}
	return nil
}

func (r *Runtime) botFlip(now time.Time) error {
	st := r.memHost.State()
	b, ok := r.memBots[st.Turn]
	if !ok || now.Before(r.nextBotAt) {
		return nil
	}
	pos := b.Choose(st)
	if pos < 0 {
		return nil
	}
	r.nextBotAt = now.Add(r.opts.BotDelay)
	if err := r.memHost.Flip(now, b.ID, pos); err != nil {
		r.log.Debug("bot flip rejected", zap.String("bot", b.ID), zap.Int("pos", pos), zap.Error(err))
		return nil
	}
	b.Revealed(r.memHost.State(), pos)
	return nil
}

// botSubmit reports a score for one bot per BotDelay.
func (r *Runtime) botSubmit(now time.Time) error {
	if now.Before(r.nextBotAt) {
		return nil
	}
	st := r.partyHost.State()
	for _, id := range st.Order {
		b, ok := r.partyBots[id]
		if !ok {
			continue
		}
		pts := b.Points(st)
		if pts < 0 {
			continue
		}
		r.nextBotAt = now.Add(r.opts.BotDelay)
		return r.partyHost.Submit(now, b.ID, pts)
	}
	return nil
}

// MovePaddle applies local paddle input. Players without a seat are ignored.
func (r *Runtime) MovePaddle(now time.Time, x float64) error {
	if r.paddleHost != nil {
		if p, ok := r.snap.Player(r.me); ok && (p.Seat == 0 || p.Seat == 1) {
			r.paddleHost.Move(p.Seat, x)
		}
		return nil
	}
	if r.paddleClient != nil {
		return r.paddleClient.Move(now, x)
	}
	return nil
}

// Flip turns over a card for the local player. Flips that cannot be legal are
// dropped without reaching the host.
func (r *Runtime) Flip(now time.Time, pos int) error {
	if r.memHost != nil {
		st := r.memHost.State()
		if st.CanReveal(r.me, pos) != nil {
			return nil
		}
		return r.memHost.Flip(now, r.me, pos)
	}
	if r.memClient != nil {
		_, err := r.memClient.Flip(pos)
		return err
	}
	return nil
}

// Submit reports the local player's score for the current microgame round.
func (r *Runtime) Submit(now time.Time, points int) error {
	if r.partyHost != nil {
		st := r.partyHost.State()
		if st.CanSubmit(r.me, st.Round, points) != nil {
			return nil
		}
		return r.partyHost.Submit(now, r.me, points)
	}
	if r.partyClient != nil {
		_, err := r.partyClient.Submit(points)
		return err
	}
	return nil
}

func (r *Runtime) Ready(ready bool) error {
	p, ok := r.snap.Player(r.me)
	if !ok || p.Seat < 0 || r.snap.Session == nil || r.inGame() {
		return nil
	}
	return r.send(types.EvtSetReady, types.SetReady{Ready: ready})
}

func (r *Runtime) SelectGame(tag string) error {
	if _, ok := room.LookupGame(tag); !ok || !r.IsHost() || r.playing() {
		return nil
	}
	return r.send(types.EvtSelectGame, types.SelectGame{Game: tag})
}

// Rotate asks the server to swap the loser of a finished seat game for the
// next queued player.
func (r *Runtime) Rotate() error {
	s := r.snap.Session
	g, ok := room.LookupGame(r.snap.SelectedGame)
	if !r.IsHost() || s == nil || s.State != string(room.StateGameOver) || s.Winner == "" ||
		!ok || !g.SeatGame() || len(r.snap.Players) <= g.Seats {
		return nil
	}
	var loser string
	for _, p := range r.snap.Players {
		if p.Seat >= 0 && p.Seat < g.Seats && p.ID != s.Winner {
			loser = p.ID
		}
	}
	if loser == "" {
		return nil
	}
	return r.send(types.EvtRotatePlayers, types.Rotation{Winner: s.Winner, Loser: loser})
}

func (r *Runtime) Restart() error {
	s := r.snap.Session
	if !r.IsHost() || s == nil || s.State != string(room.StateGameOver) {
		return nil
	}
	return r.send(types.EvtRestart, nil)
}

func (r *Runtime) AddBot(name string) error {
	if !r.IsHost() || r.playing() || len(r.snap.Players) >= room.MaxPlayers {
		return nil
	}
	return r.send(types.EvtAddBot, types.AddBot{Name: name})
}

func (r *Runtime) RemoveBot(id string) error {
	p, ok := r.snap.Player(id)
	if !r.IsHost() || r.playing() || !ok || !p.Bot {
		return nil
	}
	return r.send(types.EvtRemoveBot, types.RemoveBot{PlayerID: id})
}

func (r *Runtime) Leave() error { return r.send(types.EvtLeave, nil) }

func (r *Runtime) playing() bool {
	return r.snap.Session != nil && r.snap.Session.State == string(room.StatePlaying)
}

func (r *Runtime) inGame() bool {
	return r.playing() || (r.snap.Session != nil && r.snap.Session.State == string(room.StateGameOver))
}

func (r *Runtime) send(typ string, v any) error {
	env, err := types.NewEnvelope(typ, 0, v)
	if err != nil {
		return err
	}
	return r.pub.Publish(env)
}
