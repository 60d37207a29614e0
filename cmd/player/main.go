// Command player is a headless participant: it joins a room and plays whatever
// game is running with the opponent predictor. Useful for filling a room and
// for soak testing the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/internal/bot"
	"github.com/jrizzo9/multiplayer-arcade/internal/client"
	"github.com/jrizzo9/multiplayer-arcade/internal/config"
	"github.com/jrizzo9/multiplayer-arcade/internal/logging"
	"github.com/jrizzo9/multiplayer-arcade/internal/room"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	var (
		serverFlag = flag.String("server", "http://localhost:8080", "server base url")
		roomFlag   = flag.String("room", "", "room code to join (required)")
		playerFlag = flag.String("player", "", "player id (random when empty)")
		nameFlag   = flag.String("name", "", "display name")
		gameFlag   = flag.String("game", room.GamePong, "game to select when hosting")
		botsFlag   = flag.Int("bots", 0, "bots to add when hosting")
		fpsFlag    = flag.Int("fps", 60, "frames per second")
		hzFlag     = flag.Int("hz", cfg.BroadcastHz, "frame broadcast rate when hosting")
		levelFlag  = flag.String("log-level", cfg.LogLevel, "log level")
	)
	flag.Parse()

	if *roomFlag == "" {
		fmt.Fprintln(os.Stderr, "-room is required")
		os.Exit(2)
	}
	if *playerFlag == "" {
		*playerFlag = "cli-" + uuid.NewString()[:8]
	}
	log, err := logging.New(cfg.Env, *levelFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := client.Dial(ctx, *serverFlag, client.Identity{Room: *roomFlag, Player: *playerFlag, Name: *nameFlag})
	if err != nil {
		log.Fatal("join failed", zap.Error(err))
	}
	defer conn.Close()

	rt := client.NewRuntime(*playerFlag, conn, client.Options{BroadcastHz: *hzFlag, Log: log})
	p := &autoplayer{rt: rt, me: *playerFlag, game: *gameFlag, bots: *botsFlag, log: log}
	if err := client.Play(ctx, conn, rt, *fpsFlag, log, p.frame); err != nil {
		log.Fatal("play", zap.Error(err))
	}
}

// autoplayer takes the local player's part: it readies up, hosts the lobby
// when it is host and plays with the predictor.
type autoplayer struct {
	rt   *client.Runtime
	me   string
	game string
	bots int
	log  *zap.Logger

	version   int
	acted     bool
	last      time.Time
	paddleBot *bot.Paddle
	memBot    *bot.Memory
	partyBot  *bot.Party
	session   int
	nextFlip  time.Time
	overSince time.Time
}

func (a *autoplayer) frame(now time.Time) error {
	dt := 0.0
	if !a.last.IsZero() {
		dt = now.Sub(a.last).Seconds()
	}
	a.last = now

	snap, ok := a.rt.Snapshot()
	if !ok {
		return nil
	}
	if snap.Version != a.version {
		a.version, a.acted = snap.Version, false
	}
	if s := snap.Session; s != nil && s.ID != a.session {
		a.session, a.paddleBot, a.memBot, a.partyBot = s.ID, nil, nil, nil
	}
	me, ok := snap.Player(a.me)
	if !ok {
		return nil
	}

	if st, ok := a.rt.PaddleView(); ok && !st.Over && (me.Seat == 0 || me.Seat == 1) {
		if a.paddleBot == nil {
			b := bot.NewPaddle(me.Seat)
			a.paddleBot = &b
		}
		return a.rt.MovePaddle(now, a.paddleBot.Decide(st, dt))
	}
	if st, ok := a.rt.MemoryView(); ok && !st.Over && st.Turn == a.me && !now.Before(a.nextFlip) {
		if a.memBot == nil {
			a.memBot = bot.NewMemory(a.me, now.UnixNano())
		}
		if pos := a.memBot.Choose(st); pos >= 0 {
			a.nextFlip = now.Add(700 * time.Millisecond)
			if err := a.rt.Flip(now, pos); err != nil {
				return err
			}
			if view, ok := a.rt.MemoryView(); ok {
				a.memBot.Revealed(view, pos)
			}
		}
		return nil
	}
	if st, ok := a.rt.PartyView(); ok && !st.Over {
		if a.partyBot == nil {
			a.partyBot = bot.NewParty(a.me, now.UnixNano())
		}
		if pts := a.partyBot.Points(st); pts >= 0 {
			return a.rt.Submit(now, pts)
		}
		return nil
	}

	if a.acted {
		return nil
	}
	a.acted = true
	return a.lobby(now, snap)
}

// lobby issues at most one room action per snapshot.
func (a *autoplayer) lobby(now time.Time, snap types.RoomSnapshot) error {
	s, players := snap.Session, len(snap.Players)
	host := a.rt.IsHost()
	switch {
	case host && snap.SelectedGame == "":
		return a.rt.SelectGame(a.game)
	case host && a.bots > 0 && players < room.MaxPlayers && (s == nil || s.State == string(room.StateWaiting)):
		a.bots--
		return a.rt.AddBot("")
	case s == nil:
		return nil
	case s.State == string(room.StateGameOver):
		if a.overSince.IsZero() {
			a.overSince = now
		}
		if !host || now.Sub(a.overSince) < 3*time.Second {
			a.acted = false
			return nil
		}
		a.overSince = time.Time{}
		a.log.Info("game over", zap.String("winner", s.Winner))
		if g, ok := room.LookupGame(snap.SelectedGame); ok && g.SeatGame() && players > g.Seats {
			return a.rt.Rotate()
		}
		return a.rt.Restart()
	case s.State == string(room.StateWaiting) && !slices.Contains(snap.Ready, a.me):
		return a.rt.Ready(true)
	}
	return nil
}
