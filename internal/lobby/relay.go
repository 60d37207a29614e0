package lobby

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/internal/profile"
	"github.com/jrizzo9/multiplayer-arcade/internal/room"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

func (l *Lobby) handleClient(msg FromClient) {
	c, ok := l.conns[msg.ConnID]
	if !ok || c.dropped {
		return
	}
	env := msg.Env
	env.From = c.playerID // never trust the client's sender field

	var err error
	switch env.Type {
	case types.EvtLeave:
		l.sendTo(c, types.EvtRoomClosed, types.RoomClosed{Reason: "left"})
		l.removeConn(c.id)
		return

	case types.EvtSelectGame:
		var p types.SelectGame
		if err = env.Decode(&p); err == nil {
			err = l.room.SelectGame(c.playerID, p.Game)
		}
		if err == nil {
			l.stopTimer()
			l.publish()
		}

	case types.EvtSetReady:
		var p types.SetReady
		if err = env.Decode(&p); err == nil {
			var started bool
			started, err = l.room.SetReady(c.playerID, p.Ready, l.opts.Now())
			if started {
				l.stopTimer()
			}
		}
		if err == nil {
			l.syncTimer()
			l.publish()
		}

	case types.EvtRotatePlayers:
		err = l.handleRotate(c, env)

	case types.EvtRestart:
		if err = l.room.Restart(c.playerID); err == nil {
			l.publish()
		}

	case types.EvtAddBot:
		err = l.handleAddBot(c, env)

	case types.EvtRemoveBot:
		var p types.RemoveBot
		if err = env.Decode(&p); err == nil {
			err = l.room.RemoveBot(c.playerID, p.PlayerID)
		}
		if err == nil {
			l.syncTimer()
			l.publish()
		}

	case types.EvtGameStart, types.EvtGameState:
		err = l.handleFrame(c, env)

	case types.EvtPaddleMove:
		err = l.handlePaddle(c, env)

	case types.EvtCardFlip:
		err = l.handleFlip(c, env)

	case types.EvtRoundResult:
		err = l.handleRoundResult(c, env)

	case types.EvtRoomError:
		err = l.handleTargetedError(c, env)

	default:
		err = fmt.Errorf("%w: unknown event %q", room.ErrInvalidAction, env.Type)
	}

	if err != nil {
		l.log.Debug("rejected client event",
			zap.String("player", c.playerID),
			zap.String("type", env.Type),
			zap.Error(err))
		l.sendTo(c, types.EvtRoomError, types.RoomError{Code: room.Code(err), Message: err.Error()})
	}
}

func (l *Lobby) handleRotate(c *conn, env types.Envelope) error {
	var p types.Rotation
	if err := env.Decode(&p); err != nil {
		return err
	}
	rec, err := l.room.Rotate(c.playerID, p.Winner, p.Loser)
	if err != nil {
		return err
	}
	l.log.Info("players rotated", zap.String("winner", rec.WinnerPlayerID), zap.String("loser", rec.LoserPlayerID))
	l.broadcast(types.EvtPlayersRotated, types.Rotation{Winner: rec.WinnerPlayerID, Loser: rec.LoserPlayerID}, "")
	l.publish()
	return nil
}

func (l *Lobby) handleAddBot(c *conn, env types.Envelope) error {
	var p types.AddBot
	if err := env.Decode(&p); err != nil {
		return err
	}
	id := "bot-" + uuid.NewString()[:8]
	prof := profile.Default(id)
	if name := profile.Sanitize(p.Name); name != "" {
		prof.Name = name
	} else {
		prof.Name = fmt.Sprintf("Bot %d", len(l.room.Players)+1)
	}
	bot := room.Player{ID: id, Name: prof.Name, Color: prof.Color, Emoji: prof.Emoji}
	if err := l.room.AddBot(c.playerID, bot); err != nil {
		return err
	}
	l.syncTimer()
	l.publish()
	return nil
}

// handleFrame relays host game frames. A terminal frame also closes the session
// in the registry so the next snapshot carries the winner.
func (l *Lobby) handleFrame(c *conn, env types.Envelope) error {
	if c.playerID != l.room.HostPlayerID {
		return room.ErrNotHost
	}
	if err := l.room.RequireSession(env.Session); err != nil {
		return err
	}
	l.relay(env, c.id)

	if env.Type != types.EvtGameState {
		return nil
	}
	var f types.GameFrame
	if err := env.Decode(&f); err != nil {
		return err
	}
	if f.State != string(room.StateGameOver) {
		return nil
	}
	ended, err := l.room.EndSession(c.playerID, env.Session, f.Winner, f.Scores)
	if err != nil || !ended {
		return err
	}
	l.log.Info("session ended",
		zap.Int("session", env.Session),
		zap.String("game", l.room.Session.Game),
		zap.String("winner", l.room.Session.Winner))
	l.recordWin(l.room.Session.Winner)
	l.publish()
	return nil
}

// handlePaddle forwards seat input to the host. The seat is stamped from the
// roster so clients cannot steer the other paddle.
func (l *Lobby) handlePaddle(c *conn, env types.Envelope) error {
	if err := l.room.RequireSession(env.Session); err != nil {
		return err
	}
	if g, _ := room.LookupGame(l.room.Session.Game); g.Mode != room.ModeTicked {
		return fmt.Errorf("%w: %s takes no paddle input", room.ErrInvalidAction, g.Tag)
	}
	seat := l.room.Seat(c.playerID)
	if seat < 0 {
		return fmt.Errorf("%w: %s is not seated", room.ErrInvalidAction, c.playerID)
	}
	var p types.PaddleMove
	if err := env.Decode(&p); err != nil {
		return err
	}
	p.Seat = seat

	hostConn, ok := l.players[l.room.HostPlayerID]
	if !ok || hostConn == c.id {
		return nil
	}
	out, err := types.NewEnvelope(env.Type, env.Session, p)
	if err != nil {
		return err
	}
	out.From = c.playerID
	l.deliver(l.conns[hostConn], out)
	return nil
}

func (l *Lobby) handleFlip(c *conn, env types.Envelope) error {
	if err := l.room.RequireSession(env.Session); err != nil {
		return err
	}
	if g, _ := room.LookupGame(l.room.Session.Game); g.Mode != room.ModeTurn {
		return fmt.Errorf("%w: %s takes no card flips", room.ErrInvalidAction, g.Tag)
	}
	var p types.CardFlip
	if err := env.Decode(&p); err != nil {
		return err
	}
	// The host may flip on behalf of a bot it drives.
	if p.PlayerID != c.playerID {
		bot := l.room.Player(p.PlayerID)
		if c.playerID != l.room.HostPlayerID || bot == nil || !bot.Bot {
			p.PlayerID = c.playerID
		}
	}
	out, err := types.NewEnvelope(env.Type, env.Session, p)
	if err != nil {
		return err
	}
	out.From = c.playerID
	l.relay(out, c.id)
	return nil
}

// handleRoundResult forwards a microgame score to the host. As with card flips
// the host may report for its bots; anyone else reports for themselves.
func (l *Lobby) handleRoundResult(c *conn, env types.Envelope) error {
	if err := l.room.RequireSession(env.Session); err != nil {
		return err
	}
	if g, _ := room.LookupGame(l.room.Session.Game); g.Mode != room.ModeParty {
		return fmt.Errorf("%w: %s takes no round results", room.ErrInvalidAction, g.Tag)
	}
	var p types.RoundResult
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.PlayerID != c.playerID {
		bot := l.room.Player(p.PlayerID)
		if c.playerID != l.room.HostPlayerID || bot == nil || !bot.Bot {
			p.PlayerID = c.playerID
		}
	}

	hostConn, ok := l.players[l.room.HostPlayerID]
	if !ok || hostConn == c.id {
		return nil
	}
	out, err := types.NewEnvelope(env.Type, env.Session, p)
	if err != nil {
		return err
	}
	out.From = c.playerID
	l.deliver(l.conns[hostConn], out)
	return nil
}

func (l *Lobby) handleTargetedError(c *conn, env types.Envelope) error {
	if c.playerID != l.room.HostPlayerID {
		return room.ErrNotHost
	}
	var p types.RoomError
	if err := env.Decode(&p); err != nil {
		return err
	}
	target, ok := l.players[p.Target]
	if !ok {
		return fmt.Errorf("%w: %s is not connected", room.ErrInvalidAction, p.Target)
	}
	l.deliver(l.conns[target], env)
	return nil
}
