package lobby

import (
	"time"

	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

// syncTimer keeps the tick timer in step with the registry's countdown.
func (l *Lobby) syncTimer() {
	switch {
	case l.room.CountdownActive() && l.timer == nil:
		l.armTimer(l.opts.CountdownTick)
	case !l.room.CountdownActive() && l.timer != nil:
		l.stopTimer()
	}
}

// armTimer schedules a countdownFired for the current generation. Fires from an
// older generation are ignored, so a stopped timer that already fired is harmless.
func (l *Lobby) armTimer(d time.Duration) {
	l.timerGen++
	gen := l.timerGen
	l.timer = time.AfterFunc(d, func() {
		select {
		case l.inbox <- countdownFired{gen: gen}:
		case <-l.ctx.Done():
		}
	})
}

func (l *Lobby) stopTimer() {
	l.timerGen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Lobby) handleCountdown(gen int) {
	if gen != l.timerGen || l.timer == nil {
		return
	}
	l.timer = nil

	remaining, started := l.room.TickCountdown(l.opts.Now())
	switch {
	case started:
		s := l.room.Session
		l.log.Info("session started",
			zap.Int("session", s.ID),
			zap.String("game", s.Game),
			zap.Int64("seed", s.Seed))
		l.publish()
	case l.room.CountdownActive():
		// the snapshot carries the same deadline; the tick is for clients that
		// only render the timer
		l.broadcast(types.EvtCountdownTick, types.CountdownTick{RemainingMs: remaining.Milliseconds()}, "")
		l.publish()
		l.armTimer(min(l.opts.CountdownTick, remaining))
	default:
		l.publish()
	}
}
