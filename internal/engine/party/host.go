package party

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
	"github.com/jrizzo9/multiplayer-arcade/internal/room"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

const DefaultRoundTime = 15 * time.Second

// Host runs a party on the host's client. A round ends when everyone has
// reported or when its deadline passes, whichever comes first.
type Host struct {
	st        State
	session   *engine.Session[State]
	pub       engine.Publisher
	roundTime time.Duration
	log       *zap.Logger

	armed  int // round endsAt belongs to
	endsAt time.Time
	rearm  bool
}

func NewHost(sessionID int, seed int64, order []string, rounds int, roundTime time.Duration, pub engine.Publisher, log *zap.Logger) *Host {
	return newHost(sessionID, NewState(seed, rounds, order), roundTime, pub, log)
}

// ResumeHost takes over from the last mirrored state. The current round gets a
// fresh deadline on the new host's clock.
func ResumeHost(sessionID int, last State, seq uint64, roundTime time.Duration, pub engine.Publisher, log *zap.Logger) *Host {
	h := newHost(sessionID, last.Clone(), roundTime, pub, log)
	h.session.Resume(seq, last)
	h.rearm = !h.st.Over
	return h
}

func newHost(sessionID int, st State, roundTime time.Duration, pub engine.Publisher, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	if roundTime <= 0 {
		roundTime = DefaultRoundTime
	}
	return &Host{
		st:        st,
		session:   engine.NewSession[State](sessionID, pub, 0, log),
		pub:       pub,
		roundTime: roundTime,
		log:       log.With(zap.Int("session", sessionID)),
	}
}

func (h *Host) State() State { return h.st.Clone() }

func (h *Host) SessionID() int { return h.session.ID() }

func (h *Host) Over() bool { return h.st.Over }

func (h *Host) Start(now time.Time) error {
	h.arm(now)
	return h.session.Start(h.st)
}

// Submit records a score for the host itself or a bot it drives.
func (h *Host) Submit(now time.Time, playerID string, points int) error {
	if err := h.apply(now, playerID, h.st.Round, points); err != nil {
		return err
	}
	return h.session.Flush(h.st)
}

// Handle applies a round-result relayed from another player. A result that
// does not count is answered with a room-error for that player only.
func (h *Host) Handle(now time.Time, env types.Envelope) error {
	if env.Type != types.EvtRoundResult || env.Session != h.SessionID() {
		return nil
	}
	var p types.RoundResult
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("decode round-result: %w", err)
	}
	if err := h.apply(now, p.PlayerID, p.Round, p.Points); err != nil {
		h.log.Debug("rejected result", zap.String("player", p.PlayerID), zap.Int("round", p.Round), zap.Error(err))
		return h.reject(p.PlayerID, err)
	}
	return h.session.Flush(h.st)
}

func (h *Host) apply(now time.Time, playerID string, round, points int) error {
	complete, err := h.st.Submit(playerID, round, points)
	if err != nil {
		return err
	}
	if complete {
		h.endRound(now)
	}
	return nil
}

func (h *Host) reject(target string, cause error) error {
	env, err := types.NewEnvelope(types.EvtRoomError, h.SessionID(), types.RoomError{
		Code:    room.CodeInvalidAction,
		Message: cause.Error(),
		Target:  target,
	})
	if err != nil {
		return err
	}
	return h.pub.Publish(env)
}

// RemovePlayer drops a player who left mid-party. If everyone left has
// already reported, the round ends now.
func (h *Host) RemovePlayer(now time.Time, id string) error {
	if !h.st.RemovePlayer(id) {
		return nil
	}
	if !h.st.Over && h.st.Complete() {
		h.endRound(now)
	}
	return h.session.Flush(h.st)
}

// Frame ends the current round once its deadline passes. Players who did not
// report score nothing for it.
func (h *Host) Frame(now time.Time) error {
	if h.st.Over {
		return nil
	}
	if h.rearm {
		h.arm(now)
	}
	if h.armed != h.st.Round || !due(h.endsAt, now) {
		return nil
	}
	h.log.Debug("round timed out", zap.Int("round", h.armed), zap.Int("reported", len(h.st.Done)))
	h.endRound(now)
	return h.session.Flush(h.st)
}

func (h *Host) endRound(now time.Time) {
	if !h.st.EndRound(h.st.Round) {
		return
	}
	if h.st.Over {
		h.endsAt = time.Time{}
		return
	}
	h.arm(now)
}

func (h *Host) arm(now time.Time) {
	h.armed, h.rearm = h.st.Round, false
	h.endsAt = now.Add(h.roundTime)
}

func due(at, now time.Time) bool {
	return !at.IsZero() && !now.Before(at)
}
