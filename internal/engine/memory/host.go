package memory

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
	"github.com/jrizzo9/multiplayer-arcade/internal/room"
	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

type Timing struct {
	ResolveDelay  time.Duration
	MismatchDelay time.Duration
	SafetyTimeout time.Duration
}

var DefaultTiming = Timing{
	ResolveDelay:  time.Second,
	MismatchDelay: time.Second,
	SafetyTimeout: 5 * time.Second,
}

// Host arbitrates a memory session on the host's client. Deadlines are checked
// in Frame so the protocol timers run on the caller's clock.
type Host struct {
	st      State
	session *engine.Session[State]
	pub     engine.Publisher
	timing  Timing
	log     *zap.Logger

	armed    uint64 // PairSeq the deadlines below belong to
	judgeAt  time.Time
	hideAt   time.Time
	safetyAt time.Time
	rearm    bool
}

func NewHost(sessionID int, seed int64, order []string, pairs int, timing Timing, pub engine.Publisher, log *zap.Logger) *Host {
	return newHost(sessionID, NewState(seed, pairs, order), timing, pub, log)
}

// ResumeHost takes over from the last mirrored state. A pair left pending is
// judged on the new host's clock.
func ResumeHost(sessionID int, last State, seq uint64, timing Timing, pub engine.Publisher, log *zap.Logger) *Host {
	h := newHost(sessionID, last.Clone(), timing, pub, log)
	h.session.Resume(seq, last)
	h.rearm = len(h.st.Pending) == 2
	return h
}

func newHost(sessionID int, st State, timing Timing, pub engine.Publisher, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		st:      st,
		session: engine.NewSession[State](sessionID, pub, 0, log),
		pub:     pub,
		timing:  timing,
		log:     log.With(zap.Int("session", sessionID)),
	}
}

func (h *Host) State() State { return h.st.Clone() }

func (h *Host) SessionID() int { return h.session.ID() }

func (h *Host) Over() bool { return h.st.Over }

func (h *Host) Start() error { return h.session.Start(h.st) }

// Flip reveals pos for playerID, which is the host itself or a bot it drives,
// and shows the flip to everyone.
func (h *Host) Flip(now time.Time, playerID string, pos int) error {
	if err := h.reveal(now, playerID, pos); err != nil {
		return err
	}
	env, err := types.NewEnvelope(types.EvtCardFlip, h.SessionID(), types.CardFlip{PlayerID: playerID, Position: pos})
	if err != nil {
		return err
	}
	if err := h.pub.Publish(env); err != nil {
		return err
	}
	return h.session.Flush(h.st)
}

// Handle applies a card-flip relayed from another player. An illegal flip is
// answered with a room-error routed to that player only.
func (h *Host) Handle(now time.Time, env types.Envelope) error {
	if env.Type != types.EvtCardFlip || env.Session != h.SessionID() {
		return nil
	}
	var p types.CardFlip
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("decode card-flip: %w", err)
	}
	if err := h.reveal(now, p.PlayerID, p.Position); err != nil {
		h.log.Debug("rejected flip", zap.String("player", p.PlayerID), zap.Int("pos", p.Position), zap.Error(err))
		return h.reject(p.PlayerID, err)
	}
	return h.session.Flush(h.st)
}

func (h *Host) reveal(now time.Time, playerID string, pos int) error {
	pair, err := h.st.Reveal(playerID, pos)
	if err != nil {
		return err
	}
	if pair {
		h.armed = h.st.PairSeq
		h.judgeAt = now.Add(h.timing.ResolveDelay)
		h.safetyAt = now.Add(h.timing.SafetyTimeout)
		h.hideAt = time.Time{}
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

// RemovePlayer drops a player who left the room mid-game.
func (h *Host) RemovePlayer(id string) error {
	if !h.st.RemovePlayer(id) {
		return nil
	}
	if h.armed != h.st.PairSeq {
		h.disarm()
	}
	return h.session.Flush(h.st)
}

// Frame fires whichever protocol deadline is due.
func (h *Host) Frame(now time.Time) error {
	if h.st.Over {
		return nil
	}
	if h.rearm {
		h.rearm = false
		h.armed = h.st.PairSeq
		if h.st.Judged {
			h.hideAt = now.Add(h.timing.MismatchDelay)
		} else {
			h.judgeAt = now.Add(h.timing.ResolveDelay)
		}
		h.safetyAt = now.Add(h.timing.SafetyTimeout)
	}
	if h.armed != h.st.PairSeq {
		h.disarm()
		return nil
	}

	switch {
	case due(h.judgeAt, now):
		h.judgeAt = time.Time{}
		switch h.st.Judge(h.armed) {
		case Match:
			h.disarm()
			return h.session.Flush(h.st)
		case Mismatch:
			h.hideAt = now.Add(h.timing.MismatchDelay)
			return h.session.Flush(h.st)
		}
	case due(h.hideAt, now):
		h.hideAt = time.Time{}
		if h.st.Hide(h.armed) {
			h.disarm()
			return h.session.Flush(h.st)
		}
	case due(h.safetyAt, now):
		h.safetyAt = time.Time{}
		if h.st.Force(h.armed) {
			h.log.Warn("forced a stuck pair", zap.Uint64("pair_seq", h.armed))
			h.disarm()
			return h.session.Flush(h.st)
		}
	}
	return nil
}

func (h *Host) disarm() {
	h.judgeAt, h.hideAt, h.safetyAt = time.Time{}, time.Time{}, time.Time{}
}

func due(at, now time.Time) bool {
	return !at.IsZero() && !now.Before(at)
}

func (s State) Clone() State {
	s.Board = slices.Clone(s.Board)
	s.Order = slices.Clone(s.Order)
	s.Pending = slices.Clone(s.Pending)
	s.Scores = maps.Clone(s.Scores)
	if s.Pending == nil {
		s.Pending = []int{}
	}
	return s
}
