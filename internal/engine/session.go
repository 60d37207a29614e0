package engine

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

const DefaultBroadcastHz = 30

// Session publishes the frames of one game session. It owns the frame sequence
// and the broadcast throttle. Frames that change a score or the game state skip
// the throttle so no window can hide them.
type Session[S Payload] struct {
	id      int
	pub     Publisher
	limiter *rate.Limiter
	log     *zap.Logger

	seq  uint64
	last Header
	over bool
}

func NewSession[S Payload](id int, pub Publisher, hz int, log *zap.Logger) *Session[S] {
	if hz <= 0 {
		hz = DefaultBroadcastHz
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session[S]{
		id:      id,
		pub:     pub,
		limiter: rate.NewLimiter(rate.Limit(hz), 1),
		log:     log.With(zap.Int("session", id)),
		last:    Header{State: StatePlaying},
	}
}

func (s *Session[S]) ID() int { return s.id }

func (s *Session[S]) Seq() uint64 { return s.seq }

func (s *Session[S]) Over() bool { return s.over }

// Resume continues the sequence of a session another host started, so mirrors
// never see it go backwards.
func (s *Session[S]) Resume(seq uint64, last S) {
	s.seq = seq
	s.last = cloneHeader(last.Header())
	s.over = s.last.State == StateGameOver
}

func (s *Session[S]) Start(st S) error {
	return s.emit(types.EvtGameStart, st)
}

// Publish sends st unless the throttle window is closed. It reports whether a
// frame went out. Nothing is sent after the terminal frame.
func (s *Session[S]) Publish(now time.Time, st S) (bool, error) {
	if s.over {
		return false, nil
	}
	h := st.Header()
	urgent := h.State != s.last.State || !maps.Equal(h.Scores, s.last.Scores)
	if !urgent && !s.limiter.AllowN(now, 1) {
		return false, nil
	}
	return true, s.emit(types.EvtGameState, st)
}

// Flush sends st regardless of the throttle.
func (s *Session[S]) Flush(st S) error {
	if s.over {
		return nil
	}
	return s.emit(types.EvtGameState, st)
}

func (s *Session[S]) emit(typ string, st S) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	h := st.Header()
	s.seq++
	env, err := types.NewEnvelope(typ, s.id, types.GameFrame{
		Seq:     s.seq,
		State:   h.State,
		Winner:  h.Winner,
		Scores:  h.Scores,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	s.last = cloneHeader(h)
	if h.State == StateGameOver {
		s.over = true
		s.log.Info("session over", zap.String("winner", h.Winner), zap.Uint64("seq", s.seq))
	}
	return s.pub.Publish(env)
}

func cloneHeader(h Header) Header {
	h.Scores = maps.Clone(h.Scores)
	return h
}
