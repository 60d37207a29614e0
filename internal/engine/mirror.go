package engine

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

// Mirror keeps the latest host frame for a non-host client. Frames replace the
// mirrored state in arrival order. A sequence regression is logged and counted
// but still applied; the transport is ordered per connection, so one only shows
// up around a host takeover.
type Mirror[S any] struct {
	log *zap.Logger

	session   int
	state     S
	frame     types.GameFrame
	have      bool
	anomalies int
}

func NewMirror[S any](log *zap.Logger) *Mirror[S] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mirror[S]{log: log}
}

// Apply decodes a game-start or game-state envelope into the mirror.
func (m *Mirror[S]) Apply(env types.Envelope) (types.GameFrame, error) {
	var f types.GameFrame
	if err := env.Decode(&f); err != nil {
		return types.GameFrame{}, fmt.Errorf("decode frame: %w", err)
	}
	var st S
	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, &st); err != nil {
			return types.GameFrame{}, fmt.Errorf("decode payload: %w", err)
		}
	}

	if env.Type == types.EvtGameStart || env.Session != m.session {
		m.session = env.Session
		m.have = false
	}
	if m.have && f.Seq < m.frame.Seq {
		m.anomalies++
		m.log.Warn("frame sequence went backwards",
			zap.Int("session", env.Session),
			zap.Uint64("seq", f.Seq),
			zap.Uint64("prev", m.frame.Seq))
	}

	m.state, m.frame, m.have = st, f, true
	return f, nil
}

func (m *Mirror[S]) State() (S, bool) { return m.state, m.have }

// Frame returns the header of the last applied frame.
func (m *Mirror[S]) Frame() types.GameFrame { return m.frame }

func (m *Mirror[S]) Session() int { return m.session }

func (m *Mirror[S]) Anomalies() int { return m.anomalies }
