package wins

import (
	"context"
	"time"

	"go.uber.org/zap"
)

//go:generate go tool mockgen -destination=./mocks/recorder_mock.go -package=mocks . Recorder

type Win struct {
	WinnerID string
	GameType string
	RoomID   string
	At       time.Time
}

type Recorder interface {
	RecordWin(ctx context.Context, w Win) error
}

type Discard struct{}

func (Discard) RecordWin(context.Context, Win) error { return nil }

// Async is a fire-and-forget front for a Recorder. Record never blocks and
// failures are only logged, so gameplay is unaffected by the sink.
type Async struct {
	rec     Recorder
	log     *zap.Logger
	queue   chan Win
	timeout time.Duration
}

func NewAsync(rec Recorder, log *zap.Logger, size int) *Async {
	if size <= 0 {
		size = 64
	}
	return &Async{
		rec:     rec,
		log:     log,
		queue:   make(chan Win, size),
		timeout: 5 * time.Second,
	}
}

func (a *Async) Record(w Win) {
	select {
	case a.queue <- w:
	default:
		a.log.Warn("win queue full, dropping record",
			zap.String("winner", w.WinnerID), zap.String("game", w.GameType))
	}
}

// Run drains the queue until ctx is cancelled.
func (a *Async) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-a.queue:
			a.write(ctx, w)
		}
	}
}

func (a *Async) write(ctx context.Context, w Win) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.rec.RecordWin(ctx, w); err != nil {
		a.log.Warn("record win failed",
			zap.String("winner", w.WinnerID),
			zap.String("game", w.GameType),
			zap.Error(err))
	}
}
