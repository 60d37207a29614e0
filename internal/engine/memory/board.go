// Package memory is the turn-based card matching game. The host judges every
// pair; flips are shown to everyone before judgement.
package memory

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
)

const DefaultPairs = 8

var ErrNotYourTurn = errors.New("not your turn")
var ErrBadPosition = errors.New("no such card")
var ErrCardUp = errors.New("card already face up")
var ErrPairPending = errors.New("pair already pending")
var ErrGameOver = errors.New("game is over")

type Card struct {
	Symbol  int  `json:"symbol"`
	Matched bool `json:"matched"`
}

type State struct {
	Board  []Card         `json:"board"`
	Order  []string       `json:"order"`
	Turn   string         `json:"turn"`
	Scores map[string]int `json:"scores"`
	// Pending holds face-up positions awaiting judgement, at most two.
	Pending []int `json:"pending"`
	// PairSeq counts judged pairs. Timers carry the value they were armed with
	// and do nothing once it moved on.
	PairSeq uint64 `json:"pair_seq"`
	// Judged is set while a mismatched pair is still shown.
	Judged bool   `json:"judged"`
	Over   bool   `json:"over"`
	Winner string `json:"winner,omitempty"`
}

func (s State) Header() engine.Header {
	h := engine.Header{State: engine.StatePlaying, Scores: s.Scores}
	if s.Over {
		h.State, h.Winner = engine.StateGameOver, s.Winner
	}
	return h
}

// NewState shuffles pairs*2 cards with seed and gives the first turn to order[0].
func NewState(seed int64, pairs int, order []string) State {
	if pairs <= 0 {
		pairs = DefaultPairs
	}
	board := make([]Card, 0, pairs*2)
	for sym := range pairs {
		board = append(board, Card{Symbol: sym}, Card{Symbol: sym})
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(pairs)))
	rng.Shuffle(len(board), func(i, j int) { board[i], board[j] = board[j], board[i] })

	scores := make(map[string]int, len(order))
	for _, id := range order {
		scores[id] = 0
	}
	st := State{
		Board:   board,
		Order:   slices.Clone(order),
		Scores:  scores,
		Pending: []int{},
	}
	if len(order) > 0 {
		st.Turn = order[0]
	}
	return st
}

// FaceUp reports whether pos is matched or pending.
func (s *State) FaceUp(pos int) bool {
	return s.Board[pos].Matched || slices.Contains(s.Pending, pos)
}

// CanReveal validates a flip without applying it.
func (s *State) CanReveal(playerID string, pos int) error {
	switch {
	case s.Over:
		return ErrGameOver
	case playerID != s.Turn:
		return ErrNotYourTurn
	case pos < 0 || pos >= len(s.Board):
		return fmt.Errorf("%w: %d", ErrBadPosition, pos)
	case len(s.Pending) >= 2:
		return ErrPairPending
	case s.FaceUp(pos):
		return fmt.Errorf("%w: %d", ErrCardUp, pos)
	}
	return nil
}

// Reveal flips pos for playerID and reports whether a pair is now pending.
func (s *State) Reveal(playerID string, pos int) (bool, error) {
	if err := s.CanReveal(playerID, pos); err != nil {
		return false, err
	}
	s.Pending = append(s.Pending, pos)
	return len(s.Pending) == 2, nil
}

type Outcome int

const (
	NoOp Outcome = iota
	Match
	Mismatch
)

// Judge resolves the pending pair armed under seq. A match scores, keeps the
// turn and completes the pair. A mismatch stays face up until Hide. Judging a
// pair twice is a no-op.
func (s *State) Judge(seq uint64) Outcome {
	if s.Over || seq != s.PairSeq || s.Judged || len(s.Pending) != 2 {
		return NoOp
	}
	a, b := s.Pending[0], s.Pending[1]
	if s.Board[a].Symbol != s.Board[b].Symbol {
		s.Judged = true
		return Mismatch
	}
	s.Board[a].Matched, s.Board[b].Matched = true, true
	s.Scores[s.Turn]++
	s.completePair()
	if s.allMatched() {
		s.finish()
	}
	return Match
}

// Hide turns a judged mismatch face down and passes the turn on.
func (s *State) Hide(seq uint64) bool {
	if seq != s.PairSeq || !s.Judged {
		return false
	}
	s.completePair()
	s.advance()
	return true
}

// Force settles whatever pair is stuck under seq.
func (s *State) Force(seq uint64) bool {
	if seq != s.PairSeq || len(s.Pending) != 2 {
		return false
	}
	if s.Judge(seq) == Match {
		return true
	}
	return s.Hide(seq)
}

// RemovePlayer drops a departed player. If it was their turn, their pending
// cards are put back and the turn moves to whoever followed them.
func (s *State) RemovePlayer(id string) bool {
	idx := slices.Index(s.Order, id)
	if idx < 0 {
		return false
	}
	wasTurn := s.Turn == id
	s.Order = slices.Delete(s.Order, idx, idx+1)
	delete(s.Scores, id)
	if s.Over {
		return true
	}
	if len(s.Order) < 2 {
		s.finish()
		return true
	}
	if wasTurn {
		if len(s.Pending) > 0 {
			s.completePair()
		}
		s.Turn = s.Order[idx%len(s.Order)]
	}
	return true
}

func (s *State) completePair() {
	s.Pending = s.Pending[:0]
	s.Judged = false
	s.PairSeq++
}

func (s *State) advance() {
	idx := slices.Index(s.Order, s.Turn)
	s.Turn = s.Order[(idx+1)%len(s.Order)]
}

func (s *State) allMatched() bool {
	for _, c := range s.Board {
		if !c.Matched {
			return false
		}
	}
	return true
}

// finish ends the game. The highest score wins; a tie goes to the earliest seat.
func (s *State) finish() {
	s.Over = true
	s.Pending = s.Pending[:0]
	s.Winner = ""
	best := -1
	for _, id := range s.Order {
		if sc := s.Scores[id]; sc > best {
			best, s.Winner = sc, id
		}
	}
}
