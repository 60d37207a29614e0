// Package party runs the microgame party: a fixed number of timed rounds in
// which every player reports a score and the best total wins.
package party

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine"
)

const (
	DefaultRounds = 5
	MaxPoints     = 100
)

// Microgames is the pool rounds are drawn from.
var Microgames = []string{"reaction", "tap-race", "quick-math", "color-match"}

var ErrNotInParty = errors.New("not in this party")
var ErrWrongRound = errors.New("not the current round")
var ErrAlreadyIn = errors.New("result already in for this round")
var ErrBadPoints = errors.New("points out of range")
var ErrGameOver = errors.New("game is over")

type State struct {
	Order []string `json:"order"`
	// Lineup names the microgame of each round.
	Lineup []string `json:"lineup"`
	// Round is 1-based. Deadlines carry the round they were armed for.
	Round  int            `json:"round"`
	Done   []string       `json:"done"`
	Scores map[string]int `json:"scores"`
	Over   bool           `json:"over"`
	Winner string         `json:"winner,omitempty"`
}

func (s State) Header() engine.Header {
	h := engine.Header{State: engine.StatePlaying, Scores: s.Scores}
	if s.Over {
		h.State, h.Winner = engine.StateGameOver, s.Winner
	}
	return h
}

// NewState draws rounds microgames from the pool with seed.
func NewState(seed int64, rounds int, order []string) State {
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(rounds)))
	lineup := make([]string, rounds)
	for i := range lineup {
		lineup[i] = Microgames[rng.IntN(len(Microgames))]
	}
	scores := make(map[string]int, len(order))
	for _, id := range order {
		scores[id] = 0
	}
	return State{
		Order:  slices.Clone(order),
		Lineup: lineup,
		Round:  1,
		Done:   []string{},
		Scores: scores,
	}
}

// Microgame is the game of the current round.
func (s *State) Microgame() string {
	if s.Round < 1 || s.Round > len(s.Lineup) {
		return ""
	}
	return s.Lineup[s.Round-1]
}

func (s *State) CanSubmit(playerID string, round, points int) error {
	switch {
	case s.Over:
		return ErrGameOver
	case !slices.Contains(s.Order, playerID):
		return fmt.Errorf("%w: %s", ErrNotInParty, playerID)
	case round != s.Round:
		return fmt.Errorf("%w: %d", ErrWrongRound, round)
	case slices.Contains(s.Done, playerID):
		return ErrAlreadyIn
	case points < 0 || points > MaxPoints:
		return fmt.Errorf("%w: %d", ErrBadPoints, points)
	}
	return nil
}

// Submit adds a player's score for round. It reports whether everyone still in
// the party has reported.
func (s *State) Submit(playerID string, round, points int) (bool, error) {
	if err := s.CanSubmit(playerID, round, points); err != nil {
		return false, err
	}
	if s.Scores == nil {
		s.Scores = map[string]int{}
	}
	s.Scores[playerID] += points
	s.Done = append(s.Done, playerID)
	return s.Complete(), nil
}

func (s *State) Complete() bool {
	for _, id := range s.Order {
		if !slices.Contains(s.Done, id) {
			return false
		}
	}
	return true
}

// EndRound closes round and moves to the next one, or finishes the party after
// the last. A round that already ended is ignored.
func (s *State) EndRound(round int) bool {
	if s.Over || round != s.Round {
		return false
	}
	if s.Round >= len(s.Lineup) {
		s.finish()
		return true
	}
	s.Round++
	s.Done = s.Done[:0]
	return true
}

// RemovePlayer drops a departed player and their score.
func (s *State) RemovePlayer(id string) bool {
	idx := slices.Index(s.Order, id)
	if idx < 0 {
		return false
	}
	s.Order = slices.Delete(s.Order, idx, idx+1)
	if i := slices.Index(s.Done, id); i >= 0 {
		s.Done = slices.Delete(s.Done, i, i+1)
	}
	delete(s.Scores, id)
	if !s.Over && len(s.Order) < 2 {
		s.finish()
	}
	return true
}

// finish ends the party. The highest total wins; a tie goes to the earliest seat.
func (s *State) finish() {
	s.Over = true
	s.Winner = ""
	best := -1
	for _, id := range s.Order {
		if sc := s.Scores[id]; sc > best {
			best, s.Winner = sc, id
		}
	}
}

func (s State) Clone() State {
	s.Order = slices.Clone(s.Order)
	s.Lineup = slices.Clone(s.Lineup)
	s.Done = slices.Clone(s.Done)
	s.Scores = maps.Clone(s.Scores)
	if s.Done == nil {
		s.Done = []string{}
	}
	return s
}
