package bot

import (
	"math/rand/v2"
	"slices"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine/memory"
)

// Memory plays the card game for one bot. It only recalls cards it turned over
// itself; flips by other players are not remembered.
type Memory struct {
	ID   string
	seen map[int]int // position -> symbol
	rng  *rand.Rand
}

func NewMemory(id string, seed int64) *Memory {
	return &Memory{
		ID:   id,
		seen: map[int]int{},
		rng:  rand.New(rand.NewPCG(uint64(seed), 0x6d656d)),
	}
}

// Revealed records a card this bot turned over.
func (m *Memory) Revealed(st memory.State, pos int) {
	if pos >= 0 && pos < len(st.Board) {
		m.seen[pos] = st.Board[pos].Symbol
	}
}

func (m *Memory) Known(pos int) (int, bool) {
	sym, ok := m.seen[pos]
	return sym, ok
}

// Choose picks the next card to turn over, or -1 when the bot has nothing to do.
func (m *Memory) Choose(st memory.State) int {
	if st.Over || st.Turn != m.ID || len(st.Pending) >= 2 {
		return -1
	}
	m.forgetMatched(st)

	switch len(st.Pending) {
	case 0:
		if a, _, ok := m.knownPair(st); ok {
			return a
		}
	case 1:
		first := st.Pending[0]
		if sym, ok := m.seen[first]; ok {
			for _, pos := range m.positions() {
				if pos != first && m.seen[pos] == sym && !st.FaceUp(pos) {
					return pos
				}
			}
		}
	}
	return m.pickHidden(st)
}

func (m *Memory) forgetMatched(st memory.State) {
	for pos := range m.seen {
		if pos >= len(st.Board) || st.Board[pos].Matched {
			delete(m.seen, pos)
		}
	}
}

func (m *Memory) knownPair(st memory.State) (int, int, bool) {
	first := map[int]int{}
	for _, pos := range m.positions() {
		if st.FaceUp(pos) {
			continue
		}
		sym := m.seen[pos]
		if other, ok := first[sym]; ok {
			return other, pos, true
		}
		first[sym] = pos
	}
	return 0, 0, false
}

// pickHidden prefers a card the bot has never seen, then any face-down card.
func (m *Memory) pickHidden(st memory.State) int {
	var unseen, hidden []int
	for pos := range st.Board {
		if st.FaceUp(pos) {
			continue
		}
		hidden = append(hidden, pos)
		if _, ok := m.seen[pos]; !ok {
			unseen = append(unseen, pos)
		}
	}
	switch {
	case len(unseen) > 0:
		return unseen[m.rng.IntN(len(unseen))]
	case len(hidden) > 0:
		return hidden[m.rng.IntN(len(hidden))]
	}
	return -1
}

// positions returns the remembered positions in order so choices are reproducible.
func (m *Memory) positions() []int {
	out := make([]int, 0, len(m.seen))
	for pos := range m.seen {
		out = append(out, pos)
	}
	slices.Sort(out)
	return out
}
