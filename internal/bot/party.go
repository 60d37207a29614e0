package bot

import (
	"math/rand/v2"

	"github.com/jrizzo9/multiplayer-arcade/internal/engine/party"
)

// Party plays microgames for one bot. Skill sets the middle of its score range.
type Party struct {
	ID    string
	Skill int
	rng   *rand.Rand
}

func NewParty(id string, seed int64) *Party {
	return &Party{
		ID:    id,
		Skill: party.MaxPoints / 2,
		rng:   rand.New(rand.NewPCG(uint64(seed), 0x7061727479)),
	}
}

// Points is the bot's score for the current round, or -1 when it has nothing
// to report.
func (p *Party) Points(st party.State) int {
	if st.CanSubmit(p.ID, st.Round, 0) != nil {
		return -1
	}
	spread := party.MaxPoints / 4
	return min(max(p.Skill-spread+p.rng.IntN(2*spread+1), 0), party.MaxPoints)
}
