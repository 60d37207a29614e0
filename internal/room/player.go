package room

import "github.com/jrizzo9/multiplayer-arcade/pkg/types"

type Player struct {
	ID    string
	Name  string
	Color string
	Emoji string
	Bot   bool
	Score int

	joinSeq uint64
}

type RotationRecord struct {
	WinnerPlayerID string
	LoserPlayerID  string
}

func (r RotationRecord) wire() *types.Rotation {
	return &types.Rotation{Winner: r.WinnerPlayerID, Loser: r.LoserPlayerID}
}
