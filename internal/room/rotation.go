package room

import "fmt"

// Rotate moves the loser of a finished two-seat game to the back of the queue and
// promotes the next queued player into the vacated seat. The winner keeps their seat.
// With fewer than three players there is nobody to promote and the caller should
// offer a plain rematch instead.
func (r *Room) Rotate(playerID, winner, loser string) (RotationRecord, error) {
	if err := r.requireHost(playerID); err != nil {
		return RotationRecord{}, err
	}
	g, ok := LookupGame(r.SelectedGame)
	if !ok || !g.SeatGame() {
		return RotationRecord{}, fmt.Errorf("%w: %q has no seats to rotate", ErrInvalidAction, r.SelectedGame)
	}
	if r.Session == nil || r.Session.State != StateGameOver {
		return RotationRecord{}, fmt.Errorf("%w: rotation needs a finished game", ErrInvalidAction)
	}
	if len(r.Players) <= g.Seats {
		return RotationRecord{}, fmt.Errorf("%w: nobody queued, offer a rematch", ErrInvalidAction)
	}

	winSeat, loseSeat := r.Seat(winner), r.Seat(loser)
	if winSeat < 0 || loseSeat < 0 || winSeat == loseSeat {
		return RotationRecord{}, fmt.Errorf("%w: %s/%s are not the seated players", ErrInvalidAction, winner, loser)
	}

	out := r.Players[loseSeat]
	next := r.Players[g.Seats]
	queue := append([]*Player{}, r.Players[g.Seats+1:]...)

	r.Players[loseSeat] = next
	r.Players = append(append(r.Players[:g.Seats], queue...), out)

	rec := RotationRecord{WinnerPlayerID: winner, LoserPlayerID: loser}
	r.LastRotation = &rec
	r.Session.State = StateWaiting
	r.Session.Winner = ""
	r.clearReady()
	return rec, nil
}
