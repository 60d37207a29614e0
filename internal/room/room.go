package room

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/jrizzo9/multiplayer-arcade/pkg/types"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateCountdown State = "countdown"
	StatePlaying   State = "playing"
	StateGameOver  State = "gameover"
)

const DefaultCountdown = 10 * time.Second

// Session is the per-room, per-selected-game lifecycle. ID changes only when a
// game actually starts, so actions tagged with an older ID are stale.
type Session struct {
	ID        int
	Game      string
	State     State
	Seed      int64
	Winner    string
	StartedAt time.Time
}

type Config struct {
	Countdown time.Duration
	Seed      func() int64
}

// Room holds membership, host authority and ready/countdown state. It performs no
// I/O and is not safe for concurrent use; the owning lobby is its only writer.
type Room struct {
	ID           string
	Players      []*Player
	HostPlayerID string
	SelectedGame string
	Session      *Session
	LastRotation *RotationRecord

	ready             map[string]bool
	countdownDeadline time.Time
	countdown         time.Duration
	joinSeq           uint64
	sessionSeq        int
	seed              func() int64
}

type LeaveResult struct {
	HostChanged bool
	Empty       bool
	Forfeit     *RotationRecord
}

func New(id string, cfg Config) *Room {
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultCountdown
	}
	if cfg.Seed == nil {
		cfg.Seed = rand.Int64
	}
	return &Room{
		ID:        id,
		ready:     make(map[string]bool),
		countdown: cfg.Countdown,
		seed:      cfg.Seed,
	}
}

// Join adds p to the roster. Joining again with the same ID only refreshes the
// display attributes. The first human to join becomes host.
func (r *Room) Join(p Player) (bool, error) {
	if existing := r.Player(p.ID); existing != nil {
		existing.Name, existing.Color, existing.Emoji = p.Name, p.Color, p.Emoji
		return false, nil
	}
	if len(r.Players) >= MaxPlayers {
		return false, ErrRoomFull
	}
	r.add(p)
	if r.HostPlayerID == "" && !p.Bot {
		r.HostPlayerID = p.ID
	}
	r.cancelCountdown()
	return true, nil
}

func (r *Room) add(p Player) {
	r.joinSeq++
	p.joinSeq = r.joinSeq
	p.Score = 0
	r.Players = append(r.Players, &p)
}

func (r *Room) Leave(playerID string) (LeaveResult, error) {
	idx := r.index(playerID)
	if idx < 0 {
		return LeaveResult{}, ErrNotMember
	}
	var res LeaveResult

	if r.Session != nil && r.Session.State == StatePlaying {
		res.Forfeit = r.forfeit(idx)
	}

	r.Players = slices.Delete(r.Players, idx, idx+1)
	delete(r.ready, playerID)
	r.cancelCountdown()

	if r.humans() == 0 {
		r.HostPlayerID = ""
		res.Empty = true
		return res, nil
	}
	if r.HostPlayerID == playerID {
		r.HostPlayerID = r.earliestHuman().ID
		res.HostChanged = true
	}
	return res, nil
}

// forfeit ends a playing session when the leaving player makes it unplayable.
// In a seat game the remaining seat holder wins.
func (r *Room) forfeit(idx int) *RotationRecord {
	g, _ := LookupGame(r.Session.Game)
	leaver := r.Players[idx]

	if g.SeatGame() {
		if idx >= g.Seats {
			return nil
		}
		r.Session.State = StateGameOver
		for i := 0; i < g.Seats && i < len(r.Players); i++ {
			if i != idx {
				r.Session.Winner = r.Players[i].ID
			}
		}
		if r.Session.Winner == "" {
			return nil
		}
		rec := &RotationRecord{WinnerPlayerID: r.Session.Winner, LoserPlayerID: leaver.ID}
		r.LastRotation = rec
		return rec
	}

	if len(r.Players)-1 < g.MinPlayers {
		r.Session.State = StateGameOver
		for i, p := range r.Players {
			if i != idx {
				r.Session.Winner = p.ID
			}
		}
	}
	return nil
}

func (r *Room) SelectGame(playerID, tag string) error {
	if err := r.requireHost(playerID); err != nil {
		return err
	}
	if _, ok := LookupGame(tag); !ok {
		return fmt.Errorf("%q: %w", tag, ErrUnknownGame)
	}
	if r.Session != nil && r.Session.State == StatePlaying {
		return ErrGameInProgress
	}
	r.SelectedGame = tag
	r.clearReady()
	r.countdownDeadline = time.Time{}
	prev := 0
	if r.Session != nil {
		prev = r.Session.ID
	}
	r.Session = &Session{ID: prev, Game: tag, State: StateWaiting}
	return nil
}

// SetReady toggles playerID in the ready set and reports whether this toggle
// started the countdown.
func (r *Room) SetReady(playerID string, ready bool, now time.Time) (bool, error) {
	p := r.Player(playerID)
	if p == nil {
		return false, ErrNotMember
	}
	if r.Session == nil {
		return false, fmt.Errorf("%w: no game selected", ErrInvalidAction)
	}
	if r.Session.State == StatePlaying || r.Session.State == StateGameOver {
		return false, ErrGameInProgress
	}
	if r.Seat(playerID) < 0 {
		return false, fmt.Errorf("%w: %s is not seated", ErrInvalidAction, playerID)
	}

	if !ready {
		delete(r.ready, playerID)
		r.cancelCountdown()
		return false, nil
	}
	r.ready[playerID] = true
	if r.CountdownActive() || !r.allReady() {
		return false, nil
	}
	r.countdownDeadline = now.Add(r.countdown)
	r.Session.State = StateCountdown
	return true, nil
}

// TickCountdown expires the countdown. On expiry the session moves to playing
// with a fresh ID and seed.
func (r *Room) TickCountdown(now time.Time) (time.Duration, bool) {
	if !r.CountdownActive() {
		return 0, false
	}
	if !r.allReady() {
		r.cancelCountdown()
		return 0, false
	}
	if remaining := r.countdownDeadline.Sub(now); remaining > 0 {
		return remaining, false
	}

	r.sessionSeq = max(r.sessionSeq, r.Session.ID) + 1
	r.Session = &Session{
		ID:        r.sessionSeq,
		Game:      r.SelectedGame,
		State:     StatePlaying,
		Seed:      r.seed(),
		StartedAt: now,
	}
	for _, p := range r.Players {
		p.Score = 0
	}
	r.clearReady()
	r.countdownDeadline = time.Time{}
	return 0, true
}

// EndSession records the terminal state reported by the host. It reports false
// when the session was already over.
func (r *Room) EndSession(playerID string, sessionID int, winner string, scores map[string]int) (bool, error) {
	if err := r.requireHost(playerID); err != nil {
		return false, err
	}
	if err := r.requireSession(sessionID); err != nil {
		return false, err
	}
	if r.Session.State != StatePlaying {
		return false, nil
	}
	for id, score := range scores {
		if p := r.Player(id); p != nil {
			p.Score = score
		}
	}
	r.Session.State = StateGameOver
	if r.Player(winner) != nil {
		r.Session.Winner = winner
	}

	g, _ := LookupGame(r.Session.Game)
	if g.SeatGame() && len(r.Players) > g.Seats && r.Session.Winner != "" {
		for i := 0; i < g.Seats; i++ {
			if id := r.Players[i].ID; id != r.Session.Winner {
				r.LastRotation = &RotationRecord{WinnerPlayerID: r.Session.Winner, LoserPlayerID: id}
			}
		}
	}
	return true, nil
}

func (r *Room) Restart(playerID string) error {
	if err := r.requireHost(playerID); err != nil {
		return err
	}
	if r.Session == nil || r.Session.State != StateGameOver {
		return fmt.Errorf("%w: nothing to restart", ErrInvalidAction)
	}
	r.Session.State = StateWaiting
	r.Session.Winner = ""
	r.clearReady()
	return nil
}

func (r *Room) AddBot(playerID string, bot Player) error {
	if err := r.requireHost(playerID); err != nil {
		return err
	}
	if r.Session != nil && r.Session.State == StatePlaying {
		return ErrGameInProgress
	}
	if len(r.Players) >= MaxPlayers {
		return ErrRoomFull
	}
	bot.Bot = true
	r.add(bot)
	r.cancelCountdown()
	return nil
}

func (r *Room) RemoveBot(playerID, botID string) error {
	if err := r.requireHost(playerID); err != nil {
		return err
	}
	if r.Session != nil && r.Session.State == StatePlaying {
		return ErrGameInProgress
	}
	idx := r.index(botID)
	if idx < 0 || !r.Players[idx].Bot {
		return fmt.Errorf("%w: %s is not a bot", ErrInvalidAction, botID)
	}
	r.Players = slices.Delete(r.Players, idx, idx+1)
	delete(r.ready, botID)
	r.cancelCountdown()
	return nil
}

func (r *Room) Player(id string) *Player {
	if i := r.index(id); i >= 0 {
		return r.Players[i]
	}
	return nil
}

// Seat returns the seat index of playerID for the selected game, or -1 when the
// player is queued or not present.
func (r *Room) Seat(playerID string) int {
	idx := r.index(playerID)
	if idx < 0 {
		return -1
	}
	g, ok := LookupGame(r.SelectedGame)
	if ok && g.SeatGame() && idx >= g.Seats {
		return -1
	}
	return idx
}

func (r *Room) ActiveSeats() []*Player {
	g, ok := LookupGame(r.SelectedGame)
	if ok && g.SeatGame() && len(r.Players) > g.Seats {
		return r.Players[:g.Seats]
	}
	return r.Players
}

func (r *Room) CountdownActive() bool { return !r.countdownDeadline.IsZero() }

func (r *Room) CountdownDeadline() time.Time { return r.countdownDeadline }

func (r *Room) IsReady(playerID string) bool { return r.ready[playerID] }

func (r *Room) Empty() bool { return r.humans() == 0 }

func (r *Room) Snapshot(version int, now time.Time) types.RoomSnapshot {
	snap := types.RoomSnapshot{
		Version:      version,
		RoomID:       r.ID,
		HostPlayerID: r.HostPlayerID,
		SelectedGame: r.SelectedGame,
		Players:      make([]types.PlayerView, 0, len(r.Players)),
		Ready:        make([]string, 0, len(r.ready)),
	}
	for _, p := range r.Players {
		snap.Players = append(snap.Players, types.PlayerView{
			ID:    p.ID,
			Name:  p.Name,
			Color: p.Color,
			Emoji: p.Emoji,
			Bot:   p.Bot,
			Seat:  r.Seat(p.ID),
			Score: p.Score,
		})
		if r.ready[p.ID] {
			snap.Ready = append(snap.Ready, p.ID)
		}
	}
	if r.CountdownActive() {
		snap.CountdownMs = max(r.countdownDeadline.Sub(now), 0).Milliseconds()
	}
	if s := r.Session; s != nil {
		snap.Session = &types.SessionView{
			ID:     s.ID,
			Game:   s.Game,
			State:  string(s.State),
			Seed:   s.Seed,
			Winner: s.Winner,
		}
	}
	if r.LastRotation != nil {
		snap.LastRotation = r.LastRotation.wire()
	}
	return snap
}

func (r *Room) requireHost(playerID string) error {
	if playerID != r.HostPlayerID {
		return ErrNotHost
	}
	return nil
}

func (r *Room) requireSession(sessionID int) error {
	if r.Session == nil || r.Session.ID != sessionID || r.Session.State == StateWaiting {
		return fmt.Errorf("session %d: %w", sessionID, ErrStaleSession)
	}
	return nil
}

// RequireSession reports ErrStaleSession unless sessionID is the session that is
// currently playing.
func (r *Room) RequireSession(sessionID int) error {
	if err := r.requireSession(sessionID); err != nil {
		return err
	}
	if r.Session.State != StatePlaying {
		return fmt.Errorf("session %d is %s: %w", sessionID, r.Session.State, ErrStaleSession)
	}
	return nil
}

func (r *Room) allReady() bool {
	g, ok := LookupGame(r.SelectedGame)
	if !ok {
		return false
	}
	seats := r.ActiveSeats()
	if len(seats) < g.MinPlayers {
		return false
	}
	for _, p := range seats {
		if !p.Bot && !r.ready[p.ID] {
			return false
		}
	}
	return true
}

// cancelCountdown drops the deadline but keeps the ready set, so a join-only
// cancellation does not force everyone to ready up again.
func (r *Room) cancelCountdown() {
	if !r.CountdownActive() {
		return
	}
	r.countdownDeadline = time.Time{}
	if r.Session != nil && r.Session.State == StateCountdown {
		r.Session.State = StateWaiting
	}
}

func (r *Room) clearReady() {
	clear(r.ready)
}

func (r *Room) index(id string) int {
	return slices.IndexFunc(r.Players, func(p *Player) bool { return p.ID == id })
}

func (r *Room) humans() int {
	n := 0
	for _, p := range r.Players {
		if !p.Bot {
			n++
		}
	}
	return n
}

func (r *Room) earliestHuman() *Player {
	var best *Player
	for _, p := range r.Players {
		if p.Bot {
			continue
		}
		if best == nil || p.joinSeq < best.joinSeq {
			best = p
		}
	}
	return best
}
