package types

// RoomSnapshot:
//   version: number (increments on every registry change)
//   room_id: string
//   host_player_id: string
//   selected_game: string
//   players: PlayerView[] (join order, first seats first)
//   ready: string[]
//   countdown_ms: number (0 when no countdown is running)
//   session: SessionView | null
//   last_rotation: Rotation | null

type RoomSnapshot struct {
	Version      int          `json:"version"`
	RoomID       string       `json:"room_id"`
	HostPlayerID string       `json:"host_player_id"`
	SelectedGame string       `json:"selected_game,omitempty"`
	Players      []PlayerView `json:"players"`
	Ready        []string     `json:"ready"`
	CountdownMs  int64        `json:"countdown_ms,omitempty"`
	Session      *SessionView `json:"session,omitempty"`
	LastRotation *Rotation    `json:"last_rotation,omitempty"`
}

type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Emoji string `json:"emoji,omitempty"`
	Bot   bool   `json:"bot,omitempty"`
	Seat  int    `json:"seat"` // -1 when queued
	Score int    `json:"score"`
}

type SessionView struct {
	ID     int    `json:"id"`
	Game   string `json:"game"`
	State  string `json:"state"`
	Seed   int64  `json:"seed"`
	Winner string `json:"winner,omitempty"`
}

// Host returns the view of the current host, if present.
func (s RoomSnapshot) Host() (PlayerView, bool) {
	return s.Player(s.HostPlayerID)
}

func (s RoomSnapshot) Player(id string) (PlayerView, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerView{}, false
}
