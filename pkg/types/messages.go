package types

import "encoding/json"

// Client -> Server (room scoped)
//   join:          sent implicitly by connecting to /ws?room=&player=
//   leave:         {}
//   select-game:   { game: "pong" | "memory" | "microgames" }
//   set-ready:     { ready: bool }
//   rotate-players:{ winner: string, loser: string }
//   restart:       {}
//   add-bot:       { name: string }
//   remove-bot:    { player_id: string }
//
// Host -> Server -> everyone else
//   game-start:    GameFrame
//   game-state:    GameFrame (throttled, except scores and terminal state)
//   room-error:    { code, message, target } (routed to target only)
//
// Seat holder -> Server -> host
//   paddle-move:   { seat: int, position: number }
//
// Any member -> Server -> everyone else
//   card-flip:     { player_id: string, position: int }
//
// Any member -> Server -> host
//   round-result:  { player_id: string, round: int, points: int }
//
// Server -> Client
//   room-snapshot:   RoomSnapshot (full, replaces local roster view)
//   countdown-tick:  { remaining_ms: number }
//   players-rotated: { winner, loser }
//   room-error:      { code, message }
//   room-closed:     { reason }

const (
	EvtJoin           = "join"
	EvtLeave          = "leave"
	EvtSelectGame     = "select-game"
	EvtSetReady       = "set-ready"
	EvtRoomSnapshot   = "room-snapshot"
	EvtCountdownTick  = "countdown-tick"
	EvtRotatePlayers  = "rotate-players"
	EvtRestart        = "restart"
	EvtAddBot         = "add-bot"
	EvtRemoveBot      = "remove-bot"
	EvtRoomError      = "room-error"
	EvtRoomClosed     = "room-closed"
	EvtGameStart      = "game-start"
	EvtGameState      = "game-state"
	EvtPaddleMove     = "paddle-move"
	EvtCardFlip       = "card-flip"
	EvtRoundResult    = "round-result"
	EvtPlayersRotated = "players-rotated"
)

// Envelope is the single frame shape on the wire. Data is decoded lazily so the
// server can relay game payloads without knowing their shape.
type Envelope struct {
	Type    string          `json:"type"`
	Session int             `json:"session,omitempty"`
	From    string          `json:"from,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(typ string, session int, v any) (Envelope, error) {
	env := Envelope{Type: typ, Session: session}
	if v == nil {
		return env, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = data
	return env, nil
}

// Decode unmarshals the envelope payload into v. An empty payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

type SelectGame struct {
	Game string `json:"game"`
}

type SetReady struct {
	Ready bool `json:"ready"`
}

type Rotation struct {
	Winner string `json:"winner"`
	Loser  string `json:"loser"`
}

type AddBot struct {
	Name string `json:"name,omitempty"`
}

type RemoveBot struct {
	PlayerID string `json:"player_id"`
}

type CountdownTick struct {
	RemainingMs int64 `json:"remaining_ms"`
}

type RoomError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

type RoomClosed struct {
	Reason string `json:"reason"`
}

type PaddleMove struct {
	Seat     int     `json:"seat"`
	Position float64 `json:"position"`
}

type CardFlip struct {
	PlayerID string `json:"player_id"`
	Position int    `json:"position"`
}

// RoundResult is one player's score for a microgame round.
type RoundResult struct {
	PlayerID string `json:"player_id"`
	Round    int    `json:"round"`
	Points   int    `json:"points"`
}

// GameFrame is the header every game-start/game-state payload carries. The server
// only reads the header; Payload is game specific.
type GameFrame struct {
	Seq     uint64          `json:"seq"`
	State   string          `json:"state"`
	Winner  string          `json:"winner,omitempty"`
	Scores  map[string]int  `json:"scores,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
