package room

type Mode string

const (
	ModeTicked Mode = "ticked"
	ModeTurn   Mode = "turn"
	ModeParty  Mode = "party"
)

// Game describes how a mini-game occupies the roster. Seats == 0 means every
// player in the room takes part.
type Game struct {
	Tag        string
	Mode       Mode
	Seats      int
	MinPlayers int
}

const (
	GamePong       = "pong"
	GameMemory     = "memory"
	GameMicrogames = "microgames"
)

const MaxPlayers = 4

var Catalog = map[string]Game{
	GamePong:       {Tag: GamePong, Mode: ModeTicked, Seats: 2, MinPlayers: 2},
	GameMemory:     {Tag: GameMemory, Mode: ModeTurn, MinPlayers: 2},
	GameMicrogames: {Tag: GameMicrogames, Mode: ModeParty, MinPlayers: 2},
}

func LookupGame(tag string) (Game, bool) {
	g, ok := Catalog[tag]
	return g, ok
}

// SeatGame reports whether the game has a fixed number of seats smaller than the room.
func (g Game) SeatGame() bool { return g.Seats > 0 }
