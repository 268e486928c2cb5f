package lobby

import (
	"errors"
	"time"

	"github.com/mozzwald/fujinet-midimaze-connect/internal/transport"
)

// ErrGameFull is the capacity error Join can return.
var (
	ErrGameFull = errors.New("full")
)

// Membership is one player's seat in a Game. Deliberately holds only
// the client id, not a pointer to the Client, so that the live Client
// is always looked up fresh through ClientDirectory — severing the
// back-reference cycle between client and game.
type Membership struct {
	ClientID   string
	PlayerName string
	Token      string
}

// Game is one entry in the GameDirectory.
type Game struct {
	InUse      bool
	Active     bool
	Ended      bool
	ID         string
	Name       string
	MaxPlayers int
	Transport  transport.Transport
	CreatedAt  time.Time
	Members    []Membership
	Port       int
}

func (g *Game) PlayerCount() int { return len(g.Members) }

type gameSlot struct {
	inUse bool
	game  Game
}

// GameDirectory is the fixed-capacity (max_games) game
// table. Like ClientDirectory it performs no locking of its own.
type GameDirectory struct {
	slots []gameSlot
}

// NewGameDirectory allocates a directory with capacity slots.
func NewGameDirectory(capacity int) *GameDirectory {
	return &GameDirectory{slots: make([]gameSlot, capacity)}
}

// Create allocates a pending game with the creator as its first
// member. Returns ErrMaxGames equivalent via the bool return when no
// slot is free.
func (d *GameDirectory) Create(name string, maxPlayers int, tr transport.Transport, creatorID, creatorName string, genID, genToken func() string) (*Game, bool) {
	for i := range d.slots {
		if d.slots[i].inUse {
			continue
		}
		d.slots[i] = gameSlot{
			inUse: true,
			game: Game{
				InUse:      true,
				ID:         genID(),
				Name:       name,
				MaxPlayers: maxPlayers,
				Transport:  tr,
				CreatedAt:  time.Now(),
				Members: []Membership{{
					ClientID:   creatorID,
					PlayerName: creatorName,
					Token:      genToken(),
				}},
			},
		}
		return &d.slots[i].game, true
	}
	return nil, false
}

// Count reports how many slots are currently in use, for the
// max_games capacity check.
func (d *GameDirectory) Count() int {
	n := 0
	for i := range d.slots {
		if d.slots[i].inUse {
			n++
		}
	}
	return n
}

// Find returns the game for id, or (nil, false). Ended games are
// never returned.
func (d *GameDirectory) Find(id string) (*Game, bool) {
	for i := range d.slots {
		if d.slots[i].inUse && d.slots[i].game.ID == id {
			return &d.slots[i].game, true
		}
	}
	return nil, false
}

// Join appends a membership entry to game. Returns ErrGameFull if the
// game is already at capacity.
func (d *GameDirectory) Join(game *Game, clientID, clientName string, genToken func() string) error {
	if len(game.Members) >= game.MaxPlayers {
		return ErrGameFull
	}
	game.Members = append(game.Members, Membership{
		ClientID:   clientID,
		PlayerName: clientName,
		Token:      genToken(),
	})
	return nil
}

// Leave removes clientID from game's membership, if present. A no-op
// for a client that is not a member.
func (d *GameDirectory) Leave(game *Game, clientID string) {
	for i, m := range game.Members {
		if m.ClientID == clientID {
			game.Members = append(game.Members[:i], game.Members[i+1:]...)
			return
		}
	}
}

// RemoveClientEverywhereExcept removes clientID's membership from
// every pending game other than except.
func (d *GameDirectory) RemoveClientEverywhereExcept(clientID string, except *Game) {
	for i := range d.slots {
		if !d.slots[i].inUse {
			continue
		}
		g := &d.slots[i].game
		if g == except || g.Active || g.Ended {
			continue
		}
		d.Leave(g, clientID)
	}
}

// RemoveByID frees the slot holding id, if any: a game that has ended,
// or emptied out before ever activating, no longer occupies a
// max_games slot.
func (d *GameDirectory) RemoveByID(id string) {
	for i := range d.slots {
		if d.slots[i].inUse && d.slots[i].game.ID == id {
			d.slots[i] = gameSlot{}
			return
		}
	}
}

// Expire marks pending games older than joinTimeout as not-in-use.
// Returns the expired game ids, for logging.
func (d *GameDirectory) Expire(now time.Time, joinTimeout time.Duration) []string {
	var expired []string
	for i := range d.slots {
		if !d.slots[i].inUse {
			continue
		}
		g := &d.slots[i].game
		if g.Active || g.Ended {
			continue
		}
		if now.Sub(g.CreatedAt) > joinTimeout {
			expired = append(expired, g.ID)
			d.slots[i] = gameSlot{}
		}
	}
	return expired
}

// List returns a snapshot of every non-ended game, for /list.
func (d *GameDirectory) List() []*Game {
	var out []*Game
	for i := range d.slots {
		if d.slots[i].inUse {
			out = append(out, &d.slots[i].game)
		}
	}
	return out
}
