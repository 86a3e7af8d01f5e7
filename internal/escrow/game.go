package escrow

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Account identifies a caller. The empty Account means "nobody".
type Account string

// NoAccount is the zero Account, used for an unset player2 and for the
// winner of a tie.
const NoAccount Account = ""

// State of a game. The numbering is part of the stored and wire format.
type State uint8

const (
	Open State = iota
	Committed
	Revealed
	Finished
)

var stateNames = [...]string{"Open", "Committed", "Revealed", "Finished"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Game is one wager round. Optional fields use their zero value for "unset":
// Player2 is NoAccount, Commit2 is the zero hash and JoinedAt is the zero
// time until a join happens.
type Game struct {
	ID        uint64
	Player1   Account
	Player2   Account
	Wager     decimal.Decimal
	Commit1   common.Hash
	Commit2   common.Hash
	Reveal1   Move
	Reveal2   Move
	State     State
	CreatedAt time.Time
	JoinedAt  time.Time
}

// Joined reports whether player2 is set.
func (g *Game) Joined() bool {
	return g.Player2 != NoAccount
}

// notBefore clamps t to the latest timestamp already stored on g so the
// times of one game never go backwards.
func (g *Game) notBefore(t time.Time) time.Time {
	for _, at := range []time.Time{g.CreatedAt, g.JoinedAt} {
		if t.Before(at) {
			t = at
		}
	}
	return t
}

// seat returns 1 or 2 for the players and 0 for anybody else.
func (g *Game) seat(a Account) int {
	switch {
	case a == NoAccount:
		return 0
	case a == g.Player1:
		return 1
	case a == g.Player2:
		return 2
	}
	return 0
}

// IsPlayer reports whether a holds one of the two seats.
func (g *Game) IsPlayer(a Account) bool {
	return g.seat(a) != 0
}

// RevealCount counts the reveals stored so far.
func (g *Game) RevealCount() int {
	n := 0
	if g.Reveal1 != None {
		n++
	}
	if g.Reveal2 != None {
		n++
	}
	return n
}

// Pot is the value held for the game while both stakes are in.
func (g *Game) Pot() decimal.Decimal {
	return g.Wager.Add(g.Wager)
}
