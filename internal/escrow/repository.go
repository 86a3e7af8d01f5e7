package escrow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is the value custody capability. Both calls are all-or-nothing and
// take effect only if the surrounding transaction commits.
type Ledger interface {
	// Escrow takes amount from the caller into the game's escrow.
	Escrow(ctx context.Context, gameID uint64, from Account, amount decimal.Decimal) error
	// Release pays amount out of the game's escrow. It fails with
	// ErrInsufficientEscrow rather than overdraw the game.
	Release(ctx context.Context, gameID uint64, to Account, amount decimal.Decimal) error
}

// Tx is the view of a Repository inside one atomic operation.
type Tx interface {
	Ledger

	// Game loads a game for update, serialising concurrent writers of the
	// same id. It returns an *Error of KindNoSuchGame for unknown ids.
	Game(ctx context.Context, id uint64) (*Game, error)
	// InsertGame stores a new game and assigns it the next sequential id.
	InsertGame(ctx context.Context, g *Game) error
	UpdateGame(ctx context.Context, g *Game) error
	AppendEvent(ctx context.Context, ev Event, at time.Time) error
}

// Filter narrows a listing.
type Filter string

const (
	// FilterAll lists every game that is not finished.
	FilterAll      Filter = "all"
	FilterOpen     Filter = "open"
	FilterMine     Filter = "mine"
	FilterFinished Filter = "finished"
)

// ParseFilter maps "" to FilterAll and rejects unknown names.
func ParseFilter(s string) (Filter, bool) {
	switch f := Filter(s); f {
	case "":
		return FilterAll, true
	case FilterAll, FilterOpen, FilterMine, FilterFinished:
		return f, true
	}
	return "", false
}

// Query selects a page of games ordered by id.
type Query struct {
	Filter Filter
	Player Account
	Offset int
	Limit  int
}

// Match reports whether g belongs to the listing.
func (q Query) Match(g *Game) bool {
	switch q.Filter {
	case FilterOpen:
		return g.State == Open
	case FilterMine:
		return g.State != Finished && g.IsPlayer(q.Player)
	case FilterFinished:
		return g.State == Finished
	default:
		return g.State != Finished
	}
}

// Repository owns game records, the ledger and the event log.
type Repository interface {
	// Transaction runs fn atomically: either every write made through tx is
	// kept or none is.
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	Game(ctx context.Context, id uint64) (*Game, error)
	GameCount(ctx context.Context) (uint64, error)
	Games(ctx context.Context, q Query) ([]Game, int64, error)
	Events(ctx context.Context, id uint64) ([]EventRecord, error)
	Escrowed(ctx context.Context, id uint64) (decimal.Decimal, error)
}

// Clock is the agreed source of "now" for timeout checks. Implementations
// must be non-decreasing and shared by every process serving the same games.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}
