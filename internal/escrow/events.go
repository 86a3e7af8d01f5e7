package escrow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventGameCreated   = "GameCreated"
	EventGameJoined    = "GameJoined"
	EventMoveRevealed  = "MoveRevealed"
	EventGameSettled   = "GameSettled"
	EventGameCancelled = "GameCancelled"
)

// Event is emitted by a successful operation. Events of one operation are
// appended to the game's log in the same transaction as the state change and
// handed to the Publisher after commit.
type Event interface {
	EventName() string
	Game() uint64
}

// Payout is a value movement out of escrow.
type Payout struct {
	To     Account         `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type GameCreated struct {
	GameID  uint64          `json:"gameId"`
	Player1 Account         `json:"player1"`
	Wager   decimal.Decimal `json:"wager"`
}

type GameJoined struct {
	GameID  uint64  `json:"gameId"`
	Player2 Account `json:"player2"`
}

type MoveRevealed struct {
	GameID uint64  `json:"gameId"`
	Player Account `json:"player"`
	Move   Move    `json:"move"`
}

// GameSettled reports the result of the second reveal. For a win Winner is
// set and Amount is the whole pot. For a tie Winner is empty, Tie is true and
// Amount is the refund each player received.
type GameSettled struct {
	GameID  uint64          `json:"gameId"`
	Winner  Account         `json:"winner,omitempty"`
	Tie     bool            `json:"tie"`
	Amount  decimal.Decimal `json:"amount"`
	Payouts []Payout        `json:"payouts"`
}

type GameCancelled struct {
	GameID  uint64   `json:"gameId"`
	Caller  Account  `json:"caller"`
	Payouts []Payout `json:"payouts"`
}

func (e GameCreated) EventName() string   { return EventGameCreated }
func (e GameJoined) EventName() string    { return EventGameJoined }
func (e MoveRevealed) EventName() string  { return EventMoveRevealed }
func (e GameSettled) EventName() string   { return EventGameSettled }
func (e GameCancelled) EventName() string { return EventGameCancelled }

func (e GameCreated) Game() uint64   { return e.GameID }
func (e GameJoined) Game() uint64    { return e.GameID }
func (e MoveRevealed) Game() uint64  { return e.GameID }
func (e GameSettled) Game() uint64   { return e.GameID }
func (e GameCancelled) Game() uint64 { return e.GameID }

// EventRecord is an entry of a game's append-only event log.
type EventRecord struct {
	GameID  uint64          `json:"gameId"`
	Seq     uint64          `json:"seq"`
	Name    string          `json:"name"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// NewEventRecord serialises ev for the log.
func NewEventRecord(ev Event, seq uint64, at time.Time) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		GameID:  ev.Game(),
		Seq:     seq,
		Name:    ev.EventName(),
		At:      at,
		Payload: payload,
	}, nil
}

// Publisher receives committed events. Delivery is best effort; a failing
// publisher never undoes an operation.
type Publisher interface {
	Publish(ctx context.Context, events []Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, []Event) {}
