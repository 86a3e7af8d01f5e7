package game

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
)

type GameResponse struct {
	Id          uint64          `json:"id"`
	Player1     escrow.Account  `json:"player1"`
	Player2     *escrow.Account `json:"player2,omitempty"`
	Wager       decimal.Decimal `json:"wager"`
	Commit1     string          `json:"commit1"`
	Commit2     *string         `json:"commit2,omitempty"`
	Reveal1     escrow.Move     `json:"reveal1"`
	Reveal2     escrow.Move     `json:"reveal2"`
	State       string          `json:"state"`
	TimeCreated time.Time       `json:"timeCreated"`
	TimeJoined  *time.Time      `json:"timeJoined,omitempty"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	Cancellable bool            `json:"cancellable"`
}

func newGameResponse(g *escrow.Game, cfg escrow.Config, now time.Time) GameResponse {
	r := GameResponse{
		Id:          g.ID,
		Player1:     g.Player1,
		Wager:       g.Wager,
		Commit1:     g.Commit1.Hex(),
		Reveal1:     g.Reveal1,
		Reveal2:     g.Reveal2,
		State:       g.State.String(),
		TimeCreated: g.CreatedAt,
		Cancellable: cfg.Cancellable(g, now),
	}
	if g.Joined() {
		player2, commit2, joined := g.Player2, g.Commit2.Hex(), g.JoinedAt
		r.Player2, r.Commit2, r.TimeJoined = &player2, &commit2, &joined
	}
	if deadline, ok := cfg.Deadline(g); ok {
		r.Deadline = &deadline
	}
	return r
}

type EventsResponse struct {
	GameId    uint64               `json:"gameId"`
	AuditRoot string               `json:"auditRoot"`
	Events    []escrow.EventRecord `json:"events"`
}

type ConfigResponse struct {
	JoinTimeout   int64     `json:"joinTimeout"`
	RevealTimeout int64     `json:"revealTimeout"`
	Now           time.Time `json:"now"`
}

type CountResponse struct {
	Count uint64 `json:"count"`
}
