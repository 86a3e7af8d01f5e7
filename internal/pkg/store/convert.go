package store

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/model"
)

var statusByState = map[escrow.State]model.GameStatus{
	escrow.Open:      model.GameOpen,
	escrow.Committed: model.GameCommitted,
	escrow.Revealed:  model.GameRevealed,
	escrow.Finished:  model.GameFinished,
}

var stateByStatus = map[model.GameStatus]escrow.State{
	model.GameOpen:      escrow.Open,
	model.GameCommitted: escrow.Committed,
	model.GameRevealed:  escrow.Revealed,
	model.GameFinished:  escrow.Finished,
}

func toRow(g *escrow.Game) model.Game {
	row := model.Game{
		Id:          g.ID,
		Player1:     string(g.Player1),
		Wager:       g.Wager,
		Commit1:     g.Commit1.Hex(),
		Reveal1:     uint8(g.Reveal1),
		Reveal2:     uint8(g.Reveal2),
		GameStatus:  statusByState[g.State],
		TimeCreated: g.CreatedAt,
	}
	if g.Joined() {
		player2, commit2, joined := string(g.Player2), g.Commit2.Hex(), g.JoinedAt
		row.Player2 = &player2
		row.Commit2 = &commit2
		row.TimeJoined = &joined
	}
	return row
}

func fromRow(row *model.Game) escrow.Game {
	g := escrow.Game{
		ID:        row.Id,
		Player1:   escrow.Account(row.Player1),
		Wager:     row.Wager,
		Commit1:   common.HexToHash(row.Commit1),
		Reveal1:   escrow.Move(row.Reveal1),
		Reveal2:   escrow.Move(row.Reveal2),
		State:     stateByStatus[row.GameStatus],
		CreatedAt: row.TimeCreated.UTC(),
	}
	if row.Player2 != nil {
		g.Player2 = escrow.Account(*row.Player2)
	}
	if row.Commit2 != nil {
		g.Commit2 = common.HexToHash(*row.Commit2)
	}
	if row.TimeJoined != nil {
		g.JoinedAt = row.TimeJoined.UTC()
	}
	return g
}

func fromEventRow(row *model.GameEvent) escrow.EventRecord {
	return escrow.EventRecord{
		GameID:  row.GameId,
		Seq:     row.Seq,
		Name:    row.Name,
		At:      row.At.UTC(),
		Payload: json.RawMessage(row.Payload),
	}
}
