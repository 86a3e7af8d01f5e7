package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/model"
)

type tx struct {
	db       *gorm.DB
	finished []escrow.Game
}

func (t *tx) Game(_ context.Context, id uint64) (*escrow.Game, error) {
	return loadGame(t.db, id, true)
}

func (t *tx) InsertGame(_ context.Context, g *escrow.Game) error {
	var seq model.Sequence
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", gameSequence).
		Take(&seq).Error
	if err != nil {
		return errors.Wrap(err, "lock game sequence")
	}

	g.ID = seq.NextId
	res := t.db.Model(&model.Sequence{}).
		Where("name = ?", gameSequence).
		Update("next_id", seq.NextId+1)
	if res.Error != nil {
		return errors.Wrap(res.Error, "advance game sequence")
	}

	row := toRow(g)
	if err := t.db.Create(&row).Error; err != nil {
		return errors.Wrapf(err, "insert game %d", g.ID)
	}
	return nil
}

func (t *tx) UpdateGame(_ context.Context, g *escrow.Game) error {
	row := toRow(g)
	res := t.db.Model(&model.Game{}).
		Where("id = ?", g.ID).
		Updates(map[string]any{
			"player2":     row.Player2,
			"commit2":     row.Commit2,
			"reveal1":     row.Reveal1,
			"reveal2":     row.Reveal2,
			"game_status": row.GameStatus,
			"time_joined": row.TimeJoined,
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update game %d", g.ID)
	}
	if res.RowsAffected == 0 {
		return escrow.NewError(escrow.KindNoSuchGame, g.ID, "")
	}
	if g.State == escrow.Finished {
		t.finished = append(t.finished, *g)
	}
	return nil
}

func (t *tx) AppendEvent(_ context.Context, ev escrow.Event, at time.Time) error {
	var seq int64
	err := t.db.Model(&model.GameEvent{}).Where("game_id = ?", ev.Game()).Count(&seq).Error
	if err != nil {
		return errors.Wrapf(err, "count events of game %d", ev.Game())
	}
	rec, err := escrow.NewEventRecord(ev, uint64(seq), at)
	if err != nil {
		return errors.Wrapf(err, "encode %s", ev.EventName())
	}
	row := model.GameEvent{
		GameId:  rec.GameID,
		Seq:     rec.Seq,
		Name:    rec.Name,
		Payload: string(rec.Payload),
		At:      rec.At,
	}
	if err := t.db.Create(&row).Error; err != nil {
		return errors.Wrapf(err, "append %s to game %d", rec.Name, rec.GameID)
	}
	return nil
}

func (t *tx) Escrow(_ context.Context, gameID uint64, from escrow.Account, amount decimal.Decimal) error {
	return t.entry(gameID, from, model.LedgerEscrow, amount)
}

func (t *tx) Release(_ context.Context, gameID uint64, to escrow.Account, amount decimal.Decimal) error {
	held, err := balance(t.db, gameID)
	if err != nil {
		return err
	}
	if amount.GreaterThan(held) {
		return escrow.ErrInsufficientEscrow
	}
	return t.entry(gameID, to, model.LedgerRelease, amount)
}

func (t *tx) entry(gameID uint64, account escrow.Account, kind model.LedgerEntryKind, amount decimal.Decimal) error {
	e := model.LedgerEntry{
		GameId:  gameID,
		Account: string(account),
		Kind:    kind,
		Amount:  amount,
	}
	if err := t.db.Create(&e).Error; err != nil {
		return errors.Wrapf(err, "record %s of game %d", kind, gameID)
	}
	return nil
}
