// Package store keeps escrow games, the ledger and the event log in a SQL
// database through gorm.
package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/model"
)

const (
	gameSequence     = "escrow_game"
	defaultCacheSize = 1024
)

// Repository implements escrow.Repository. Finished games never change, so
// they are served from an LRU cache once seen.
type Repository struct {
	db       *gorm.DB
	finished *lru.Cache[uint64, escrow.Game]
}

func New(db *gorm.DB, cacheSize int) (*Repository, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[uint64, escrow.Game](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create game cache")
	}
	return &Repository{db: db, finished: cache}, nil
}

// Migrate creates the tables and seeds the id sequence.
func (r *Repository) Migrate() error {
	err := r.db.AutoMigrate(&model.Game{}, &model.LedgerEntry{}, &model.GameEvent{}, &model.Sequence{})
	if err != nil {
		return errors.Wrap(err, "migrate escrow tables")
	}
	seq := model.Sequence{Name: gameSequence}
	if err := r.db.Where(&model.Sequence{Name: gameSequence}).FirstOrCreate(&seq).Error; err != nil {
		return errors.Wrap(err, "seed game sequence")
	}
	return nil
}

func (r *Repository) Transaction(ctx context.Context, fn func(tx escrow.Tx) error) error {
	t := &tx{}
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		t.db = db
		return fn(t)
	})
	if err != nil {
		return err
	}
	for _, g := range t.finished {
		r.finished.Add(g.ID, g)
	}
	return nil
}

func (r *Repository) Game(ctx context.Context, id uint64) (*escrow.Game, error) {
	if g, ok := r.finished.Get(id); ok {
		return &g, nil
	}
	g, err := loadGame(r.db.WithContext(ctx), id, false)
	if err != nil {
		return nil, err
	}
	if g.State == escrow.Finished {
		r.finished.Add(id, *g)
	}
	return g, nil
}

func (r *Repository) GameCount(ctx context.Context) (uint64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Game{}).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "count games")
	}
	return uint64(count), nil
}

func (r *Repository) Games(ctx context.Context, q escrow.Query) ([]escrow.Game, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Game{})
	switch q.Filter {
	case escrow.FilterOpen:
		query = query.Where("game_status = ?", model.GameOpen)
	case escrow.FilterMine:
		query = query.Where("game_status <> ?", model.GameFinished).
			Where("player1 = ? OR player2 = ?", string(q.Player), string(q.Player))
	case escrow.FilterFinished:
		query = query.Where("game_status = ?", model.GameFinished)
	default:
		query = query.Where("game_status <> ?", model.GameFinished)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count games")
	}

	var rows []model.Game
	query = query.Order("id").Offset(q.Offset)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list games")
	}

	games := make([]escrow.Game, 0, len(rows))
	for i := range rows {
		games = append(games, fromRow(&rows[i]))
	}
	return games, total, nil
}

func (r *Repository) Events(ctx context.Context, id uint64) ([]escrow.EventRecord, error) {
	var rows []model.GameEvent
	err := r.db.WithContext(ctx).Where("game_id = ?", id).Order("seq").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "load events of game %d", id)
	}
	records := make([]escrow.EventRecord, 0, len(rows))
	for i := range rows {
		records = append(records, fromEventRow(&rows[i]))
	}
	return records, nil
}

func (r *Repository) Escrowed(ctx context.Context, id uint64) (decimal.Decimal, error) {
	return balance(r.db.WithContext(ctx), id)
}

func loadGame(db *gorm.DB, id uint64, forUpdate bool) (*escrow.Game, error) {
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row model.Game
	err := db.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, escrow.NewError(escrow.KindNoSuchGame, id, "")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load game %d", id)
	}
	g := fromRow(&row)
	return &g, nil
}

// balance sums the ledger in Go; decimal arithmetic in SQL differs between
// drivers.
func balance(db *gorm.DB, gameID uint64) (decimal.Decimal, error) {
	var entries []model.LedgerEntry
	if err := db.Where("game_id = ?", gameID).Find(&entries).Error; err != nil {
		return decimal.Zero, errors.Wrapf(err, "load ledger of game %d", gameID)
	}
	total := decimal.Zero
	for _, e := range entries {
		if e.Kind == model.LedgerEscrow {
			total = total.Add(e.Amount)
		} else {
			total = total.Sub(e.Amount)
		}
	}
	return total, nil
}
