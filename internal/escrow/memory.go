package escrow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind tells deposits from payouts in the ledger.
type EntryKind string

const (
	EntryEscrow  EntryKind = "ESCROW"
	EntryRelease EntryKind = "RELEASE"
)

// LedgerEntry is one value movement of a game.
type LedgerEntry struct {
	GameID  uint64
	Account Account
	Kind    EntryKind
	Amount  decimal.Decimal
}

// Balance sums entries for gameID: deposits minus payouts.
func Balance(entries []LedgerEntry, gameID uint64) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.GameID != gameID {
			continue
		}
		if e.Kind == EntryEscrow {
			total = total.Add(e.Amount)
		} else {
			total = total.Sub(e.Amount)
		}
	}
	return total
}

// MemoryRepository keeps everything in process. Transactions are serialised
// and staged, so a failed operation leaves no trace.
type MemoryRepository struct {
	mu      sync.Mutex
	games   []Game
	entries []LedgerEntry
	events  map[uint64][]EventRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[uint64][]EventRecord)}
}

type memoryTx struct {
	r        *MemoryRepository
	inserted []Game
	updated  map[uint64]Game
	entries  []LedgerEntry
	events   []EventRecord
}

func (r *MemoryRepository) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{r: r, updated: make(map[uint64]Game)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.games = append(r.games, tx.inserted...)
	for id, g := range tx.updated {
		r.games[id] = g
	}
	r.entries = append(r.entries, tx.entries...)
	for _, rec := range tx.events {
		r.events[rec.GameID] = append(r.events[rec.GameID], rec)
	}
	return nil
}

func (tx *memoryTx) lookup(id uint64) (Game, bool) {
	if g, ok := tx.updated[id]; ok {
		return g, true
	}
	n := uint64(len(tx.r.games))
	switch {
	case id < n:
		return tx.r.games[id], true
	case id-n < uint64(len(tx.inserted)):
		return tx.inserted[id-n], true
	}
	return Game{}, false
}

func (tx *memoryTx) Game(_ context.Context, id uint64) (*Game, error) {
	g, ok := tx.lookup(id)
	if !ok {
		return nil, NewError(KindNoSuchGame, id, "")
	}
	return &g, nil
}

func (tx *memoryTx) InsertGame(_ context.Context, g *Game) error {
	g.ID = uint64(len(tx.r.games) + len(tx.inserted))
	tx.inserted = append(tx.inserted, *g)
	return nil
}

func (tx *memoryTx) UpdateGame(_ context.Context, g *Game) error {
	n := uint64(len(tx.r.games))
	if g.ID >= n {
		if g.ID-n >= uint64(len(tx.inserted)) {
			return NewError(KindNoSuchGame, g.ID, "")
		}
		tx.inserted[g.ID-n] = *g
		return nil
	}
	tx.updated[g.ID] = *g
	return nil
}

func (tx *memoryTx) AppendEvent(_ context.Context, ev Event, at time.Time) error {
	seq := uint64(len(tx.r.events[ev.Game()]))
	for _, rec := range tx.events {
		if rec.GameID == ev.Game() {
			seq++
		}
	}
	rec, err := NewEventRecord(ev, seq, at)
	if err != nil {
		return err
	}
	tx.events = append(tx.events, rec)
	return nil
}

func (tx *memoryTx) Escrow(_ context.Context, gameID uint64, from Account, amount decimal.Decimal) error {
	tx.entries = append(tx.entries, LedgerEntry{GameID: gameID, Account: from, Kind: EntryEscrow, Amount: amount})
	return nil
}

func (tx *memoryTx) Release(_ context.Context, gameID uint64, to Account, amount decimal.Decimal) error {
	held := Balance(tx.r.entries, gameID).Add(Balance(tx.entries, gameID))
	if amount.GreaterThan(held) {
		return ErrInsufficientEscrow
	}
	tx.entries = append(tx.entries, LedgerEntry{GameID: gameID, Account: to, Kind: EntryRelease, Amount: amount})
	return nil
}

func (r *MemoryRepository) Game(_ context.Context, id uint64) (*Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id >= uint64(len(r.games)) {
		return nil, NewError(KindNoSuchGame, id, "")
	}
	g := r.games[id]
	return &g, nil
}

func (r *MemoryRepository) GameCount(context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.games)), nil
}

func (r *MemoryRepository) Games(_ context.Context, q Query) ([]Game, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Game
	for i := range r.games {
		if q.Match(&r.games[i]) {
			matched = append(matched, r.games[i])
		}
	}
	total := int64(len(matched))
	if q.Offset >= len(matched) {
		return []Game{}, total, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func (r *MemoryRepository) Events(_ context.Context, id uint64) ([]EventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := append([]EventRecord(nil), r.events[id]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *MemoryRepository) Escrowed(_ context.Context, id uint64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Balance(r.entries, id), nil
}

// Entries returns a copy of the ledger.
func (r *MemoryRepository) Entries() []LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LedgerEntry(nil), r.entries...)
}
