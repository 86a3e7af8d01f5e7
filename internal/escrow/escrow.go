package escrow

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Escrow is the commit-reveal state machine. It holds no game state of its
// own; records, value and the event log live in the Repository. Operations on
// one game id are serialised, operations on different ids run concurrently.
type Escrow struct {
	repo  Repository
	clock Clock
	pub   Publisher
	cfg   Config

	locks *keyLocks
	// seq serialises creates so ids are handed out in commit order.
	seq sync.Mutex
}

type Option func(*Escrow)

// WithPublisher sets the receiver of committed events.
func WithPublisher(p Publisher) Option {
	return func(e *Escrow) {
		if p != nil {
			e.pub = p
		}
	}
}

func New(repo Repository, clock Clock, cfg Config, opts ...Option) (*Escrow, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Escrow{
		repo:  repo,
		clock: clock,
		pub:   nopPublisher{},
		cfg:   cfg,
		locks: newKeyLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Escrow) Config() Config {
	return e.cfg
}

// op is the state of one operation while its transaction is open.
type op struct {
	tx     Tx
	now    time.Time
	events []Event
}

func (o *op) emit(ev Event) {
	o.events = append(o.events, ev)
}

func (o *op) release(ctx context.Context, g *Game, to Account, amount decimal.Decimal) (Payout, error) {
	if err := o.tx.Release(ctx, g.ID, to, amount); err != nil {
		return Payout{}, err
	}
	return Payout{To: to, Amount: amount}, nil
}

// run executes fn in a transaction at now and appends the collected events
// to the log. The committed events are returned for publishing.
func (e *Escrow) run(ctx context.Context, now time.Time, fn func(ctx context.Context, o *op) error) ([]Event, error) {
	var events []Event
	err := e.repo.Transaction(ctx, func(tx Tx) error {
		o := &op{tx: tx, now: now}
		if err := fn(ctx, o); err != nil {
			return err
		}
		for _, ev := range o.events {
			if err := tx.AppendEvent(ctx, ev, o.now); err != nil {
				return err
			}
		}
		events = o.events
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// mutate reads the agreed clock under the lock of game id, then loads the
// game in a transaction and lets fn change it. The game is written back only
// if fn succeeds. The clock is read before the transaction opens so a clock
// backed by the same database never waits for a second connection.
func (e *Escrow) mutate(ctx context.Context, id uint64, fn func(ctx context.Context, o *op, g *Game) error) ([]Event, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	now, err := e.clock.Now(ctx)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, now, func(ctx context.Context, o *op) error {
		g, err := o.tx.Game(ctx, id)
		if err != nil {
			return err
		}
		o.now = g.notBefore(o.now)
		if err := fn(ctx, o, g); err != nil {
			return err
		}
		return o.tx.UpdateGame(ctx, g)
	})
}

// publish hands committed events to the publisher. Callers release the game
// lock first.
func (e *Escrow) publish(ctx context.Context, events []Event) {
	if len(events) > 0 {
		e.pub.Publish(ctx, events)
	}
}

// CreateGame opens a new game with the caller as player1 and escrows stake.
func (e *Escrow) CreateGame(ctx context.Context, caller Account, commitment common.Hash, stake decimal.Decimal) (uint64, error) {
	if caller == NoAccount {
		return 0, e.rejectCreate(ctx, KindNotAuthorized, "anonymous caller")
	}
	if !stake.IsPositive() {
		return 0, e.rejectCreate(ctx, KindWagerMismatch, "stake must be positive, got %s", stake)
	}

	id, events, err := e.insert(ctx, caller, commitment, stake)
	if err != nil {
		return 0, err
	}
	e.publish(ctx, events)

	log.Info().
		Uint64("gameId", id).
		Str("player1", string(caller)).
		Str("wager", stake.String()).
		Msg("Game created")
	return id, nil
}

func (e *Escrow) insert(ctx context.Context, caller Account, commitment common.Hash, stake decimal.Decimal) (uint64, []Event, error) {
	e.seq.Lock()
	defer e.seq.Unlock()

	now, err := e.clock.Now(ctx)
	if err != nil {
		return 0, nil, err
	}
	var id uint64
	events, err := e.run(ctx, now, func(ctx context.Context, o *op) error {
		g := &Game{
			Player1:   caller,
			Wager:     stake,
			Commit1:   commitment,
			State:     Open,
			CreatedAt: o.now,
		}
		if err := o.tx.InsertGame(ctx, g); err != nil {
			return err
		}
		if err := o.tx.Escrow(ctx, g.ID, caller, stake); err != nil {
			return err
		}
		id = g.ID
		o.emit(GameCreated{GameID: g.ID, Player1: caller, Wager: stake})
		return nil
	})
	return id, events, err
}

// rejectCreate reports a create failure against the id the game would have
// received.
func (e *Escrow) rejectCreate(ctx context.Context, kind Kind, format string, args ...any) error {
	next, _ := e.repo.GameCount(ctx)
	return NewError(kind, next, format, args...)
}

// JoinGame takes the second seat of an Open game.
func (e *Escrow) JoinGame(ctx context.Context, caller Account, id uint64, commitment common.Hash, stake decimal.Decimal) error {
	events, err := e.mutate(ctx, id, func(ctx context.Context, o *op, g *Game) error {
		if g.State != Open {
			return NewError(KindInvalidState, id, "cannot join a %s game", g.State)
		}
		if caller == NoAccount || caller == g.Player1 {
			return NewError(KindNotAuthorized, id, "creator cannot join own game")
		}
		if !stake.Equal(g.Wager) {
			return NewError(KindWagerMismatch, id, "stake %s, wager %s", stake, g.Wager)
		}
		if err := o.tx.Escrow(ctx, id, caller, stake); err != nil {
			return err
		}
		g.Player2 = caller
		g.Commit2 = commitment
		g.JoinedAt = o.now
		g.State = Committed
		o.emit(GameJoined{GameID: id, Player2: caller})
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(ctx, events)

	log.Info().Uint64("gameId", id).Str("player2", string(caller)).Msg("Game joined")
	return nil
}

// Reveal opens the caller's commitment. The second successful reveal settles
// the game in the same step.
func (e *Escrow) Reveal(ctx context.Context, caller Account, id uint64, move Move, salt string) error {
	var settled bool
	events, err := e.mutate(ctx, id, func(ctx context.Context, o *op, g *Game) error {
		if g.State != Committed && g.State != Revealed {
			return NewError(KindInvalidState, id, "cannot reveal in a %s game", g.State)
		}
		var reveal *Move
		var commitment common.Hash
		switch g.seat(caller) {
		case 1:
			reveal, commitment = &g.Reveal1, g.Commit1
		case 2:
			reveal, commitment = &g.Reveal2, g.Commit2
		default:
			return NewError(KindNotInGame, id, "")
		}
		if *reveal != None {
			return NewError(KindAlreadyRevealed, id, "")
		}
		if !move.Valid() {
			return NewError(KindInvalidMove, id, "move %d", uint8(move))
		}
		if !Verify(commitment, move, salt) {
			return NewError(KindCommitmentMismatch, id, "")
		}

		*reveal = move
		o.emit(MoveRevealed{GameID: id, Player: caller, Move: move})

		if g.RevealCount() < 2 {
			g.State = Revealed
			return nil
		}
		settled = true
		return e.settle(ctx, o, g)
	})
	if err != nil {
		return err
	}
	e.publish(ctx, events)

	log.Info().
		Uint64("gameId", id).
		Str("player", string(caller)).
		Bool("settled", settled).
		Msg("Move revealed")
	return nil
}

func (e *Escrow) settle(ctx context.Context, o *op, g *Game) error {
	ev := GameSettled{GameID: g.ID}
	winner := NoAccount
	switch Decide(g.Reveal1, g.Reveal2) {
	case Player1Wins:
		winner = g.Player1
	case Player2Wins:
		winner = g.Player2
	}

	if winner != NoAccount {
		p, err := o.release(ctx, g, winner, g.Pot())
		if err != nil {
			return err
		}
		ev.Winner, ev.Amount, ev.Payouts = winner, p.Amount, []Payout{p}
	} else {
		for _, player := range []Account{g.Player1, g.Player2} {
			p, err := o.release(ctx, g, player, g.Wager)
			if err != nil {
				return err
			}
			ev.Payouts = append(ev.Payouts, p)
		}
		ev.Tie, ev.Amount = true, g.Wager
	}
	g.State = Finished
	o.emit(ev)
	return nil
}

// CancelGame resolves a game whose deadline passed. An Open game past the
// join timeout refunds player1. A joined game past the reveal timeout refunds
// both players if nobody revealed; if exactly one player revealed, that player
// takes the pot by forfeit.
func (e *Escrow) CancelGame(ctx context.Context, caller Account, id uint64) error {
	events, err := e.mutate(ctx, id, func(ctx context.Context, o *op, g *Game) error {
		ev := GameCancelled{GameID: id, Caller: caller}
		switch g.State {
		case Open:
			if caller == NoAccount || caller != g.Player1 {
				return NewError(KindNotAuthorized, id, "only player1 can cancel an open game")
			}
			if !e.cfg.Cancellable(g, o.now) {
				return e.notElapsed(g, o.now)
			}
			p, err := o.release(ctx, g, g.Player1, g.Wager)
			if err != nil {
				return err
			}
			ev.Payouts = []Payout{p}
		case Committed, Revealed:
			if !g.IsPlayer(caller) {
				return NewError(KindNotInGame, id, "")
			}
			if !e.cfg.Cancellable(g, o.now) {
				return e.notElapsed(g, o.now)
			}
			payouts, err := e.resolveTimeout(ctx, o, g)
			if err != nil {
				return err
			}
			ev.Payouts = payouts
		default:
			return NewError(KindInvalidState, id, "cannot cancel a %s game", g.State)
		}
		g.State = Finished
		o.emit(ev)
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(ctx, events)

	log.Info().Uint64("gameId", id).Str("caller", string(caller)).Msg("Game cancelled")
	return nil
}

func (e *Escrow) resolveTimeout(ctx context.Context, o *op, g *Game) ([]Payout, error) {
	var to []Account
	var amount decimal.Decimal
	switch {
	case g.Reveal1 != None && g.Reveal2 == None:
		to, amount = []Account{g.Player1}, g.Pot()
	case g.Reveal2 != None && g.Reveal1 == None:
		to, amount = []Account{g.Player2}, g.Pot()
	default:
		// nobody revealed; both revealed cannot happen since the second
		// reveal settles synchronously
		to, amount = []Account{g.Player1, g.Player2}, g.Wager
	}
	payouts := make([]Payout, 0, len(to))
	for _, account := range to {
		p, err := o.release(ctx, g, account, amount)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, nil
}

func (e *Escrow) notElapsed(g *Game, now time.Time) error {
	deadline, _ := e.cfg.Deadline(g)
	return NewError(KindTimeoutNotElapsed, g.ID, "deadline %s, now %s",
		deadline.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
}

// Game returns a copy of the record.
func (e *Escrow) Game(ctx context.Context, id uint64) (*Game, error) {
	return e.repo.Game(ctx, id)
}

func (e *Escrow) GameCount(ctx context.Context) (uint64, error) {
	return e.repo.GameCount(ctx)
}

func (e *Escrow) Games(ctx context.Context, q Query) ([]Game, int64, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	return e.repo.Games(ctx, q)
}

// Events returns the game's event log in emission order.
func (e *Escrow) Events(ctx context.Context, id uint64) ([]EventRecord, error) {
	if _, err := e.repo.Game(ctx, id); err != nil {
		return nil, err
	}
	return e.repo.Events(ctx, id)
}

// Escrowed returns the value currently held for the game.
func (e *Escrow) Escrowed(ctx context.Context, id uint64) (decimal.Decimal, error) {
	return e.repo.Escrowed(ctx, id)
}

// Now reads the agreed clock.
func (e *Escrow) Now(ctx context.Context) (time.Time, error) {
	return e.clock.Now(ctx)
}
