package escrow_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/clock"
)

const (
	alice = escrow.Account("alice")
	bob   = escrow.Account("bob")
	carol = escrow.Account("carol")

	salt1 = "abc123"
	salt2 = "xyz789"
)

var one = decimal.RequireFromString("1.0")

type recorder struct {
	mu     sync.Mutex
	events []escrow.Event
}

func (r *recorder) Publish(_ context.Context, events []escrow.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recorder) named(name string) []escrow.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []escrow.Event
	for _, ev := range r.events {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	e     *escrow.Escrow
	repo  *escrow.MemoryRepository
	clock *clockwork.FakeClock
	rec   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, escrow.NewMemoryRepository())
}

func newFixtureWith(t *testing.T, repo escrow.Repository) *fixture {
	t.Helper()
	fake := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	rec := &recorder{}
	e, err := escrow.New(repo, clock.NewMonotonic(clock.NewLocal(fake)), escrow.DefaultConfig(), escrow.WithPublisher(rec))
	require.NoError(t, err)
	f := &fixture{e: e, clock: fake, rec: rec}
	if mem, ok := repo.(*escrow.MemoryRepository); ok {
		f.repo = mem
	}
	return f
}

func (f *fixture) create(t *testing.T, who escrow.Account, move escrow.Move, salt string) uint64 {
	t.Helper()
	id, err := f.e.CreateGame(context.Background(), who, escrow.Commit(move, salt), one)
	require.NoError(t, err)
	return id
}

func (f *fixture) join(t *testing.T, id uint64, who escrow.Account, move escrow.Move, salt string) {
	t.Helper()
	require.NoError(t, f.e.JoinGame(context.Background(), who, id, escrow.Commit(move, salt), one))
}

func (f *fixture) game(t *testing.T, id uint64) *escrow.Game {
	t.Helper()
	g, err := f.e.Game(context.Background(), id)
	require.NoError(t, err)
	return g
}

func (f *fixture) escrowed(t *testing.T, id uint64) decimal.Decimal {
	t.Helper()
	v, err := f.e.Escrowed(context.Background(), id)
	require.NoError(t, err)
	return v
}

func paidTo(entries []escrow.LedgerEntry, id uint64, who escrow.Account) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.GameID == id && e.Account == who && e.Kind == escrow.EntryRelease {
			total = total.Add(e.Amount)
		}
	}
	return total
}

func assertConserved(t *testing.T, entries []escrow.LedgerEntry, id uint64) {
	t.Helper()
	in, out := decimal.Zero, decimal.Zero
	for _, e := range entries {
		if e.GameID != id {
			continue
		}
		if e.Kind == escrow.EntryEscrow {
			in = in.Add(e.Amount)
		} else {
			out = out.Add(e.Amount)
		}
	}
	assert.True(t, in.Equal(out), "deposited %s, paid %s", in, out)
}

func TestCreateGameRoundTrip(t *testing.T) {
	f := newFixture(t)
	commitment := escrow.Commit(escrow.Rock, salt1)

	id, err := f.e.CreateGame(context.Background(), alice, commitment, one)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	g := f.game(t, id)
	assert.Equal(t, alice, g.Player1)
	assert.True(t, g.Wager.Equal(one))
	assert.Equal(t, commitment, g.Commit1)
	assert.Equal(t, escrow.Open, g.State)
	assert.False(t, g.Joined())
	assert.True(t, g.CreatedAt.Equal(f.clock.Now()))
	assert.True(t, f.escrowed(t, id).Equal(one))

	created := f.rec.named(escrow.EventGameCreated)
	require.Len(t, created, 1)
	assert.Equal(t, escrow.GameCreated{GameID: 0, Player1: alice, Wager: one}, created[0])

	count, err := f.e.GameCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestCreateGameAssignsSequentialIds(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	ids := make(chan uint64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := f.e.CreateGame(context.Background(), escrow.Account(fmt.Sprintf("p%d", i)), escrow.Commit(escrow.Rock, "s"), one)
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]bool{}
	for id := range ids {
		seen[id] = true
	}
	for i := uint64(0); i < 20; i++ {
		assert.True(t, seen[i], "missing id %d", i)
	}
}

func TestCreateGameRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.e.CreateGame(ctx, alice, escrow.Commit(escrow.Rock, salt1), decimal.Zero)
	assert.ErrorIs(t, err, escrow.ErrWagerMismatch)

	_, err = f.e.CreateGame(ctx, alice, escrow.Commit(escrow.Rock, salt1), decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, escrow.ErrWagerMismatch)

	_, err = f.e.CreateGame(ctx, escrow.NoAccount, escrow.Commit(escrow.Rock, salt1), one)
	assert.ErrorIs(t, err, escrow.ErrNotAuthorized)

	count, err := f.e.GameCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestJoinGame(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, alice, escrow.Paper, salt1)
	f.clock.Advance(time.Minute)

	f.join(t, id, bob, escrow.Scissors, salt2)

	g := f.game(t, id)
	assert.Equal(t, bob, g.Player2)
	assert.Equal(t, escrow.Commit(escrow.Scissors, salt2), g.Commit2)
	assert.Equal(t, escrow.Committed, g.State)
	assert.True(t, g.JoinedAt.Equal(f.clock.Now()))
	assert.True(t, f.escrowed(t, id).Equal(g.Pot()))

	joined := f.rec.named(escrow.EventGameJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, escrow.GameJoined{GameID: id, Player2: bob}, joined[0])
}

func TestJoinGameRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, alice, escrow.Rock, salt1)
	c := escrow.Commit(escrow.Paper, salt2)

	err := f.e.JoinGame(ctx, bob, 5, c, one)
	assert.ErrorIs(t, err, escrow.ErrNoSuchGame)

	err = f.e.JoinGame(ctx, alice, id, c, one)
	assert.ErrorIs(t, err, escrow.ErrNotAuthorized)

	err = f.e.JoinGame(ctx, bob, id, c, decimal.RequireFromString("0.5"))
	assert.ErrorIs(t, err, escrow.ErrWagerMismatch)
	assert.Equal(t, escrow.Open, f.game(t, id).State)
	assert.True(t, f.escrowed(t, id).Equal(one))

	f.join(t, id, bob, escrow.Paper, salt2)
	err = f.e.JoinGame(ctx, carol, id, escrow.Commit(escrow.Scissors, "zzz"), one)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
	assert.Equal(t, bob, f.game(t, id).Player2)
}

func TestConcurrentJoinsExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, alice, escrow.Rock, salt1)

	const joiners = 16
	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := escrow.Account(fmt.Sprintf("joiner-%d", i))
			errs <- f.e.JoinGame(context.Background(), who, id, escrow.Commit(escrow.Paper, "s"), one)
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, invalid int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, escrow.ErrInvalidState):
			invalid++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, joiners-1, invalid)
	assert.True(t, f.escrowed(t, id).Equal(f.game(t, id).Pot()))
}

// gate holds the first GameJoined delivery until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) Publish(_ context.Context, events []escrow.Event) {
	for _, ev := range events {
		if ev.EventName() != escrow.EventGameJoined {
			continue
		}
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
}

func TestSlowPublisherDoesNotHoldGameLock(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	pub := newGate()
	e, err := escrow.New(escrow.NewMemoryRepository(), clock.NewLocal(fake), escrow.DefaultConfig(), escrow.WithPublisher(pub))
	require.NoError(t, err)
	ctx := context.Background()

	id, err := e.CreateGame(ctx, alice, escrow.Commit(escrow.Rock, salt1), one)
	require.NoError(t, err)

	joined := make(chan error, 1)
	go func() {
		joined <- e.JoinGame(ctx, bob, id, escrow.Commit(escrow.Paper, salt2), one)
	}()
	<-pub.entered

	revealed := make(chan error, 1)
	go func() {
		revealed <- e.Reveal(ctx, alice, id, escrow.Rock, salt1)
	}()
	select {
	case err := <-revealed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(pub.release)
		t.Fatal("reveal blocked behind the publisher of the join")
	}

	close(pub.release)
	require.NoError(t, <-joined)
	g, err := e.Game(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, escrow.Revealed, g.State)
}

// rewinding returns the queued times in order, repeating the last one.
type rewinding struct {
	mu    sync.Mutex
	times []time.Time
}

func (r *rewinding) Now(context.Context) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.times[0]
	if len(r.times) > 1 {
		r.times = r.times[1:]
	}
	return now, nil
}

func TestGameTimesNeverGoBackwards(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	src := &rewinding{times: []time.Time{created, created.Add(-time.Minute)}}
	repo := escrow.NewMemoryRepository()
	e, err := escrow.New(repo, src, escrow.DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := e.CreateGame(ctx, alice, escrow.Commit(escrow.Rock, salt1), one)
	require.NoError(t, err)
	require.NoError(t, e.JoinGame(ctx, bob, id, escrow.Commit(escrow.Paper, salt2), one))

	g, err := e.Game(ctx, id)
	require.NoError(t, err)
	assert.True(t, g.CreatedAt.Equal(created))
	assert.True(t, g.JoinedAt.Equal(created), "joined at %s", g.JoinedAt)

	records, err := e.Events(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[1].At.Before(records[0].At))
}

// Scenario A.
func TestFullGamePaysWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, alice, escrow.Rock, salt1)
	f.join(t, id, bob, escrow.Scissors, salt2)

	require.NoError(t, f.e.Reveal(ctx, alice, id, escrow.Rock, salt1))
	g := f.game(t, id)
	assert.Equal(t, escrow.Revealed, g.State)
	assert.Equal(t, escrow.Rock, g.Reveal1)
	assert.Equal(t, escrow.None, g.Reveal2)
	assert.Empty(t, f.rec.named(escrow.EventGameSettled))

	require.NoError(t, f.e.Reveal(ctx, bob, id, escrow.Scissors, salt2))
	g = f.game(t, id)
	assert.Equal(t, escrow.Finished, g.State)
	assert.Equal(t, escrow.Scissors, g.Reveal2)

	revealed := f.rec.named(escrow.EventMoveRevealed)
	require.Len(t, revealed, 2)
	assert.Equal(t, escrow.MoveRevealed{GameID: id, Player: alice, Move: escrow.Rock}, revealed[0])
	assert.Equal(t, escrow.MoveRevealed{GameID: id, Player: bob, Move: escrow.Scissors}, revealed[1])

	settled := f.rec.named(escrow.EventGameSettled)
	require.Len(t, settled, 1)
	ev := settled[0].(escrow.GameSettled)
	assert.Equal(t, alice, ev.Winner)
	assert.False(t, ev.Tie)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("2.0")))

	entries := f.repo.Entries()
	assert.True(t, paidTo(entries, id, alice).Equal(decimal.NewFromInt(2)))
	assert.True(t, paidTo(entries, id, bob).IsZero())
	assert.True(t, f.escrowed(t, id).IsZero())
	assertConserved(t, entries, id)
}

// Scenario B.
func TestTieRefundsEachPlayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, alice, escrow.Paper, salt1)
	f.join(t, id, bob, escrow.Paper, salt2)

	require.NoError(t, f.e.Reveal(ctx, alice, id, escrow.Paper, salt1))
	require.NoError(t, f.e.Reveal(ctx, bob, id, escrow.Paper, salt2))

	settled := f.rec.named(escrow.EventGameSettled)
	require.Len(t, settled, 1)
	ev := settled[0].(escrow.GameSettled)
	assert.Equal(t, escrow.NoAccount, ev.Winner)
	assert.True(t, ev.Tie)
	assert.True(t, ev.Amount.Equal(one))
	assert.Len(t, ev.Payouts, 2)

	entries := f.repo.Entries()
	assert.True(t, paidTo(entries, id, alice).Equal(one))
	assert.True(t, paidTo(entries, id, bob).Equal(one))
	assert.True(t, f.escrowed(t, id).IsZero())
	assertConserved(t, entries, id)
}

func TestWinnerTable(t *testing.T) {
	moves := []escrow.Move{escrow.Rock, escrow.Paper, escrow.Scissors}
	for _, m1 := range moves {
		for _, m2 := range moves {
			m1, m2 := m1, m2
			t.Run(fmt.Sprintf("%s_vs_%s", m1, m2), func(t *testing.T) {
				f := newFixture(t)
				ctx := context.Background()
				id := f.create(t, alice, m1, salt1)
				f.join(t, id, bob, m2, salt2)

				// reveal order must not matter
				require.NoError(t, f.e.Reveal(ctx, bob, id, m2, salt2))
				require.NoError(t, f.e.Reveal(ctx, alice, id, m1, salt1))

				entries := f.repo.Entries()
				switch escrow.Decide(m1, m2) {
				case escrow.Player1Wins:
					assert.True(t, paidTo(entries, id, alice).Equal(decimal.NewFromInt(2)))
				case escrow.Player2Wins:
					assert.True(t, paidTo(entries, id, bob).Equal(decimal.NewFromInt(2)))
				case escrow.Tie:
					assert.True(t, paidTo(entries, id, alice).Equal(one))
					assert.True(t, paidTo(entries, id, bob).Equal(one))
				}
				assertConserved(t, entries, id)
				assert.Len(t, f.rec.named(escrow.EventGameSettled), 1)
			})
		}
	}
}

func TestConcurrentRevealsSettleOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		id := f.create(t, alice, escrow.Scissors, salt1)
		f.join(t, id, bob, escrow.Paper, salt2)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.e.Reveal(context.Background(), alice, id, escrow.Scissors, salt1))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.e.Reveal(context.Background(), bob, id, escrow.Paper, salt2))
		}()
		wg.Wait()

		require.Len(t, f.rec.named(escrow.EventGameSettled), 1)
		assert.Equal(t, escrow.Finished, f.game(t, id).State)
		assert.True(t, paidTo(f.repo.Entries(), id, alice).Equal(decimal.NewFromInt(2)))
	}
}

func TestRevealRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, alice, escrow.Rock, salt1)

	err := f.e.Reveal(ctx, alice, id, escrow.Rock, salt1)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)

	err = f.e.Reveal(ctx, alice, 9, escrow.Rock, salt1)
	assert.ErrorIs(t, err, escrow.ErrNoSuchGame)

	f.join(t, id, bob, escrow.Paper, salt2)

	err = f.e.Reveal(ctx, carol, id, escrow.Rock, "nope")
	assert.ErrorIs(t, err, escrow.ErrNotInGame)

	err = f.e.Reveal(ctx, alice, id, escrow.Move(7), salt1)
	assert.ErrorIs(t, err, escrow.ErrInvalidMove)

	err = f.e.Reveal(ctx, alice, id, escrow.None, salt1)
	assert.ErrorIs(t, err, escrow.ErrInvalidMove)

	require.NoError(t, f.e.Reveal(ctx, alice, id, escrow.Rock, salt1))
	err = f.e.Reveal(ctx, alice, id, escrow.Rock, salt1)
	assert.ErrorIs(t, err, escrow.ErrAlreadyRevealed)
}

// Scenario E.
func TestCommitmentMismatchLeavesGameUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, alice, escrow.Rock, salt1)
	f.join(t, id, bob, escrow.Scissors, salt2)
	before := f.game(t, id)
	eventsBefore, err := f.e.Events(ctx, id)
	require.NoError(t, err)

	err = f.e.Reveal(ctx, bob, id, escrow.Rock, salt2)
	assert.ErrorIs(t, err, escrow.ErrCommitmentMismatch)
	err = f.e.Reveal(ctx, bob, id, escrow.Scissors, salt1)
	assert.ErrorIs(t, err, escrow.ErrCommitmentMismatch)

	assert.Equal(t, before, f.game(t, id))
	assert.True(t, f.escrowed(t, id).Equal(before.Pot()))
	eventsAfter, err := f.e.Events(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, eventsBefore, eventsAfter)
	assert.Empty(t, f.rec.named(escrow.EventMoveRevealed))
}

// Scenario C.
func TestCancelOpenGameAfterJoinTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, alice, escrow.Rock, salt1)

	err := f.e.CancelGame(ctx, alice, id)
	assert.ErrorIs(t, err, escrow.ErrTimeoutNotElapsed)

	f.clock.Advance(escrow.DefaultTimeout)
	err = f.e.CancelGame(ctx, alice, id)
	assert.ErrorIs(t, err, escrow.ErrTimeoutNotElapsed, "deadline itself is not past it")

	f.clock.Advance(time.Second)
	err = f.e.CancelGame(ctx, bob, id)
	assert.ErrorIs(t, err, escrow.ErrNotAuthorized)

	require.NoError(t, f.e.CancelGame(ctx, alice, id))
	assert.Equal(t, escrow.Finished, f.game(t, id).State)
	assert.True(t, paidTo(f.repo.Entries(), id, alice).Equal(one))
	assert.True(t, f.escrowed(t, id).IsZero())

	cancelled := f.rec.named(escrow.EventGameCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, alice, cancelled[0].(escrow.GameCancelled).Caller)

	err = f.e.CancelGame(ctx, alice, id)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestCancelCommittedGameRefundsBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, alice, escrow.Rock, salt1)
	f.join(t, id, bob, escrow.Scissors, salt2)

	err := f.e.CancelGame(ctx, bob, id)
	assert.ErrorIs(t, err, escrow.ErrTimeoutNotElapsed)

	f.clock.Advance(escrow.DefaultTimeout + time.Second)
	err = f.e.CancelGame(ctx, carol, id)
	assert.ErrorIs(t, err, escrow.ErrNotInGame)

	require.NoError(t, f.e.CancelGame(ctx, bob, id))
	entries := f.repo.Entries()
	assert.True(t, paidTo(entries, id, alice).Equal(one))
	assert.True(t, paidTo(entries, id, bob).Equal(one))
	assertConserved(t, entries, id)

	cancelled := f.rec.named(escrow.EventGameCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, escrow.GameCancelled{
		GameID: id,
		Caller: bob,
		Payouts: []escrow.Payout{
			{To: alice, Amount: one},
			{To: bob, Amount: one},
		},
	}, cancelled[0])
}

// Scenario D: the revealer takes the pot by forfeit.
func TestCancelAfterSingleRevealForfeitsToRevealer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, alice, escrow.Rock, salt1)
	f.join(t, id, bob, escrow.Paper, salt2)
	require.NoError(t, f.e.Reveal(ctx, alice, id, escrow.Rock, salt1))

	f.clock.Advance(escrow.DefaultTimeout + time.Second)
	require.NoError(t, f.e.CancelGame(ctx, bob, id))

	g := f.game(t, id)
	assert.Equal(t, escrow.Finished, g.State)
	assert.Equal(t, escrow.Rock, g.Reveal1)
	assert.Equal(t, escrow.None, g.Reveal2)

	entries := f.repo.Entries()
	assert.True(t, paidTo(entries, id, alice).Equal(decimal.NewFromInt(2)))
	assert.True(t, paidTo(entries, id, bob).IsZero())
	assertConserved(t, entries, id)
	assert.Empty(t, f.rec.named(escrow.EventGameSettled))
}

func TestRevealTimeoutAnchorsOnJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, alice, escrow.Rock, salt1)
	f.clock.Advance(20 * time.Hour)
	f.join(t, id, bob, escrow.Paper, salt2)

	f.clock.Advance(5 * time.Hour)
	err := f.e.CancelGame(ctx, alice, id)
	assert.ErrorIs(t, err, escrow.ErrTimeoutNotElapsed)

	f.clock.Advance(20 * time.Hour)
	assert.NoError(t, f.e.CancelGame(ctx, alice, id))
}

func TestFinishedGameIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, alice, escrow.Rock, salt1)
	f.join(t, id, bob, escrow.Scissors, salt2)
	require.NoError(t, f.e.Reveal(ctx, alice, id, escrow.Rock, salt1))
	require.NoError(t, f.e.Reveal(ctx, bob, id, escrow.Scissors, salt2))
	final := f.game(t, id)
	f.clock.Advance(72 * time.Hour)

	assert.ErrorIs(t, f.e.JoinGame(ctx, carol, id, escrow.Commit(escrow.Rock, "x"), one), escrow.ErrInvalidState)
	assert.ErrorIs(t, f.e.Reveal(ctx, alice, id, escrow.Rock, salt1), escrow.ErrInvalidState)
	assert.ErrorIs(t, f.e.CancelGame(ctx, alice, id), escrow.ErrInvalidState)
	assert.ErrorIs(t, f.e.CancelGame(ctx, bob, id), escrow.ErrInvalidState)

	assert.Equal(t, final, f.game(t, id))
	assert.Len(t, f.rec.named(escrow.EventGameSettled), 1)
}

func TestEventLogFollowsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, alice, escrow.Rock, salt1)
	f.join(t, id, bob, escrow.Rock, salt2)
	require.NoError(t, f.e.Reveal(ctx, alice, id, escrow.Rock, salt1))
	require.NoError(t, f.e.Reveal(ctx, bob, id, escrow.Rock, salt2))

	records, err := f.e.Events(ctx, id)
	require.NoError(t, err)
	var names []string
	for i, rec := range records {
		assert.Equal(t, uint64(i), rec.Seq)
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{
		escrow.EventGameCreated,
		escrow.EventGameJoined,
		escrow.EventMoveRevealed,
		escrow.EventMoveRevealed,
		escrow.EventGameSettled,
	}, names)

	_, err = f.e.Events(ctx, 42)
	assert.ErrorIs(t, err, escrow.ErrNoSuchGame)
}

func TestGamesListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	open := f.create(t, alice, escrow.Rock, salt1)
	mine := f.create(t, carol, escrow.Rock, salt1)
	f.join(t, mine, bob, escrow.Paper, salt2)
	done := f.create(t, bob, escrow.Rock, salt1)
	f.clock.Advance(escrow.DefaultTimeout + time.Second)
	require.NoError(t, f.e.CancelGame(ctx, bob, done))

	ids := func(q escrow.Query) []uint64 {
		games, _, err := f.e.Games(ctx, q)
		require.NoError(t, err)
		var out []uint64
		for _, g := range games {
			out = append(out, g.ID)
		}
		return out
	}

	assert.Equal(t, []uint64{open, mine}, ids(escrow.Query{Filter: escrow.FilterAll}))
	assert.Equal(t, []uint64{open}, ids(escrow.Query{Filter: escrow.FilterOpen}))
	assert.Equal(t, []uint64{mine}, ids(escrow.Query{Filter: escrow.FilterMine, Player: bob}))
	assert.Equal(t, []uint64{done}, ids(escrow.Query{Filter: escrow.FilterFinished}))
	assert.Equal(t, []uint64{mine}, ids(escrow.Query{Filter: escrow.FilterAll, Offset: 1, Limit: 1}))
}

// failingRelease wraps a repository and refuses every payout.
type failingRelease struct {
	*escrow.MemoryRepository
}

type failingTx struct {
	escrow.Tx
}

func (r failingRelease) Transaction(ctx context.Context, fn func(tx escrow.Tx) error) error {
	return r.MemoryRepository.Transaction(ctx, func(tx escrow.Tx) error {
		return fn(failingTx{tx})
	})
}

func (failingTx) Release(context.Context, uint64, escrow.Account, decimal.Decimal) error {
	return errors.New("ledger unavailable")
}

func TestLedgerFailureAbortsSettlement(t *testing.T) {
	mem := escrow.NewMemoryRepository()
	f := newFixtureWith(t, failingRelease{mem})
	ctx := context.Background()
	id := f.create(t, alice, escrow.Rock, salt1)
	f.join(t, id, bob, escrow.Scissors, salt2)
	require.NoError(t, f.e.Reveal(ctx, alice, id, escrow.Rock, salt1))

	err := f.e.Reveal(ctx, bob, id, escrow.Scissors, salt2)
	require.Error(t, err)

	g := f.game(t, id)
	assert.Equal(t, escrow.Revealed, g.State)
	assert.Equal(t, escrow.None, g.Reveal2)
	held, err := mem.Escrowed(ctx, id)
	require.NoError(t, err)
	assert.True(t, held.Equal(g.Pot()))
	assert.Empty(t, f.rec.named(escrow.EventGameSettled))
}

func TestMemoryLedgerRefusesOverdraw(t *testing.T) {
	repo := escrow.NewMemoryRepository()
	err := repo.Transaction(context.Background(), func(tx escrow.Tx) error {
		if err := tx.Escrow(context.Background(), 0, alice, one); err != nil {
			return err
		}
		return tx.Release(context.Background(), 0, alice, decimal.NewFromInt(2))
	})
	assert.ErrorIs(t, err, escrow.ErrInsufficientEscrow)
	assert.Empty(t, repo.Entries())
}

func TestDeadline(t *testing.T) {
	cfg := escrow.Config{JoinTimeout: time.Hour, RevealTimeout: 2 * time.Hour}
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := &escrow.Game{State: escrow.Open, CreatedAt: created}

	d, ok := cfg.Deadline(g)
	require.True(t, ok)
	assert.True(t, d.Equal(created.Add(time.Hour)))
	assert.False(t, cfg.Cancellable(g, created.Add(time.Hour)))
	assert.True(t, cfg.Cancellable(g, created.Add(time.Hour+time.Nanosecond)))

	g.State, g.JoinedAt = escrow.Revealed, created.Add(30*time.Minute)
	d, ok = cfg.Deadline(g)
	require.True(t, ok)
	assert.True(t, d.Equal(created.Add(150*time.Minute)))

	g.State = escrow.Finished
	_, ok = cfg.Deadline(g)
	assert.False(t, ok)
}

func TestNewRejectsNonPositiveTimeouts(t *testing.T) {
	_, err := escrow.New(escrow.NewMemoryRepository(), clock.NewLocal(clockwork.NewFakeClock()), escrow.Config{JoinTimeout: time.Hour})
	assert.Error(t, err)
}

func TestErrorMatching(t *testing.T) {
	err := escrow.NewError(escrow.KindWagerMismatch, 3, "stake %s", "2")
	assert.ErrorIs(t, err, escrow.ErrWagerMismatch)
	assert.NotErrorIs(t, err, escrow.ErrInvalidState)
	assert.Equal(t, "game 3: WagerMismatch: stake 2", err.Error())

	kind, ok := escrow.KindOf(fmt.Errorf("wrapped: %w", err))
	require.True(t, ok)
	assert.Equal(t, escrow.KindWagerMismatch, kind)

	_, ok = escrow.KindOf(errors.New("plain"))
	assert.False(t, ok)
}
