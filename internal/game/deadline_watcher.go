package game

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/ws"
)

const (
	EventDeadlinePassed = "DeadlinePassed"
	scanPageSize        = 100
)

// DeadlinePassed tells the players that cancelGame is now accepted. It is a
// notification only; the game is unchanged until someone cancels.
type DeadlinePassed struct {
	GameId   uint64    `json:"gameId"`
	Name     string    `json:"name"`
	State    string    `json:"state"`
	Deadline time.Time `json:"deadline"`
}

// DeadlineWatcher periodically looks for games whose deadline has passed.
type DeadlineWatcher struct {
	escrow   *escrow.Escrow
	notifier Notifier

	mu       sync.Mutex
	notified map[uint64]escrow.State

	scheduler gocron.Scheduler
}

func NewDeadlineWatcher(e *escrow.Escrow, notifier Notifier) *DeadlineWatcher {
	return &DeadlineWatcher{
		escrow:   e,
		notifier: notifier,
		notified: make(map[uint64]escrow.State),
	}
}

// Start runs Scan every interval on the given clock.
func (w *DeadlineWatcher) Start(interval time.Duration, clock clockwork.Clock) error {
	scheduler, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return errors.Wrap(err, "create deadline scheduler")
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := w.Scan(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Deadline scan failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.Wrap(err, "schedule deadline scan")
	}
	scheduler.Start()
	w.scheduler = scheduler
	return nil
}

func (w *DeadlineWatcher) Stop() error {
	if w.scheduler == nil {
		return nil
	}
	return w.scheduler.Shutdown()
}

// Scan notifies every game that became cancellable since the previous scan
// and returns how many it notified.
func (w *DeadlineWatcher) Scan(ctx context.Context) (int, error) {
	now, err := w.escrow.Now(ctx)
	if err != nil {
		return 0, err
	}
	cfg := w.escrow.Config()

	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[uint64]bool)
	sent := 0
	for offset := 0; ; offset += scanPageSize {
		games, total, err := w.escrow.Games(ctx, escrow.Query{Filter: escrow.FilterAll, Offset: offset, Limit: scanPageSize})
		if err != nil {
			return sent, err
		}
		for i := range games {
			g := &games[i]
			seen[g.ID] = true
			if !cfg.Cancellable(g, now) {
				continue
			}
			if state, ok := w.notified[g.ID]; ok && state == g.State {
				continue
			}
			deadline, _ := cfg.Deadline(g)
			w.notifier.Publish(ws.GameTopic(g.ID), DeadlinePassed{
				GameId:   g.ID,
				Name:     EventDeadlinePassed,
				State:    g.State.String(),
				Deadline: deadline,
			})
			w.notified[g.ID] = g.State
			sent++
		}
		if int64(offset+scanPageSize) >= total {
			break
		}
	}

	for id := range w.notified {
		if !seen[id] {
			delete(w.notified, id)
		}
	}
	if sent > 0 {
		log.Info().Int("games", sent).Msg("Deadline passed notifications sent")
	}
	return sent, nil
}
