// Package clock supplies the agreed "now" used for escrow timeouts.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Source reads the current time.
type Source interface {
	Now(ctx context.Context) (time.Time, error)
}

// Local reads a clockwork.Clock. Production uses clockwork.NewRealClock,
// tests use clockwork.NewFakeClock.
type Local struct {
	Clock clockwork.Clock
}

func NewLocal(c clockwork.Clock) Local {
	return Local{Clock: c}
}

func (l Local) Now(context.Context) (time.Time, error) {
	return l.Clock.Now().UTC(), nil
}

// Monotonic never returns an instant earlier than one it returned before,
// even if the underlying source steps back.
type Monotonic struct {
	src Source

	mu   sync.Mutex
	last time.Time
}

func NewMonotonic(src Source) *Monotonic {
	return &Monotonic{src: src}
}

func (m *Monotonic) Now(ctx context.Context) (time.Time, error) {
	now, err := m.src.Now(ctx)
	if err != nil {
		return time.Time{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.last) {
		return m.last, nil
	}
	m.last = now
	return now, nil
}
