package escrow

import (
	"fmt"
	"time"
)

// DefaultTimeout is used for both deadlines when none is configured.
const DefaultTimeout = 24 * time.Hour

// Config holds the timeouts clients can read back.
type Config struct {
	JoinTimeout   time.Duration `json:"joinTimeout"`
	RevealTimeout time.Duration `json:"revealTimeout"`
}

func DefaultConfig() Config {
	return Config{JoinTimeout: DefaultTimeout, RevealTimeout: DefaultTimeout}
}

func (c Config) validate() error {
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("join timeout must be positive, got %s", c.JoinTimeout)
	}
	if c.RevealTimeout <= 0 {
		return fmt.Errorf("reveal timeout must be positive, got %s", c.RevealTimeout)
	}
	return nil
}

// Deadline returns the instant after which g may be cancelled. The second
// result is false for finished games.
func (c Config) Deadline(g *Game) (time.Time, bool) {
	switch g.State {
	case Open:
		return g.CreatedAt.Add(c.JoinTimeout), true
	case Committed, Revealed:
		return g.JoinedAt.Add(c.RevealTimeout), true
	}
	return time.Time{}, false
}

// Cancellable reports whether a cancel at now would pass the timeout check.
func (c Config) Cancellable(g *Game, now time.Time) bool {
	deadline, ok := c.Deadline(g)
	return ok && now.After(deadline)
}
