package escrow

import (
	"fmt"
	"strconv"
	"strings"
)

// Move is a rock-paper-scissors hand. The numeric values are part of the
// commitment encoding and of the public API and must not change.
type Move uint8

const (
	None Move = iota
	Rock
	Paper
	Scissors
)

var moveNames = [...]string{"None", "Rock", "Paper", "Scissors"}

func (m Move) String() string {
	if int(m) < len(moveNames) {
		return moveNames[m]
	}
	return "Unknown"
}

// Valid reports whether m is one of Rock, Paper or Scissors.
func (m Move) Valid() bool {
	return m >= Rock && m <= Scissors
}

// Beats reports whether m wins against other.
func (m Move) Beats(other Move) bool {
	switch m {
	case Rock:
		return other == Scissors
	case Paper:
		return other == Rock
	case Scissors:
		return other == Paper
	}
	return false
}

// ParseMove accepts a move name ("rock") or its number ("1").
func ParseMove(s string) (Move, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		m := Move(n)
		if !m.Valid() {
			return None, fmt.Errorf("move %d out of range", n)
		}
		return m, nil
	}
	for i := Rock; i <= Scissors; i++ {
		if strings.EqualFold(s, moveNames[i]) {
			return i, nil
		}
	}
	return None, fmt.Errorf("unknown move %q", s)
}

// Outcome of a round between player1 and player2.
type Outcome uint8

const (
	Tie Outcome = iota
	Player1Wins
	Player2Wins
)

// Decide applies standard precedence: Rock beats Scissors, Scissors beats
// Paper, Paper beats Rock, equal moves tie.
func Decide(m1, m2 Move) Outcome {
	switch {
	case m1.Beats(m2):
		return Player1Wins
	case m2.Beats(m1):
		return Player2Wins
	default:
		return Tie
	}
}
