package escrow

import (
	"errors"
	"fmt"
)

// Kind is the closed set of reasons an operation is rejected.
type Kind uint8

const (
	KindNoSuchGame Kind = iota + 1
	KindInvalidState
	KindNotAuthorized
	KindNotInGame
	KindWagerMismatch
	KindAlreadyRevealed
	KindCommitmentMismatch
	KindInvalidMove
	KindTimeoutNotElapsed
)

var kindNames = map[Kind]string{
	KindNoSuchGame:         "NoSuchGame",
	KindInvalidState:       "InvalidState",
	KindNotAuthorized:      "NotAuthorized",
	KindNotInGame:          "NotInGame",
	KindWagerMismatch:      "WagerMismatch",
	KindAlreadyRevealed:    "AlreadyRevealed",
	KindCommitmentMismatch: "CommitmentMismatch",
	KindInvalidMove:        "InvalidMove",
	KindTimeoutNotElapsed:  "TimeoutNotElapsed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error is a rejection of one operation on one game. Nothing was changed
// when an Error is returned.
type Error struct {
	Kind   Kind
	GameID uint64
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("game %d: %s", e.GameID, e.Kind)
	}
	return fmt.Sprintf("game %d: %s: %s", e.GameID, e.Kind, e.Detail)
}

// Is matches any *Error of the same Kind, so callers can write
// errors.Is(err, escrow.ErrInvalidState).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNoSuchGame         = &Error{Kind: KindNoSuchGame}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
	ErrNotAuthorized      = &Error{Kind: KindNotAuthorized}
	ErrNotInGame          = &Error{Kind: KindNotInGame}
	ErrWagerMismatch      = &Error{Kind: KindWagerMismatch}
	ErrAlreadyRevealed    = &Error{Kind: KindAlreadyRevealed}
	ErrCommitmentMismatch = &Error{Kind: KindCommitmentMismatch}
	ErrInvalidMove        = &Error{Kind: KindInvalidMove}
	ErrTimeoutNotElapsed  = &Error{Kind: KindTimeoutNotElapsed}
)

// ErrInsufficientEscrow is returned by a Ledger asked to release more than a
// game holds. It aborts the whole operation; the state machine never causes
// it on its own.
var ErrInsufficientEscrow = errors.New("escrow: release exceeds escrowed value")

// NewError builds a rejection for the given game.
func NewError(kind Kind, gameID uint64, format string, args ...any) *Error {
	e := &Error{Kind: kind, GameID: gameID}
	if format != "" {
		e.Detail = fmt.Sprintf(format, args...)
	}
	return e
}

// KindOf extracts the rejection kind from err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
