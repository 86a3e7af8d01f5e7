package reject

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
)

var statusByKind = map[escrow.Kind]int{
	escrow.KindNoSuchGame:         http.StatusNotFound,
	escrow.KindInvalidState:       http.StatusConflict,
	escrow.KindNotAuthorized:      http.StatusForbidden,
	escrow.KindNotInGame:          http.StatusForbidden,
	escrow.KindWagerMismatch:      http.StatusUnprocessableEntity,
	escrow.KindAlreadyRevealed:    http.StatusConflict,
	escrow.KindCommitmentMismatch: http.StatusUnprocessableEntity,
	escrow.KindInvalidMove:        http.StatusBadRequest,
	escrow.KindTimeoutNotElapsed:  http.StatusConflict,
}

var wordBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// EscrowCode turns KindNotInGame into "error.escrow.not-in-game".
func EscrowCode(kind escrow.Kind) string {
	return "error.escrow." + strings.ToLower(wordBoundary.ReplaceAllString(kind.String(), "$1-$2"))
}

// EscrowProblem maps an error returned by an escrow operation to the
// response it deserves. Errors that are not rejections become a 500.
func EscrowProblem(err error) *ProblemWithTrace {
	var rejection *escrow.Error
	if !errors.As(err, &rejection) {
		return &ProblemWithTrace{Problem: UnexpectedProblem(err), Cause: err}
	}
	status, ok := statusByKind[rejection.Kind]
	if !ok {
		status = http.StatusBadRequest
	}
	problem := NewProblem().
		WithTitle(rejection.Kind.String()).
		WithStatus(status).
		WithCode(EscrowCode(rejection.Kind)).
		WithDetail(rejection.Detail).
		WithParam("gameId", strconv.FormatUint(rejection.GameID, 10)).
		Build()
	return &ProblemWithTrace{Problem: problem, Cause: err}
}
