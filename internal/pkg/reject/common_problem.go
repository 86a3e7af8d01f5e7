package reject

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	genericUnexpectedError = "error.generic.unexpected"
	cannotParseParams      = "error.generic.cannot-parse-params"
	invalidRequest         = "error.generic.invalid-request-payload"
	cannotParseBody        = "error.generic.cannot-parse-payload"

	invalidCommitment = "error.request.invalid-commitment"
	invalidGameId     = "error.request.invalid-game-id"

	accessTokenRequired = "error.token.required"
	accessTokenInvalid  = "error.token.invalid"
)

func badRequest(title, code string) Problem {
	return NewProblem().
		WithTitle(title).
		WithStatus(http.StatusBadRequest).
		WithCode(code).
		Build()
}

func RequestValidationProblem() Problem {
	return badRequest("Invalid request payload", invalidRequest)
}

func RequestParamsProblem() Problem {
	return badRequest("Invalid request parameters", cannotParseParams)
}

func BodyParseProblem() Problem {
	return badRequest("Cannot read payload", cannotParseBody)
}

func CommitmentProblem() Problem {
	return badRequest("Commitment must be 32 bytes of 0x prefixed hex", invalidCommitment)
}

func GameIdProblem(raw string) Problem {
	return NewProblem().
		WithTitle("Game id must be a non-negative integer").
		WithStatus(http.StatusBadRequest).
		WithCode(invalidGameId).
		WithParam("gameId", raw).
		Build()
}

// PageProblem reports a malformed page_size or page_token query parameter.
func PageProblem(param string, cause error) *ProblemWithTrace {
	return &ProblemWithTrace{
		Problem: NewProblem().
			WithTitle("Invalid paging parameter").
			WithStatus(http.StatusBadRequest).
			WithCode("error.request."+strings.ReplaceAll(param, "_", "-")+"-invalid").
			WithParam("param", param).
			Build(),
		Cause: cause,
	}
}

func MissingTokenProblem() Problem {
	return NewProblem().
		WithTitle("Missing access token").
		WithStatus(http.StatusUnauthorized).
		WithCode(accessTokenRequired).
		Build()
}

func InvalidTokenProblem(err error) Problem {
	return NewProblem().
		WithTitle("Cannot verify access token").
		WithStatus(http.StatusUnauthorized).
		WithCode(accessTokenInvalid).
		WithDetail(err.Error()).
		Build()
}

func UnexpectedProblem(err error) Problem {
	log.Warn().Err(err).Msg("Unexpected error while handling request")
	return NewProblem().
		WithTitle("Unexpected error").
		WithStatus(http.StatusInternalServerError).
		WithCode(genericUnexpectedError).
		Build()
}
