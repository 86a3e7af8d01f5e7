package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/firebase"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/utils"
)

func VerifyAuthToken(verifier firebase.TokenVerifier) gin.HandlerFunc {
	return func(context *gin.Context) {
		authHeader := context.Request.Header.Get("Authorization")
		idTokenValue := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if idTokenValue == "" {
			// browsers cannot set headers on a websocket upgrade
			idTokenValue = context.Query("access_token")
		}
		if idTokenValue == "" {
			log.Warn().Msg("Token missing: 401")
			context.AbortWithStatusJSON(http.StatusUnauthorized, reject.MissingTokenProblem())
			return
		}
		token, err := verifier.VerifyIDToken(context.Request.Context(), idTokenValue)
		if err != nil {
			log.Warn().Err(err).Msg("Error verifying token")
			context.AbortWithStatusJSON(http.StatusUnauthorized, reject.InvalidTokenProblem(err))
			return
		}
		utils.SetAccessTokenCtx(&utils.AccessToken{
			Token:    *token,
			RawToken: idTokenValue,
		}, context)
		context.Next()
	}
}
