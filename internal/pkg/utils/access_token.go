package utils

import (
	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
)

const tokenCtxKey string = "accessToken"

type AccessToken struct {
	Token    auth.Token
	RawToken string
}

// GetPlayer returns the escrow account of the authenticated caller, or
// escrow.NoAccount when the request carried no token.
func GetPlayer(ctx *gin.Context) escrow.Account {
	value, exists := ctx.Get(tokenCtxKey)
	if !exists {
		return escrow.NoAccount
	}
	return escrow.Account(value.(AccessToken).Token.UID)
}

func SetAccessTokenCtx(token *AccessToken, ctx *gin.Context) {
	ctx.Set(tokenCtxKey, *token)
}
