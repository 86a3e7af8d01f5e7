package firebase

import (
	"context"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/pkg/errors"
)

// TokenVerifier checks a bearer token and returns its claims. *auth.Client
// satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// NewAuthClient initialises the Firebase app from the ambient Google
// credentials and returns its auth client.
func NewAuthClient(ctx context.Context) (*auth.Client, error) {
	app, err := firebase.NewApp(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "initialize firebase app")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get firebase auth client")
	}
	return client, nil
}

// InsecureVerifier trusts the bearer token as the account id. Only for local
// development with AUTH_DISABLED set.
type InsecureVerifier struct{}

func (InsecureVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	uid := strings.TrimSpace(idToken)
	if uid == "" {
		return nil, errors.New("empty token")
	}
	return &auth.Token{UID: uid, Subject: uid, Claims: map[string]interface{}{}}, nil
}
