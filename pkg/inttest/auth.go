package inttest

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/dhis2-sre/im-activities/internal/middleware"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

// SetupAuthentication creates an identity provider stand-in issuing access tokens the returned
// issuer's Middleware accepts.
func SetupAuthentication(t *testing.T) *Issuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")

	return &Issuer{key: key}
}

type Issuer struct {
	key *rsa.PrivateKey
}

// Middleware returns the production authentication middleware trusting this issuer.
func (i *Issuer) Middleware() middleware.AuthenticationMiddleware {
	return middleware.NewAuthentication(slog.New(slog.NewTextHandler(io.Discard, nil)), &i.key.PublicKey)
}

// Token issues an access token for user valid for an hour.
func (i *Issuer) Token(t *testing.T, user model.User) string {
	t.Helper()

	token, err := jwt.NewBuilder().
		Subject(user.ID).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Claim("user", user).
		Build()
	require.NoError(t, err, "failed to build token")

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, i.key))
	require.NoError(t, err, "failed to sign token")
	return string(signed)
}

// As adds an authorization header with an access token for user to HTTP request headers.
func (i *Issuer) As(t *testing.T, user model.User) func(http.Header) {
	t.Helper()
	return WithAuthToken(i.Token(t, user))
}
