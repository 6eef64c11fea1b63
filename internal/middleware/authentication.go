package middleware

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func NewAuthentication(logger *slog.Logger, publicKey *rsa.PublicKey) AuthenticationMiddleware {
	return AuthenticationMiddleware{
		logger:    logger,
		publicKey: publicKey,
	}
}

// AuthenticationMiddleware trusts RS256 access tokens issued by the identity provider. The user
// claim carries the id, display name and optionally bio and image of the acting user.
type AuthenticationMiddleware struct {
	logger    *slog.Logger
	publicKey *rsa.PublicKey
}

// TokenAuthentication puts the user of a valid access token on the request context. Browsers cannot
// set headers on WebSocket or EventSource requests so the token is also accepted as access_token
// query parameter.
func (m AuthenticationMiddleware) TokenAuthentication(c *gin.Context) {
	user, err := parseRequest(c.Request, m.publicKey)
	if err != nil {
		m.logger.InfoContext(c.Request.Context(), "Token not valid", "error", err)
		_ = c.Error(errdef.NewUnauthorized("token not valid"))
		c.Abort()
		return
	}

	ctx := model.NewContextWithUser(c.Request.Context(), user)
	c.Request = c.Request.WithContext(ctx)
	c.Set("user", user)
	c.Next()
}

func parseRequest(request *http.Request, key *rsa.PublicKey) (*model.User, error) {
	token, err := jwt.ParseRequest(
		request,
		jwt.WithKey(jwa.RS256, key),
		jwt.WithHeaderKey("Authorization"),
		jwt.WithFormKey("access_token"),
	)
	if err != nil {
		return nil, err
	}

	return extractUser(token)
}

func extractUser(token jwt.Token) (*model.User, error) {
	userData, ok := token.Get("user")
	if !ok {
		return nil, errors.New("user not found in claims")
	}

	bytes, err := json.Marshal(userData)
	if err != nil {
		return nil, err
	}

	user := &model.User{}
	err = json.Unmarshal(bytes, user)
	if err != nil {
		return nil, err
	}

	if user.ID == "" {
		return nil, errors.New("user claim without id")
	}
	if user.DisplayName == "" {
		user.DisplayName = user.ID
	}

	return user, nil
}
