package user

import (
	"context"
	"net/http"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/dhis2-sre/im-activities/internal/handler"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/gin-gonic/gin"
)

func NewHandler(userRepository userRepository) Handler {
	return Handler{userRepository}
}

type Handler struct {
	userRepository userRepository
}

type userRepository interface {
	FindById(ctx context.Context, id string) (*model.User, error)
}

// Me returns the acting user
func (h Handler) Me(c *gin.Context) {
	// swagger:route GET /me me
	//
	// User details
	//
	// Current user details. Users who haven't created, joined or commented on an activity yet are returned as known by the identity provider.
	//
	// responses:
	//   200: User
	//   401: Error
	//   415: Error
	//
	// security:
	//   oauth2:
	ctx := c.Request.Context()
	user, err := handler.GetUserFromContext(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}

	stored, err := h.userRepository.FindById(ctx, user.ID)
	if err != nil {
		if errdef.IsNotFound(err) {
			c.JSON(http.StatusOK, user)
			return
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stored)
}
