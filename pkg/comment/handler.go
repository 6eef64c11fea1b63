package comment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dhis2-sre/im-activities/internal/handler"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/gin-gonic/gin"
)

func NewHandler(logger *slog.Logger, dispatcher mediator.Dispatcher, broadcaster broadcaster) Handler {
	return Handler{
		logger:      logger,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
	}
}

type Handler struct {
	logger      *slog.Logger
	dispatcher  mediator.Dispatcher
	broadcaster broadcaster
}

type broadcaster interface {
	BroadcastComment(ctx context.Context, comment model.CommentDTO, activityID string) error
}

func (h Handler) List(c *gin.Context) {
	// swagger:route GET /activities/{id}/comments listComments
	//
	// List comments
	//
	// List the comments of an activity, oldest first
	//
	// responses:
	//   200: []CommentDTO
	//   400: Error
	//   401: Error
	//   404: Error
	//
	// security:
	//   oauth2:
	activityID, ok := handler.GetPathParameter(c, "id")
	if !ok {
		return
	}

	comments, err := mediator.Send[[]model.CommentDTO](c.Request.Context(), h.dispatcher, ListComments{ActivityID: activityID})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, comments)
}

type addCommentRequest struct {
	Body string `json:"body"`
}

func (h Handler) Add(c *gin.Context) {
	// swagger:route POST /activities/{id}/comments addComment
	//
	// Add comment
	//
	// Add a comment to an activity. The comment is pushed to everyone connected to the activity's comment hub.
	//
	// responses:
	//   201: CommentDTO
	//   400: Error
	//   401: Error
	//   404: Error
	//   415: Error
	//
	// security:
	//   oauth2:
	activityID, ok := handler.GetPathParameter(c, "id")
	if !ok {
		return
	}

	var request addCommentRequest
	if err := handler.DataBinder(c, &request); err != nil {
		_ = c.Error(err)
		return
	}

	ctx := c.Request.Context()
	comment, err := mediator.Send[model.CommentDTO](ctx, h.dispatcher, AddComment{ActivityID: activityID, Body: request.Body})
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.broadcaster.BroadcastComment(ctx, comment, activityID); err != nil {
		h.logger.ErrorContext(ctx, "Failed to broadcast comment", "activityId", activityID, "comment", comment.ID, "error", err)
	}

	c.JSON(http.StatusCreated, comment)
}
