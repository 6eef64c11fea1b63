package hub

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/dhis2-sre/im-activities/internal/handler"
	"github.com/dhis2-sre/im-activities/pkg/comment"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func NewHandler(logger *slog.Logger, hub *Hub, dispatcher mediator.Dispatcher, allowedOrigins []string) Handler {
	return Handler{
		logger:     logger,
		hub:        hub,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

type Handler struct {
	logger     *slog.Logger
	hub        *Hub
	dispatcher mediator.Dispatcher
	upgrader   websocket.Upgrader
}

// checkOrigin allows requests without an origin header, from the host itself and from the allowed
// origins. "*" allows every origin.
func checkOrigin(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin) {
			return true
		}

		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

func (h Handler) Connect(c *gin.Context) {
	// swagger:route GET /hub connectHub
	//
	// Connect to the comment hub
	//
	// Upgrade to a WebSocket connection. Send join, leave, postComment and ping messages and receive joined, left, loadComments, commentCreated, error and pong messages. Use the activityId query parameter to join an activity right away. Browsers pass the access token using the access_token query parameter.
	//
	// responses:
	//   101:
	//   401: Error
	//
	// security:
	//   oauth2:
	ctx := c.Request.Context()
	if _, err := handler.GetUserFromContext(ctx); err != nil {
		_ = c.Error(err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already responded
		h.logger.InfoContext(ctx, "Failed to upgrade to WebSocket", "error", err)
		return
	}

	conn := newConn(ws, h.hub, h.dispatcher, h.logger)
	conn.serve(ctx, c.Query("activityId"))
}

func (h Handler) Stream(c *gin.Context) {
	// swagger:route GET /activities/{id}/comments/stream streamComments
	//
	// Stream comments
	//
	// Stream the comments of an activity as server-sent events. A loadComments event carrying all existing comments is followed by a commentCreated event for every new one.
	//
	// responses:
	//   200: Stream
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
	ctx := c.Request.Context()

	s := newStream()
	if _, err := h.hub.Join(ctx, activityID, s); err != nil {
		_ = c.Error(err)
		return
	}
	defer func() {
		_ = h.hub.Disconnect(context.WithoutCancel(ctx), s)
		s.Close()
	}()

	comments, err := mediator.Send[[]model.CommentDTO](ctx, h.dispatcher, comment.ListComments{ActivityID: activityID})
	if err != nil {
		_ = c.Error(err)
		return
	}

	frame, err := newFrame(Message{Type: TypeLoadComments, ActivityID: activityID, Data: comments})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Writer.Header().Set("Content-Type", sse.ContentType)
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	if err := encode(c.Writer, frame); err != nil {
		h.logger.InfoContext(ctx, "Failed to write comment stream", "activityId", activityID, "error", err)
		return
	}
	c.Writer.Flush()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case frame := <-s.send:
			return encode(w, frame) == nil
		case <-ticker.C:
			return sse.Encode(w, sse.Event{Event: TypePing, Data: "{}"}) == nil
		case <-s.done:
			return false
		case <-ctx.Done():
			return false
		}
	})
}

func encode(w io.Writer, frame Frame) error {
	return sse.Encode(w, sse.Event{Event: frame.Type, Data: string(frame.Payload)})
}
