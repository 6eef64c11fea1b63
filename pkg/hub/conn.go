package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/dhis2-sre/im-activities/internal/middleware"
	"github.com/dhis2-sre/im-activities/pkg/comment"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBufferSize = 256
)

// Conn is a WebSocket connection to the hub. Inbound messages are processed one at a time in the
// order they were received.
type Conn struct {
	id         string
	ws         *websocket.Conn
	hub        *Hub
	dispatcher mediator.Dispatcher
	logger     *slog.Logger
	send       chan Frame
	done       chan struct{}
	closeOnce  sync.Once
}

func newConn(ws *websocket.Conn, hub *Hub, dispatcher mediator.Dispatcher, logger *slog.Logger) *Conn {
	return &Conn{
		id:         uuid.NewString(),
		ws:         ws,
		hub:        hub,
		dispatcher: dispatcher,
		logger:     logger,
		send:       make(chan Frame, sendBufferSize),
		done:       make(chan struct{}),
	}
}

func (c *Conn) ID() string {
	return c.id
}

// Send never blocks. It returns false if the connection is closed or its buffer is full.
func (c *Conn) Send(frame Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close makes the write pump send a close message and stop. The send channel is never closed so
// concurrent calls to Send are safe.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// serve runs until the client disconnects or the connection is closed. ctx carries the acting user
// and is used for every request dispatched on behalf of the client.
func (c *Conn) serve(ctx context.Context, activityID string) {
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writePump(ctx)
	}()

	defer func() {
		if err := c.hub.Disconnect(context.WithoutCancel(ctx), c); err != nil {
			c.logger.DebugContext(ctx, "Failed to disconnect from hub", "connection", c.id, "error", err)
		}
		c.Close()
		<-written
		_ = c.ws.Close()
		c.logger.InfoContext(ctx, "Hub connection closed", "connection", c.id)
	}()

	c.logger.InfoContext(ctx, "Hub connection opened", "connection", c.id)

	if activityID != "" {
		c.handle(ctx, Inbound{Type: TypeJoin, ActivityID: activityID})
	}

	c.readPump(ctx)
}

func (c *Conn) readPump(ctx context.Context) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.WarnContext(ctx, "Hub connection closed unexpectedly", "connection", c.id, "error", err)
			}
			return
		}

		select {
		case <-c.done:
			return
		default:
		}

		var inbound Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			c.reply(ctx, errorMessage(inbound, errdef.NewBadRequest("malformed message: %v", err), c.correlationID(ctx)))
			continue
		}

		c.handle(ctx, inbound)
	}
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame.Payload); err != nil {
				c.logger.InfoContext(ctx, "Failed to write to hub connection", "connection", c.id, "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
			// unblock the read pump if the client never answers the close message
			_ = c.ws.SetReadDeadline(time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Conn) handle(ctx context.Context, inbound Inbound) {
	switch inbound.Type {
	case TypeJoin:
		c.join(ctx, inbound)
	case TypeLeave:
		c.leave(ctx, inbound)
	case TypePostComment:
		c.postComment(ctx, inbound)
	case TypePing:
		c.reply(ctx, Message{Type: TypePong, RequestID: inbound.RequestID})
	default:
		c.reply(ctx, errorMessage(inbound, errdef.NewBadRequest("unknown message type %q", inbound.Type), c.correlationID(ctx)))
	}
}

// join registers the connection before loading the comments so no comment posted in between is
// missed. A comment may therefore be delivered both as commentCreated and within loadComments.
// Failing to load the comments only undoes a membership this join added.
func (c *Conn) join(ctx context.Context, inbound Inbound) {
	added, err := c.hub.Join(ctx, inbound.ActivityID, c)
	if err != nil {
		c.reply(ctx, errorMessage(inbound, err, c.correlationID(ctx)))
		return
	}

	comments, err := mediator.Send[[]model.CommentDTO](ctx, c.dispatcher, comment.ListComments{ActivityID: inbound.ActivityID})
	if err != nil {
		if added {
			if err := c.hub.Leave(ctx, inbound.ActivityID, c); err != nil {
				c.logger.DebugContext(ctx, "Failed to leave hub group", "connection", c.id, "activityId", inbound.ActivityID, "error", err)
			}
		}
		c.reply(ctx, errorMessage(inbound, err, c.correlationID(ctx)))
		return
	}

	c.reply(ctx, Message{Type: TypeJoined, ActivityID: inbound.ActivityID, RequestID: inbound.RequestID})
	c.reply(ctx, Message{Type: TypeLoadComments, ActivityID: inbound.ActivityID, RequestID: inbound.RequestID, Data: comments})
}

func (c *Conn) leave(ctx context.Context, inbound Inbound) {
	if err := c.hub.Leave(ctx, inbound.ActivityID, c); err != nil {
		c.reply(ctx, errorMessage(inbound, err, c.correlationID(ctx)))
		return
	}
	c.reply(ctx, Message{Type: TypeLeft, ActivityID: inbound.ActivityID, RequestID: inbound.RequestID})
}

func (c *Conn) postComment(ctx context.Context, inbound Inbound) {
	request := comment.AddComment{ActivityID: inbound.ActivityID, Body: inbound.Body}
	created, err := mediator.Send[model.CommentDTO](ctx, c.dispatcher, request)
	if err != nil {
		c.reply(ctx, errorMessage(inbound, err, c.correlationID(ctx)))
		return
	}

	message := Message{Type: TypeCommentCreated, ActivityID: inbound.ActivityID, Data: created}
	if err := c.hub.Broadcast(ctx, inbound.ActivityID, message); err != nil {
		c.logger.ErrorContext(ctx, "Failed to broadcast comment", "connection", c.id, "activityId", inbound.ActivityID, "comment", created.ID, "error", err)
	}
}

// reply sends message to this connection only. A connection which can't keep up is closed.
func (c *Conn) reply(ctx context.Context, message Message) {
	frame, err := newFrame(message)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to create reply", "connection", c.id, "error", err)
		return
	}

	if !c.Send(frame) {
		c.logger.WarnContext(ctx, "Closing hub connection which can't take more frames", "connection", c.id, "type", message.Type)
		c.Close()
	}
}

func (c *Conn) correlationID(ctx context.Context) string {
	id, _ := middleware.GetCorrelationID(ctx)
	return id
}
