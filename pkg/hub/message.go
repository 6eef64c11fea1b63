package hub

import (
	"errors"
	"fmt"

	"github.com/dhis2-sre/im-activities/internal/errdef"
)

// Inbound message types
const (
	TypeJoin        = "join"
	TypeLeave       = "leave"
	TypePostComment = "postComment"
	TypePing        = "ping"
)

// Outbound message types
const (
	TypeJoined         = "joined"
	TypeLeft           = "left"
	TypeLoadComments   = "loadComments"
	TypeCommentCreated = "commentCreated"
	TypeError          = "error"
	TypePong           = "pong"
)

// Inbound is a message sent by a client.
type Inbound struct {
	Type       string `json:"type"`
	ActivityID string `json:"activityId,omitempty"`
	Body       string `json:"body,omitempty"`
	// RequestID is optional and echoed on the reply so clients can correlate errors.
	RequestID string `json:"requestId,omitempty"`
}

// Message is a message sent to clients.
type Message struct {
	Type       string `json:"type"`
	ActivityID string `json:"activityId,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// Error is the data of an error message.
type Error struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Errors  errdef.Violations `json:"errors,omitempty"`
}

func errorMessage(inbound Inbound, err error, correlationID string) Message {
	return Message{
		Type:       TypeError,
		ActivityID: inbound.ActivityID,
		RequestID:  inbound.RequestID,
		Data:       newError(err, correlationID),
	}
}

func newError(err error, correlationID string) Error {
	violations, _ := errdef.GetViolations(err)
	kind := errorKind(err)

	message := err.Error()
	switch kind {
	case "ValidationFailed":
		message = "validation failed"
	case "Unavailable":
		message = fmt.Sprintf("%s. Please try again later and send us the id %q if the problem persists", message, correlationID)
	case "Internal":
		message = fmt.Sprintf("something went wrong. We'll look into it if you send us the id %q :)", correlationID)
	}

	return Error{Kind: kind, Message: message, Errors: violations}
}

func errorKind(err error) string {
	switch {
	case errdef.IsValidationFailed(err):
		return "ValidationFailed"
	case errdef.IsBadRequest(err):
		return "BadRequest"
	case errdef.IsUnauthorized(err):
		return "Unauthorized"
	case errdef.IsForbidden(err):
		return "Forbidden"
	case errdef.IsNotFound(err):
		return "NotFound"
	case errdef.IsDuplicated(err), errdef.IsConflict(err):
		return "Conflict"
	case errdef.IsUnavailable(err), errors.Is(err, ErrStopped):
		return "Unavailable"
	default:
		return "Internal"
	}
}
