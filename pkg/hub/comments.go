package hub

import (
	"context"

	"github.com/dhis2-sre/im-activities/pkg/model"
)

// BroadcastComment sends a comment created outside the hub, like over HTTP, to everyone watching its
// activity.
func (h *Hub) BroadcastComment(ctx context.Context, comment model.CommentDTO, activityID string) error {
	return h.Broadcast(ctx, activityID, Message{Type: TypeCommentCreated, ActivityID: activityID, Data: comment})
}
