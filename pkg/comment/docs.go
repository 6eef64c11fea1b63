package comment

import "github.com/dhis2-sre/im-activities/pkg/model"

// swagger:response CommentDTO
type _ struct {
	//in: body
	_ model.CommentDTO
}

// swagger:parameters listComments addComment
type _ struct {
	// in: path
	// required: true
	ID string `json:"id"`
}

// swagger:parameters addComment
type _ struct {
	// Comment
	// in: body
	// required: true
	Body addCommentRequest
}
