package comment

import "github.com/dhis2-sre/im-activities/pkg/mediator"

var Requests = []mediator.Request{
	AddComment{},
	ListComments{},
}

// AddComment adds a comment by the acting user to an activity. Any authenticated user may comment.
type AddComment struct {
	ActivityID string `json:"activityId" validate:"required,uuid"`
	Body       string `json:"body" validate:"notblank,max=1000"`
}

func (AddComment) RequestName() string { return "AddComment" }

// ListComments lists the comments of an activity, oldest first.
type ListComments struct {
	ActivityID string `json:"activityId" validate:"required,uuid"`
}

func (ListComments) RequestName() string { return "ListComments" }
