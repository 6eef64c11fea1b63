package activity

import (
	"time"

	"github.com/dhis2-sre/im-activities/pkg/authorization"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
)

const (
	FilterIsGoing = "isGoing"
	FilterIsHost  = "isHost"
)

// Requests lists every request of this package. The transports send them all so each must have a
// registered handler.
var Requests = []mediator.Request{
	ListActivities{},
	GetActivity{},
	CreateActivity{},
	EditActivity{},
	DeleteActivity{},
	UpdateAttendance{},
	TransferHost{},
}

// Details are the user editable fields of an activity.
type Details struct {
	Title       string    `json:"title" validate:"required,max=100"`
	Date        time.Time `json:"date" validate:"required,future"`
	Description string    `json:"description" validate:"required"`
	Category    string    `json:"category" validate:"required,oneOf=drinks culture film food music travel"`
	City        string    `json:"city" validate:"required"`
	Venue       string    `json:"venue" validate:"required"`
	Latitude    float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64   `json:"longitude" validate:"gte=-180,lte=180"`
}

type ListActivities struct {
	StartDate *time.Time `json:"startDate"`
	Filter    string     `json:"filter" validate:"omitempty,oneOf=isGoing isHost"`
}

func (ListActivities) RequestName() string { return "ListActivities" }

type GetActivity struct {
	ID string `json:"id" validate:"required,uuid"`
}

func (GetActivity) RequestName() string { return "GetActivity" }

type CreateActivity struct {
	Details
}

func (CreateActivity) RequestName() string { return "CreateActivity" }

type EditActivity struct {
	ID string `json:"id" validate:"required,uuid"`
	Details
}

func (EditActivity) RequestName() string { return "EditActivity" }

func (r EditActivity) Policy() (string, authorization.Resource) {
	return authorization.ActivityHost, authorization.Resource{ActivityID: r.ID}
}

type DeleteActivity struct {
	ID string `json:"id" validate:"required,uuid"`
}

func (DeleteActivity) RequestName() string { return "DeleteActivity" }

func (r DeleteActivity) Policy() (string, authorization.Resource) {
	return authorization.ActivityHost, authorization.Resource{ActivityID: r.ID}
}

// UpdateAttendance toggles the acting user's attendance. The host toggles whether the activity is
// cancelled instead of leaving it.
type UpdateAttendance struct {
	ID string `json:"id" validate:"required,uuid"`
}

func (UpdateAttendance) RequestName() string { return "UpdateAttendance" }

// TransferHost makes another attendee the host of the activity.
type TransferHost struct {
	ID     string `json:"id" validate:"required,uuid"`
	UserID string `json:"userId" validate:"notblank"`
}

func (TransferHost) RequestName() string { return "TransferHost" }

func (r TransferHost) Policy() (string, authorization.Resource) {
	return authorization.ActivityHost, authorization.Resource{ActivityID: r.ID}
}
