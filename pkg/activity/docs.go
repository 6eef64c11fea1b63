package activity

import "github.com/dhis2-sre/im-activities/pkg/model"

// swagger:response ActivityDTO
type _ struct {
	//in: body
	_ model.ActivityDTO
}

// swagger:parameters listActivities
type _ struct {
	// Only list activities starting at or after this time (RFC 3339)
	// in: query
	// required: false
	StartDate string `json:"startDate"`

	// Only list activities the current user attends (isGoing) or hosts (isHost)
	// in: query
	// required: false
	Filter string `json:"filter"`
}

// swagger:parameters findActivity updateActivity deleteActivity attendActivity transferHost
type _ struct {
	// in: path
	// required: true
	ID string `json:"id"`
}

// swagger:parameters createActivity updateActivity
type _ struct {
	// Activity details
	// in: body
	// required: true
	Body Details
}

// swagger:parameters transferHost
type _ struct {
	// New host
	// in: body
	// required: true
	Body transferHostRequest
}
