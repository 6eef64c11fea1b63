// Package docs holds swagger definitions shared by all routes.
package docs

import "github.com/dhis2-sre/im-activities/internal/errdef"

// swagger:response
type Error struct {
	// The error message
	//in: body
	Message string
}

// swagger:response
type ValidationFailed struct {
	//in: body
	Body struct {
		// Every violated rule by field
		Errors errdef.Violations `json:"errors"`
	}
}
