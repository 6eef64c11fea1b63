package hub

// swagger:response
type Stream struct {
	// Server-sent events
	//in: body
	Body string
}

// swagger:parameters connectHub
type _ struct {
	// Join this activity right away
	// in: query
	// required: false
	ActivityID string `json:"activityId"`

	// Access token for clients which can't set the Authorization header
	// in: query
	// required: false
	AccessToken string `json:"access_token"`
}

// swagger:parameters streamComments
type _ struct {
	// in: path
	// required: true
	ID string `json:"id"`
}
