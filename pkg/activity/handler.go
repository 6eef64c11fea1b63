package activity

import (
	"net/http"
	"time"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/dhis2-sre/im-activities/internal/handler"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/gin-gonic/gin"
)

func NewHandler(dispatcher mediator.Dispatcher) Handler {
	return Handler{dispatcher: dispatcher}
}

// Handler translates HTTP requests into pipeline requests.
type Handler struct {
	dispatcher mediator.Dispatcher
}

func (h Handler) List(c *gin.Context) {
	// swagger:route GET /activities listActivities
	//
	// List activities
	//
	// List activities ordered by date. Use startDate to skip earlier activities and filter to only list the ones the current user attends (isGoing) or hosts (isHost).
	//
	// responses:
	//   200: []ActivityDTO
	//   400: Error
	//   401: Error
	//   403: Error
	//
	// security:
	//   oauth2:
	request := ListActivities{Filter: c.Query("filter")}
	if startDate := c.Query("startDate"); startDate != "" {
		date, err := time.Parse(time.RFC3339, startDate)
		if err != nil {
			_ = c.Error(errdef.NewBadRequest("startDate must be an RFC 3339 timestamp: %v", err))
			return
		}
		request.StartDate = &date
	}

	activities, err := mediator.Send[[]model.ActivityDTO](c.Request.Context(), h.dispatcher, request)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, activities)
}

func (h Handler) Find(c *gin.Context) {
	// swagger:route GET /activities/{id} findActivity
	//
	// Find activity
	//
	// Find activity by id
	//
	// responses:
	//   200: ActivityDTO
	//   400: Error
	//   401: Error
	//   404: Error
	//
	// security:
	//   oauth2:
	id, ok := handler.GetPathParameter(c, "id")
	if !ok {
		return
	}

	activity, err := mediator.Send[model.ActivityDTO](c.Request.Context(), h.dispatcher, GetActivity{ID: id})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, activity)
}

func (h Handler) Create(c *gin.Context) {
	// swagger:route POST /activities createActivity
	//
	// Create activity
	//
	// Create an activity hosted by the current user
	//
	// responses:
	//   201: ActivityDTO
	//   400: Error
	//   401: Error
	//   415: Error
	//
	// security:
	//   oauth2:
	var request CreateActivity
	if err := handler.DataBinder(c, &request); err != nil {
		_ = c.Error(err)
		return
	}

	activity, err := mediator.Send[model.ActivityDTO](c.Request.Context(), h.dispatcher, request)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, activity)
}

func (h Handler) Update(c *gin.Context) {
	// swagger:route PUT /activities/{id} updateActivity
	//
	// Update activity
	//
	// Update activity details. Only the host may update an activity.
	//
	// responses:
	//   200: ActivityDTO
	//   400: Error
	//   401: Error
	//   403: Error
	//   404: Error
	//   415: Error
	//
	// security:
	//   oauth2:
	id, ok := handler.GetPathParameter(c, "id")
	if !ok {
		return
	}

	var details Details
	if err := handler.DataBinder(c, &details); err != nil {
		_ = c.Error(err)
		return
	}

	activity, err := mediator.Send[model.ActivityDTO](c.Request.Context(), h.dispatcher, EditActivity{ID: id, Details: details})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, activity)
}

func (h Handler) Delete(c *gin.Context) {
	// swagger:route DELETE /activities/{id} deleteActivity
	//
	// Delete activity
	//
	// Delete activity together with its attendees and comments. Only the host may delete an activity.
	//
	// responses:
	//   202:
	//   400: Error
	//   401: Error
	//   403: Error
	//   404: Error
	//
	// security:
	//   oauth2:
	id, ok := handler.GetPathParameter(c, "id")
	if !ok {
		return
	}

	_, err := mediator.Send[struct{}](c.Request.Context(), h.dispatcher, DeleteActivity{ID: id})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (h Handler) Attend(c *gin.Context) {
	// swagger:route POST /activities/{id}/attend attendActivity
	//
	// Update attendance
	//
	// Join or leave the activity. The host cancels or reinstates the activity instead.
	//
	// responses:
	//   200: ActivityDTO
	//   400: Error
	//   401: Error
	//   404: Error
	//
	// security:
	//   oauth2:
	id, ok := handler.GetPathParameter(c, "id")
	if !ok {
		return
	}

	activity, err := mediator.Send[model.ActivityDTO](c.Request.Context(), h.dispatcher, UpdateAttendance{ID: id})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, activity)
}

type transferHostRequest struct {
	UserID string `json:"userId"`
}

func (h Handler) TransferHost(c *gin.Context) {
	// swagger:route PUT /activities/{id}/host transferHost
	//
	// Transfer host
	//
	// Make another attendee the host of the activity. Only the host may transfer the activity.
	//
	// responses:
	//   200: ActivityDTO
	//   400: Error
	//   401: Error
	//   403: Error
	//   404: Error
	//   415: Error
	//
	// security:
	//   oauth2:
	id, ok := handler.GetPathParameter(c, "id")
	if !ok {
		return
	}

	var request transferHostRequest
	if err := handler.DataBinder(c, &request); err != nil {
		_ = c.Error(err)
		return
	}

	activity, err := mediator.Send[model.ActivityDTO](c.Request.Context(), h.dispatcher, TransferHost{ID: id, UserID: request.UserID})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, activity)
}
