package activity_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dhis2-sre/im-activities/pkg/activity"
	"github.com/dhis2-sre/im-activities/pkg/authorization"
	"github.com/dhis2-sre/im-activities/pkg/comment"
	"github.com/dhis2-sre/im-activities/pkg/event"
	"github.com/dhis2-sre/im-activities/pkg/inttest"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/dhis2-sre/im-activities/pkg/validation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityHandler(t *testing.T) {
	t.Parallel()

	db := inttest.SetupDB(t)
	issuer := inttest.SetupAuthentication(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	activityRepository := activity.NewRepository(db)
	activityService := activity.NewService(activityRepository, event.NopPublisher{})
	commentService := comment.NewService(comment.NewRepository(db), event.NopPublisher{})

	validator, err := validation.New()
	require.NoError(t, err)
	registrations := append(activity.Registrations(activityService), comment.Registrations(commentService)...)
	pipeline, err := mediator.New(logger, []mediator.Behavior{
		validation.Behavior(validator),
		authorization.Behavior(logger, authorization.NewEngine(activityRepository)),
	}, registrations...)
	require.NoError(t, err)

	client := inttest.SetupHTTPServer(t, func(router *gin.RouterGroup) {
		activity.Routes(router, issuer.Middleware(), activity.NewHandler(pipeline))
		comment.Routes(router, issuer.Middleware(), comment.NewHandler(logger, pipeline, nopBroadcaster{}))
	})

	bob := model.User{ID: "bob", DisplayName: "Bob"}
	tom := model.User{ID: "tom", DisplayName: "Tom"}
	jane := model.User{ID: "jane", DisplayName: "Jane"}

	var created model.ActivityDTO
	client.PostJSON(t, "/activities", activityBody(t, "Film night"), &created, issuer.As(t, bob))
	require.NotEmpty(t, created.ID)
	require.Equal(t, "bob", created.HostID)
	require.Equal(t, "Bob", created.HostDisplayName)
	require.Len(t, created.Attendees, 1)

	t.Run("CreateInvalid", func(t *testing.T) {
		body := client.Do(t, http.MethodPost, "/activities", strings.NewReader(`{"category":"sports"}`), http.StatusBadRequest,
			issuer.As(t, bob), inttest.WithHeader("Content-Type", "application/json"))

		var response struct {
			Errors map[string][]string `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(body, &response))
		assert.Contains(t, response.Errors, "title")
		assert.Contains(t, response.Errors, "date")
		assert.Contains(t, response.Errors, "description")
		assert.Contains(t, response.Errors, "category")
		assert.Contains(t, response.Errors, "city")
		assert.Contains(t, response.Errors, "venue")
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		client.Do(t, http.MethodGet, "/activities", nil, http.StatusUnauthorized)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		client.Do(t, http.MethodGet, "/activities/00000000-0000-4000-8000-000000000000", nil, http.StatusNotFound, issuer.As(t, bob))
	})

	t.Run("JoinEditTransferDelete", func(t *testing.T) {
		var activityDTO model.ActivityDTO
		client.PostJSON(t, "/activities", activityBody(t, "Dinner"), &activityDTO, issuer.As(t, bob))
		path := "/activities/" + activityDTO.ID

		var attended model.ActivityDTO
		body := client.Do(t, http.MethodPost, path+"/attend", nil, http.StatusOK, issuer.As(t, tom))
		require.NoError(t, json.Unmarshal(body, &attended))
		require.Len(t, attended.Attendees, 2)

		var going []model.ActivityDTO
		client.GetJSON(t, "/activities?filter=isGoing", &going, issuer.As(t, tom))
		require.Len(t, going, 1)
		assert.Equal(t, activityDTO.ID, going[0].ID)

		var hosting []model.ActivityDTO
		client.GetJSON(t, "/activities?filter=isHost", &hosting, issuer.As(t, tom))
		assert.Empty(t, hosting)

		client.Do(t, http.MethodPut, path, activityBody(t, "Hijacked"), http.StatusForbidden,
			issuer.As(t, tom), inttest.WithHeader("Content-Type", "application/json"))
		client.Do(t, http.MethodDelete, path, nil, http.StatusForbidden, issuer.As(t, tom))
		client.Do(t, http.MethodDelete, path, nil, http.StatusForbidden, issuer.As(t, jane))

		var edited model.ActivityDTO
		body = client.Put(t, path, activityBody(t, "Late dinner"), issuer.As(t, bob))
		require.NoError(t, json.Unmarshal(body, &edited))
		assert.Equal(t, "Late dinner", edited.Title)

		client.Do(t, http.MethodPut, path+"/host", strings.NewReader(`{"userId":"jane"}`), http.StatusNotFound,
			issuer.As(t, bob), inttest.WithHeader("Content-Type", "application/json"))

		var transferred model.ActivityDTO
		body = client.Put(t, path+"/host", strings.NewReader(`{"userId":"tom"}`), issuer.As(t, bob))
		require.NoError(t, json.Unmarshal(body, &transferred))
		assert.Equal(t, "tom", transferred.HostID)

		// the former host lost the right immediately
		client.Do(t, http.MethodDelete, path, nil, http.StatusForbidden, issuer.As(t, bob))

		var commented model.CommentDTO
		client.PostJSON(t, path+"/comments", strings.NewReader(`{"body":"see you there"}`), &commented, issuer.As(t, jane))
		assert.Equal(t, "Jane", commented.DisplayName)

		client.Delete(t, path, issuer.As(t, tom))
		client.Do(t, http.MethodGet, path, nil, http.StatusNotFound, issuer.As(t, tom))
		client.Do(t, http.MethodGet, path+"/comments", nil, http.StatusNotFound, issuer.As(t, tom))
	})

	t.Run("HostCancels", func(t *testing.T) {
		path := "/activities/" + created.ID

		var cancelled model.ActivityDTO
		body := client.Do(t, http.MethodPost, path+"/attend", nil, http.StatusOK, issuer.As(t, bob))
		require.NoError(t, json.Unmarshal(body, &cancelled))
		assert.True(t, cancelled.IsCancelled)
		assert.Len(t, cancelled.Attendees, 1)
	})

	t.Run("CommentsOldestFirst", func(t *testing.T) {
		path := "/activities/" + created.ID + "/comments"
		var first, second model.CommentDTO
		client.PostJSON(t, path, strings.NewReader(`{"body":"first"}`), &first, issuer.As(t, tom))
		client.PostJSON(t, path, strings.NewReader(`{"body":"second"}`), &second, issuer.As(t, jane))

		var comments []model.CommentDTO
		client.GetJSON(t, path, &comments, issuer.As(t, bob))
		require.Len(t, comments, 2)
		assert.Equal(t, "first", comments[0].Body)
		assert.Equal(t, "second", comments[1].Body)
		assert.Equal(t, first, comments[0], "the pushed comment must equal the stored one")
		assert.Equal(t, second, comments[1])

		client.Do(t, http.MethodPost, path, strings.NewReader(`{"body":"   "}`), http.StatusBadRequest,
			issuer.As(t, tom), inttest.WithHeader("Content-Type", "application/json"))
	})
}

func activityBody(t *testing.T, title string) io.Reader {
	t.Helper()

	details := activity.Details{
		Title:       title,
		Date:        time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second),
		Description: "Bring friends",
		Category:    "food",
		City:        "Oslo",
		Venue:       "Mathallen",
		Latitude:    59.92,
		Longitude:   10.75,
	}
	body, err := json.Marshal(details)
	require.NoError(t, err)
	return strings.NewReader(string(body))
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastComment(context.Context, model.CommentDTO, string) error { return nil }
