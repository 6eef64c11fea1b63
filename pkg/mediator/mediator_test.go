package mediator_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/dhis2-sre/im-activities/pkg/authorization"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/dhis2-sre/im-activities/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct {
	Message string `json:"message" validate:"required"`
}

func (ping) RequestName() string { return "Ping" }

type unregistered struct{}

func (unregistered) RequestName() string { return "Unregistered" }

type guardedPing struct {
	ActivityID string `json:"activityId" validate:"required,uuid"`
}

func (guardedPing) RequestName() string { return "GuardedPing" }

func (g guardedPing) Policy() (string, authorization.Resource) {
	return authorization.ActivityHost, authorization.Resource{ActivityID: g.ActivityID}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipeline_Dispatch(t *testing.T) {
	pipeline, err := mediator.New(discardLogger(), nil,
		mediator.Handle(func(ctx context.Context, request ping) (string, error) {
			return "pong: " + request.Message, nil
		}),
	)
	require.NoError(t, err)

	response, err := mediator.Send[string](context.Background(), pipeline, ping{Message: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "pong: hi", response)
}

func TestPipeline_Dispatch_NoHandlerFound(t *testing.T) {
	pipeline, err := mediator.New(discardLogger(), nil)
	require.NoError(t, err)

	_, err = pipeline.Dispatch(context.Background(), unregistered{})

	require.Error(t, err)
	assert.True(t, errdef.IsNoHandlerFound(err))
}

func TestNew_DuplicateRegistration(t *testing.T) {
	handler := func(ctx context.Context, request ping) (string, error) { return "", nil }

	_, err := mediator.New(discardLogger(), nil, mediator.Handle(handler), mediator.Handle(handler))

	require.ErrorContains(t, err, `duplicate handler registered for "Ping"`)
}

func TestNew_InvalidRegistration(t *testing.T) {
	_, err := mediator.New(discardLogger(), nil, mediator.Registration{})

	require.Error(t, err)
}

func TestPipeline_Verify(t *testing.T) {
	pipeline, err := mediator.New(discardLogger(), nil,
		mediator.Handle(func(ctx context.Context, request ping) (string, error) { return "", nil }),
	)
	require.NoError(t, err)

	require.NoError(t, pipeline.Verify(ping{}))

	err = pipeline.Verify(ping{}, unregistered{})
	require.Error(t, err)
	assert.True(t, errdef.IsNoHandlerFound(err))
	assert.Contains(t, err.Error(), "Unregistered")
}

func TestPipeline_Dispatch_BehaviorOrder(t *testing.T) {
	var calls []string
	behavior := func(name string) mediator.Behavior {
		return func(ctx context.Context, request mediator.Request, next mediator.Next) (any, error) {
			calls = append(calls, name+" before")
			response, err := next(ctx, request)
			calls = append(calls, name+" after")
			return response, err
		}
	}
	pipeline, err := mediator.New(discardLogger(), []mediator.Behavior{behavior("first"), behavior("second")},
		mediator.Handle(func(ctx context.Context, request ping) (string, error) {
			calls = append(calls, "handler")
			return "", nil
		}),
	)
	require.NoError(t, err)

	_, err = pipeline.Dispatch(context.Background(), ping{})

	require.NoError(t, err)
	assert.Equal(t, []string{"first before", "second before", "handler", "second after", "first after"}, calls)
}

func TestPipeline_Dispatch_BehaviorShortCircuits(t *testing.T) {
	handlerCalled := false
	reject := func(ctx context.Context, request mediator.Request, next mediator.Next) (any, error) {
		return nil, errdef.NewForbidden("nope")
	}
	pipeline, err := mediator.New(discardLogger(), []mediator.Behavior{reject},
		mediator.Handle(func(ctx context.Context, request ping) (string, error) {
			handlerCalled = true
			return "", nil
		}),
	)
	require.NoError(t, err)

	_, err = pipeline.Dispatch(context.Background(), ping{})

	assert.True(t, errdef.IsForbidden(err))
	assert.False(t, handlerCalled)
}

func TestPipeline_Dispatch_UnexpectedErrorIsUnavailable(t *testing.T) {
	cause := errors.New("connection reset by peer")
	pipeline, err := mediator.New(discardLogger(), nil,
		mediator.Handle(func(ctx context.Context, request ping) (string, error) {
			return "", cause
		}),
	)
	require.NoError(t, err)

	_, err = pipeline.Dispatch(context.Background(), ping{})

	require.Error(t, err)
	assert.True(t, errdef.IsUnavailable(err))
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, err.Error(), "connection reset")
}

func TestPipeline_Dispatch_ClassifiedErrorIsKept(t *testing.T) {
	pipeline, err := mediator.New(discardLogger(), nil,
		mediator.Handle(func(ctx context.Context, request ping) (string, error) {
			return "", fmt.Errorf("wrapped: %w", errdef.NewNotFound("activity %q doesn't exist", "1"))
		}),
	)
	require.NoError(t, err)

	_, err = pipeline.Dispatch(context.Background(), ping{})

	assert.True(t, errdef.IsNotFound(err))
	assert.False(t, errdef.IsUnavailable(err))
}

func TestPipeline_Dispatch_TimeoutIsUnavailable(t *testing.T) {
	pipeline, err := mediator.New(discardLogger(), nil,
		mediator.Handle(func(ctx context.Context, request ping) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
	)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pipeline.Dispatch(ctx, ping{})

	assert.True(t, errdef.IsUnavailable(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Dispatch_PanicIsUnavailable(t *testing.T) {
	pipeline, err := mediator.New(discardLogger(), nil,
		mediator.Handle(func(ctx context.Context, request ping) (string, error) {
			panic("boom")
		}),
	)
	require.NoError(t, err)

	response, err := pipeline.Dispatch(context.Background(), ping{})

	assert.Nil(t, response)
	assert.True(t, errdef.IsUnavailable(err))
}

func TestSend_UnexpectedResponseType(t *testing.T) {
	pipeline, err := mediator.New(discardLogger(), nil,
		mediator.Handle(func(ctx context.Context, request ping) (int, error) {
			return 1, nil
		}),
	)
	require.NoError(t, err)

	_, err = mediator.Send[string](context.Background(), pipeline, ping{})

	assert.True(t, errdef.IsUnavailable(err))
}

type attendees map[string]*model.Attendee

func (a attendees) FindAttendee(ctx context.Context, userID, activityID string) (*model.Attendee, error) {
	attendee, ok := a[userID+"/"+activityID]
	if !ok {
		return nil, errdef.NewNotFound("attendee not found")
	}
	return attendee, nil
}

type countingAttendees struct {
	attendees
	calls int
}

func (c *countingAttendees) FindAttendee(ctx context.Context, userID, activityID string) (*model.Attendee, error) {
	c.calls++
	return c.attendees.FindAttendee(ctx, userID, activityID)
}

func newGuardedPipeline(t *testing.T, repository *countingAttendees, handlerCalled *bool) *mediator.Pipeline {
	t.Helper()

	validator, err := validation.New()
	require.NoError(t, err)
	engine := authorization.NewEngine(repository)
	pipeline, err := mediator.New(discardLogger(),
		[]mediator.Behavior{
			validation.Behavior(validator),
			authorization.Behavior(discardLogger(), engine),
		},
		mediator.Handle(func(ctx context.Context, request guardedPing) (string, error) {
			*handlerCalled = true
			return "ok", nil
		}),
	)
	require.NoError(t, err)
	return pipeline
}

func TestPipeline_Dispatch_ValidationRunsBeforeAuthorization(t *testing.T) {
	repository := &countingAttendees{attendees: attendees{}}
	handlerCalled := false
	pipeline := newGuardedPipeline(t, repository, &handlerCalled)
	ctx := model.NewContextWithUser(context.Background(), &model.User{ID: "alice"})

	_, err := pipeline.Dispatch(ctx, guardedPing{ActivityID: "not-a-uuid"})

	assert.True(t, errdef.IsValidationFailed(err))
	assert.Equal(t, 0, repository.calls, "authorization must not see unvalidated input")
	assert.False(t, handlerCalled)
}

func TestPipeline_Dispatch_DeniedNeverReachesHandler(t *testing.T) {
	activityID := "6f1f3f4e-3c1b-4c5e-9a7b-2f1d1c0e9b8a"
	repository := &countingAttendees{attendees: attendees{
		"alice/" + activityID: {UserID: "alice", ActivityID: activityID, IsHost: true},
		"bob/" + activityID:   {UserID: "bob", ActivityID: activityID},
	}}
	handlerCalled := false
	pipeline := newGuardedPipeline(t, repository, &handlerCalled)

	bob := model.NewContextWithUser(context.Background(), &model.User{ID: "bob"})
	_, err := pipeline.Dispatch(bob, guardedPing{ActivityID: activityID})
	assert.True(t, errdef.IsForbidden(err))
	assert.False(t, handlerCalled)

	_, err = pipeline.Dispatch(context.Background(), guardedPing{ActivityID: activityID})
	assert.True(t, errdef.IsForbidden(err), "requests without an acting user are denied")
	assert.False(t, handlerCalled)

	alice := model.NewContextWithUser(context.Background(), &model.User{ID: "alice"})
	response, err := pipeline.Dispatch(alice, guardedPing{ActivityID: activityID})
	require.NoError(t, err)
	assert.Equal(t, "ok", response)
	assert.True(t, handlerCalled)
}
