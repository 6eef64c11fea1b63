// Package authorization evaluates named policies for the acting user against the current persisted
// state. Decisions are never cached: a host transfer or an attendee leaving takes effect on the very
// next request.
package authorization

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
	"github.com/dhis2-sre/im-activities/pkg/model"
)

// ActivityHost allows the host attendee of the referenced activity.
const ActivityHost = "activity-host"

type Decision int

const (
	Denied Decision = iota
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "Allowed"
	}
	return "Denied"
}

// Resource references the domain object a policy is evaluated against.
type Resource struct {
	ActivityID string
}

// Guarded is implemented by requests which may only be handled if the acting user satisfies a policy.
type Guarded interface {
	Policy() (string, Resource)
}

// Policy decides whether user may act on resource.
type Policy func(ctx context.Context, user *model.User, resource Resource) (Decision, error)

type attendeeRepository interface {
	FindAttendee(ctx context.Context, userID, activityID string) (*model.Attendee, error)
}

func NewEngine(attendees attendeeRepository) *Engine {
	return &Engine{
		policies: map[string]Policy{
			ActivityHost: isActivityHost(attendees),
		},
	}
}

type Engine struct {
	policies map[string]Policy
}

// Evaluate evaluates the policy of the given name. An error is returned if the policy doesn't exist
// or the state needed to evaluate it could not be loaded, the decision is Denied in both cases.
func (e *Engine) Evaluate(ctx context.Context, policyName string, user *model.User, resource Resource) (Decision, error) {
	policy, ok := e.policies[policyName]
	if !ok {
		return Denied, fmt.Errorf("unknown policy %q", policyName)
	}
	return policy(ctx, user, resource)
}

func isActivityHost(attendees attendeeRepository) Policy {
	return func(ctx context.Context, user *model.User, resource Resource) (Decision, error) {
		if user == nil || user.ID == "" || resource.ActivityID == "" {
			return Denied, nil
		}

		attendee, err := attendees.FindAttendee(ctx, user.ID, resource.ActivityID)
		if errdef.IsNotFound(err) {
			return Denied, nil
		}
		if err != nil {
			return Denied, err
		}

		if attendee.IsHost {
			return Allowed, nil
		}
		return Denied, nil
	}
}

// Behavior returns the pipeline behavior rejecting guarded requests with an errdef.Forbidden error
// unless the acting user satisfies the request's policy. It must run after validation so policies
// only ever see well-formed resources.
func Behavior(logger *slog.Logger, engine *Engine) mediator.Behavior {
	return func(ctx context.Context, request mediator.Request, next mediator.Next) (any, error) {
		guarded, ok := request.(Guarded)
		if !ok {
			return next(ctx, request)
		}

		policyName, resource := guarded.Policy()
		user, _ := model.GetUserFromContext(ctx)

		decision, err := engine.Evaluate(ctx, policyName, user, resource)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate policy %q: %w", policyName, err)
		}

		if decision != Allowed {
			logger.WarnContext(ctx, "Policy denied request", "policy", policyName, "request", request.RequestName(), "activity", resource.ActivityID)
			return nil, errdef.NewForbidden("%s requires policy %q to be satisfied for activity %q", request.RequestName(), policyName, resource.ActivityID)
		}

		return next(ctx, request)
	}
}
