package activity

import (
	"context"
	"time"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/dhis2-sre/im-activities/internal/handler"
	"github.com/dhis2-sre/im-activities/pkg/event"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
	"github.com/dhis2-sre/im-activities/pkg/model"
)

type activityRepository interface {
	Create(ctx context.Context, activity *model.Activity, host *model.User) error
	Find(ctx context.Context, id string) (*model.Activity, error)
	FindAll(ctx context.Context, filter Filter) ([]model.Activity, error)
	Update(ctx context.Context, activity *model.Activity) error
	Delete(ctx context.Context, id string) error
	AddAttendee(ctx context.Context, attendee *model.Attendee, user *model.User) error
	RemoveAttendee(ctx context.Context, userID, activityID string) error
	TransferHost(ctx context.Context, activityID, userID string) error
}

type publisher interface {
	Publish(ctx context.Context, kind, activityID string, payload any)
}

func NewService(repository activityRepository, publisher publisher) *Service {
	return &Service{
		repository: repository,
		publisher:  publisher,
		now:        time.Now,
	}
}

// Service handles the activity requests. Validation and authorization already happened by the time
// any of its methods is called.
type Service struct {
	repository activityRepository
	publisher  publisher
	now        func() time.Time
}

// Registrations returns the pipeline handlers for every request in Requests.
func Registrations(s *Service) []mediator.Registration {
	return []mediator.Registration{
		mediator.Handle(s.List),
		mediator.Handle(s.Get),
		mediator.Handle(s.Create),
		mediator.Handle(s.Edit),
		mediator.Handle(s.Delete),
		mediator.Handle(s.UpdateAttendance),
		mediator.Handle(s.TransferHost),
	}
}

func (s *Service) List(ctx context.Context, request ListActivities) ([]model.ActivityDTO, error) {
	filter := Filter{}
	if request.StartDate != nil {
		filter.StartDate = *request.StartDate
	}

	if request.Filter != "" {
		user, err := handler.GetUserFromContext(ctx)
		if err != nil {
			return nil, err
		}
		filter.UserID = user.ID
		filter.HostOnly = request.Filter == FilterIsHost
	}

	activities, err := s.repository.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}

	dtos := make([]model.ActivityDTO, len(activities))
	for i, activity := range activities {
		dtos[i] = model.NewActivityDTO(activity)
	}
	return dtos, nil
}

func (s *Service) Get(ctx context.Context, request GetActivity) (model.ActivityDTO, error) {
	activity, err := s.repository.Find(ctx, request.ID)
	if err != nil {
		return model.ActivityDTO{}, err
	}
	return model.NewActivityDTO(*activity), nil
}

// Create stores a new activity with the acting user as its host.
func (s *Service) Create(ctx context.Context, request CreateActivity) (model.ActivityDTO, error) {
	user, err := handler.GetUserFromContext(ctx)
	if err != nil {
		return model.ActivityDTO{}, err
	}

	activity := &model.Activity{}
	apply(activity, request.Details)
	activity.Attendees = []model.Attendee{
		{
			UserID:     user.ID,
			User:       *user,
			IsHost:     true,
			DateJoined: s.now().UTC().Truncate(time.Microsecond),
		},
	}

	if err := s.repository.Create(ctx, activity, user); err != nil {
		return model.ActivityDTO{}, err
	}

	dto := model.NewActivityDTO(*activity)
	s.publisher.Publish(ctx, event.ActivityCreated, activity.ID, dto)
	return dto, nil
}

func (s *Service) Edit(ctx context.Context, request EditActivity) (model.ActivityDTO, error) {
	activity, err := s.repository.Find(ctx, request.ID)
	if err != nil {
		return model.ActivityDTO{}, err
	}

	apply(activity, request.Details)
	if err := s.repository.Update(ctx, activity); err != nil {
		return model.ActivityDTO{}, err
	}

	dto := model.NewActivityDTO(*activity)
	s.publisher.Publish(ctx, event.ActivityUpdated, activity.ID, dto)
	return dto, nil
}

func (s *Service) Delete(ctx context.Context, request DeleteActivity) (struct{}, error) {
	if err := s.repository.Delete(ctx, request.ID); err != nil {
		return struct{}{}, err
	}

	s.publisher.Publish(ctx, event.ActivityDeleted, request.ID, nil)
	return struct{}{}, nil
}

// UpdateAttendance toggles the cancellation of the activity if the acting user is its host. Otherwise
// the user leaves the activity if attending and joins it if not.
func (s *Service) UpdateAttendance(ctx context.Context, request UpdateAttendance) (model.ActivityDTO, error) {
	user, err := handler.GetUserFromContext(ctx)
	if err != nil {
		return model.ActivityDTO{}, err
	}

	activity, err := s.repository.Find(ctx, request.ID)
	if err != nil {
		return model.ActivityDTO{}, err
	}

	attendee, attending := activity.Attendee(user.ID)
	switch {
	case attending && attendee.IsHost:
		activity.IsCancelled = !activity.IsCancelled
		err = s.repository.Update(ctx, activity)
	case attending:
		err = s.repository.RemoveAttendee(ctx, user.ID, activity.ID)
	default:
		err = s.repository.AddAttendee(ctx, &model.Attendee{
			UserID:     user.ID,
			ActivityID: activity.ID,
			DateJoined: s.now().UTC().Truncate(time.Microsecond),
		}, user)
	}
	if err != nil {
		return model.ActivityDTO{}, err
	}

	updated, err := s.repository.Find(ctx, request.ID)
	if err != nil {
		return model.ActivityDTO{}, err
	}

	dto := model.NewActivityDTO(*updated)
	s.publisher.Publish(ctx, event.AttendanceUpdated, activity.ID, dto)
	return dto, nil
}

// TransferHost makes the attendee with the given user id the host of the activity.
func (s *Service) TransferHost(ctx context.Context, request TransferHost) (model.ActivityDTO, error) {
	activity, err := s.repository.Find(ctx, request.ID)
	if err != nil {
		return model.ActivityDTO{}, err
	}

	attendee, ok := activity.Attendee(request.UserID)
	if !ok {
		return model.ActivityDTO{}, errdef.NewNotFound("user %q doesn't attend activity %q", request.UserID, request.ID)
	}
	if attendee.IsHost {
		return model.NewActivityDTO(*activity), nil
	}

	if err := s.repository.TransferHost(ctx, request.ID, request.UserID); err != nil {
		return model.ActivityDTO{}, err
	}

	updated, err := s.repository.Find(ctx, request.ID)
	if err != nil {
		return model.ActivityDTO{}, err
	}

	dto := model.NewActivityDTO(*updated)
	s.publisher.Publish(ctx, event.ActivityUpdated, activity.ID, dto)
	return dto, nil
}

func apply(activity *model.Activity, details Details) {
	activity.Title = details.Title
	activity.Date = details.Date.Truncate(time.Microsecond)
	activity.Description = details.Description
	activity.Category = details.Category
	activity.City = details.City
	activity.Venue = details.Venue
	activity.Latitude = details.Latitude
	activity.Longitude = details.Longitude
}
