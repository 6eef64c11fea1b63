package comment

import (
	"context"
	"time"

	"github.com/dhis2-sre/im-activities/internal/handler"
	"github.com/dhis2-sre/im-activities/pkg/event"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
	"github.com/dhis2-sre/im-activities/pkg/model"
)

type commentRepository interface {
	Create(ctx context.Context, comment *model.Comment, author *model.User) error
	FindByActivity(ctx context.Context, activityID string) ([]model.Comment, error)
}

type publisher interface {
	Publish(ctx context.Context, kind, activityID string, payload any)
}

func NewService(repository commentRepository, publisher publisher) *Service {
	return &Service{
		repository: repository,
		publisher:  publisher,
		now:        time.Now,
	}
}

type Service struct {
	repository commentRepository
	publisher  publisher
	now        func() time.Time
}

func Registrations(s *Service) []mediator.Registration {
	return []mediator.Registration{
		mediator.Handle(s.Add),
		mediator.Handle(s.List),
	}
}

func (s *Service) Add(ctx context.Context, request AddComment) (model.CommentDTO, error) {
	author, err := handler.GetUserFromContext(ctx)
	if err != nil {
		return model.CommentDTO{}, err
	}

	comment := &model.Comment{
		CreatedAt:  s.now().UTC().Truncate(time.Microsecond),
		Body:       request.Body,
		UserID:     author.ID,
		ActivityID: request.ActivityID,
	}
	if err := s.repository.Create(ctx, comment, author); err != nil {
		return model.CommentDTO{}, err
	}

	dto := model.NewCommentDTO(*comment)
	s.publisher.Publish(ctx, event.CommentCreated, request.ActivityID, dto)
	return dto, nil
}

func (s *Service) List(ctx context.Context, request ListComments) ([]model.CommentDTO, error) {
	comments, err := s.repository.FindByActivity(ctx, request.ActivityID)
	if err != nil {
		return nil, err
	}

	dtos := make([]model.CommentDTO, len(comments))
	for i, comment := range comments {
		dtos[i] = model.NewCommentDTO(comment)
	}
	return dtos, nil
}
