package comment

import (
	"context"
	"errors"
	"fmt"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/dhis2-sre/im-activities/pkg/user"
	"gorm.io/gorm"
)

//goland:noinspection GoExportedFuncWithUnexportedType
func NewRepository(db *gorm.DB) *repository {
	return &repository{db: db}
}

type repository struct {
	db *gorm.DB
}

// Create stores the comment and its author. The activity has to exist.
func (r repository) Create(ctx context.Context, comment *model.Comment, author *model.User) error {
	// only use ctx for values (logging) and not cancellation signals on cud operations for now. ctx
	// cancellation can lead to rollbacks which we should decide individually.
	ctx = context.WithoutCancel(ctx)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := user.Upsert(tx, author); err != nil {
			return err
		}

		err := tx.Omit("User").Create(comment).Error
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return errdef.NewNotFound("activity %q doesn't exist", comment.ActivityID)
		}
		if err != nil {
			return fmt.Errorf("failed to create comment: %v", err)
		}

		comment.User = *author
		return nil
	})
}

// FindByActivity returns the comments of the activity ordered by creation time with ties broken by
// id.
func (r repository) FindByActivity(ctx context.Context, activityID string) ([]model.Comment, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Activity{}).Where("id = ?", activityID).Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find activity: %v", err)
	}
	if count == 0 {
		return nil, errdef.NewNotFound("activity %q doesn't exist", activityID)
	}

	var comments []model.Comment
	err = r.db.
		WithContext(ctx).
		Preload("User").
		Where("activity_id = ?", activityID).
		Order("created_at, id").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find comments: %v", err)
	}

	return comments, nil
}
