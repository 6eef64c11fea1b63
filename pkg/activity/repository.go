package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// Filter narrows down the activities returned by FindAll.
type Filter struct {
	StartDate time.Time
	// UserID restricts the result to activities the user attends, only hosted ones if HostOnly is set.
	UserID   string
	HostOnly bool
}

// Create stores the activity together with its host attendee in one transaction.
func (r repository) Create(ctx context.Context, activity *model.Activity, host *model.User) error {
	// only use ctx for values (logging) and not cancellation signals on cud operations for now. ctx
	// cancellation can lead to rollbacks which we should decide individually.
	ctx = context.WithoutCancel(ctx)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := user.Upsert(tx, host); err != nil {
			return err
		}

		if err := tx.Create(activity).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errdef.NewDuplicated("activity %q already exists", activity.ID)
			}
			return fmt.Errorf("failed to create activity: %v", err)
		}

		return nil
	})
}

func (r repository) Find(ctx context.Context, id string) (*model.Activity, error) {
	var activity *model.Activity
	err := r.db.
		WithContext(ctx).
		Preload("Attendees", func(db *gorm.DB) *gorm.DB {
			return db.Order("attendees.date_joined, attendees.user_id")
		}).
		Preload("Attendees.User").
		First(&activity, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errdef.NewNotFound("activity %q doesn't exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find activity: %v", err)
	}

	return activity, nil
}

func (r repository) FindAll(ctx context.Context, filter Filter) ([]model.Activity, error) {
	query := r.db.
		WithContext(ctx).
		Preload("Attendees", func(db *gorm.DB) *gorm.DB {
			return db.Order("attendees.date_joined, attendees.user_id")
		}).
		Preload("Attendees.User")

	if !filter.StartDate.IsZero() {
		query = query.Where("date >= ?", filter.StartDate)
	}

	if filter.UserID != "" {
		attending := r.db.Model(&model.Attendee{}).Select("activity_id").Where("user_id = ?", filter.UserID)
		if filter.HostOnly {
			attending = attending.Where("is_host = ?", true)
		}
		query = query.Where("id IN (?)", attending)
	}

	var activities []model.Activity
	err := query.Order("date, id").Find(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find activities: %v", err)
	}

	return activities, nil
}

// Update saves the editable fields of the activity.
func (r repository) Update(ctx context.Context, activity *model.Activity) error {
	ctx = context.WithoutCancel(ctx)

	result := r.db.
		WithContext(ctx).
		Model(&model.Activity{ID: activity.ID}).
		Select("title", "date", "description", "category", "city", "venue", "latitude", "longitude", "is_cancelled").
		Updates(activity)
	if result.Error != nil {
		return fmt.Errorf("failed to update activity: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return errdef.NewNotFound("activity %q doesn't exist", activity.ID)
	}

	return nil
}

// Delete removes the activity along with its attendees and comments.
func (r repository) Delete(ctx context.Context, id string) error {
	ctx = context.WithoutCancel(ctx)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("activity_id = ?", id).Delete(&model.Comment{}).Error; err != nil {
			return fmt.Errorf("failed to delete comments of activity %q: %v", id, err)
		}

		if err := tx.Where("activity_id = ?", id).Delete(&model.Attendee{}).Error; err != nil {
			return fmt.Errorf("failed to delete attendees of activity %q: %v", id, err)
		}

		result := tx.Delete(&model.Activity{ID: id})
		if result.Error != nil {
			return fmt.Errorf("failed to delete activity %q: %v", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return errdef.NewNotFound("activity %q doesn't exist", id)
		}

		return nil
	})
}

func (r repository) FindAttendee(ctx context.Context, userID, activityID string) (*model.Attendee, error) {
	var attendee *model.Attendee
	err := r.db.
		WithContext(ctx).
		Where("user_id = ? AND activity_id = ?", userID, activityID).
		First(&attendee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errdef.NewNotFound("user %q doesn't attend activity %q", userID, activityID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find attendee: %v", err)
	}

	return attendee, nil
}

func (r repository) AddAttendee(ctx context.Context, attendee *model.Attendee, u *model.User) error {
	ctx = context.WithoutCancel(ctx)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := user.Upsert(tx, u); err != nil {
			return err
		}

		err := tx.Omit("User").Create(attendee).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errdef.NewDuplicated("user %q already attends activity %q", attendee.UserID, attendee.ActivityID)
		}
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return errdef.NewNotFound("activity %q doesn't exist", attendee.ActivityID)
		}
		if err != nil {
			return fmt.Errorf("failed to add attendee: %v", err)
		}

		return nil
	})
}

func (r repository) RemoveAttendee(ctx context.Context, userID, activityID string) error {
	ctx = context.WithoutCancel(ctx)

	err := r.db.
		WithContext(ctx).
		Where("user_id = ? AND activity_id = ? AND is_host = ?", userID, activityID, false).
		Delete(&model.Attendee{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove attendee: %v", err)
	}

	return nil
}

// TransferHost moves the host flag to the attendee with the given user id. Both flags are flipped in
// one transaction so an activity never has more or less than one host.
func (r repository) TransferHost(ctx context.Context, activityID, userID string) error {
	ctx = context.WithoutCancel(ctx)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attendee model.Attendee
		err := tx.Where("user_id = ? AND activity_id = ?", userID, activityID).First(&attendee).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errdef.NewNotFound("user %q doesn't attend activity %q", userID, activityID)
		}
		if err != nil {
			return fmt.Errorf("failed to find attendee: %v", err)
		}

		err = tx.Model(&model.Attendee{}).
			Where("activity_id = ? AND user_id <> ?", activityID, userID).
			Update("is_host", false).Error
		if err != nil {
			return fmt.Errorf("failed to demote host: %v", err)
		}

		err = tx.Model(&model.Attendee{}).
			Where("activity_id = ? AND user_id = ?", activityID, userID).
			Update("is_host", true).Error
		if err != nil {
			return fmt.Errorf("failed to promote host: %v", err)
		}

		return nil
	})
}
