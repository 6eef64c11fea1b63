package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//goland:noinspection GoExportedFuncWithUnexportedType
func NewRepository(db *gorm.DB) *repository {
	return &repository{db}
}

type repository struct {
	db *gorm.DB
}

func (r repository) FindById(ctx context.Context, id string) (*model.User, error) {
	var user *model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errdef.NewNotFound("failed to find user with id %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %v", err)
	}
	return user, nil
}

// Upsert stores the identity reference of user, updating its profile fields if it already exists.
// Pass a transaction as db to make it part of a larger unit of work.
func Upsert(db *gorm.DB, user *model.User) error {
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "bio", "image_url", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return fmt.Errorf("failed to store user %q: %v", user.ID, err)
	}
	return nil
}
