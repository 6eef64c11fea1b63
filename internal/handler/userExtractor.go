package handler

import (
	"context"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/dhis2-sre/im-activities/pkg/model"
)

func GetUserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := model.GetUserFromContext(ctx)
	if !ok {
		return nil, errdef.NewUnauthorized("user not found on context")
	}
	return user, nil
}
