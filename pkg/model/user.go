package model

import (
	"context"
	"time"
)

// User is the identity reference handed to us by the identity provider. Only the fields needed to
// render attendees and comment authors are stored.
// swagger:model
type User struct {
	ID          string    `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
	DisplayName string    `json:"displayName"`
	Bio         string    `json:"bio,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
}

type ctxKey int

const userKey ctxKey = iota

// NewContextWithUser returns a new [context.Context] that carries the acting user.
func NewContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUserFromContext returns the acting user stored in ctx, if any.
func GetUserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey).(*User)
	return u, ok && u != nil
}
