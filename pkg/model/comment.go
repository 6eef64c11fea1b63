package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment domain object. Comments are immutable and ordered by creation time, ties broken by id.
// swagger:model
type Comment struct {
	ID         string    `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `gorm:"index:idx_comment_order,priority:2" json:"createdAt"`
	Body       string    `json:"body"`
	UserID     string    `json:"userId"`
	User       User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ActivityID string    `gorm:"index:idx_comment_order,priority:1" json:"activityId"`
}

func (c *Comment) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
