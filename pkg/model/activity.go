package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Activity domain object defining a plannable event. Exactly one of its attendees is the host.
// swagger:model
type Activity struct {
	ID          string     `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Title       string     `json:"title"`
	Date        time.Time  `gorm:"index" json:"date"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	City        string     `json:"city"`
	Venue       string     `json:"venue"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	IsCancelled bool       `json:"isCancelled"`
	Attendees   []Attendee `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"attendees"`
	Comments    []Comment  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

func (a *Activity) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Host returns the attendee flagged as host, if any.
func (a *Activity) Host() (*Attendee, bool) {
	for i := range a.Attendees {
		if a.Attendees[i].IsHost {
			return &a.Attendees[i], true
		}
	}
	return nil, false
}

// Attendee returns the membership of the given user, if any.
func (a *Activity) Attendee(userID string) (*Attendee, bool) {
	for i := range a.Attendees {
		if a.Attendees[i].UserID == userID {
			return &a.Attendees[i], true
		}
	}
	return nil, false
}

// Attendee is the membership of a user in an activity. It owns the host flag.
// swagger:model
type Attendee struct {
	UserID     string    `gorm:"primaryKey" json:"userId"`
	User       User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user"`
	ActivityID string    `gorm:"primaryKey" json:"activityId"`
	IsHost     bool      `json:"isHost"`
	DateJoined time.Time `json:"dateJoined"`
}
