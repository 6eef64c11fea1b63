package model

import "time"

// CommentDTO is the shape of a comment sent to clients, author resolved.
type CommentDTO struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	Body        string    `json:"body"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	ImageURL    string    `json:"imageUrl,omitempty"`
}

func NewCommentDTO(c Comment) CommentDTO {
	return CommentDTO{
		ID:          c.ID,
		CreatedAt:   c.CreatedAt.UTC(),
		Body:        c.Body,
		UserID:      c.UserID,
		DisplayName: c.User.DisplayName,
		ImageURL:    c.User.ImageURL,
	}
}

// Profile is an attendee as shown on an activity.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	IsHost      bool   `json:"isHost"`
}

// ActivityDTO is the shape of an activity sent to clients.
type ActivityDTO struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Date            time.Time `json:"date"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	City            string    `json:"city"`
	Venue           string    `json:"venue"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	IsCancelled     bool      `json:"isCancelled"`
	HostID          string    `json:"hostId"`
	HostDisplayName string    `json:"hostDisplayName"`
	Attendees       []Profile `json:"attendees"`
}

func NewActivityDTO(a Activity) ActivityDTO {
	dto := ActivityDTO{
		ID:          a.ID,
		Title:       a.Title,
		Date:        a.Date,
		Description: a.Description,
		Category:    a.Category,
		City:        a.City,
		Venue:       a.Venue,
		Latitude:    a.Latitude,
		Longitude:   a.Longitude,
		IsCancelled: a.IsCancelled,
		Attendees:   make([]Profile, 0, len(a.Attendees)),
	}
	for _, attendee := range a.Attendees {
		if attendee.IsHost {
			dto.HostID = attendee.UserID
			dto.HostDisplayName = attendee.User.DisplayName
		}
		dto.Attendees = append(dto.Attendees, Profile{
			ID:          attendee.UserID,
			DisplayName: attendee.User.DisplayName,
			Bio:         attendee.User.Bio,
			ImageURL:    attendee.User.ImageURL,
			IsHost:      attendee.IsHost,
		})
	}
	return dto
}
