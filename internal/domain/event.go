package domain

import (
	"strings"
	"time"
)

// LocalizedText holds one value per supported UI language.
type LocalizedText struct {
	EN string `json:"en" dynamodbav:"en"`
	AR string `json:"ar" dynamodbav:"ar"`
	FR string `json:"fr" dynamodbav:"fr"`
}

// Best returns the english value, falling back to any non-empty translation.
func (t LocalizedText) Best() string {
	for _, v := range []string{t.EN, t.FR, t.AR} {
		if v != "" {
			return v
		}
	}
	return ""
}

// Contains reports whether q occurs in any translation, case-insensitively.
func (t LocalizedText) Contains(q string) bool {
	q = strings.ToLower(q)
	for _, v := range []string{t.EN, t.FR, t.AR} {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

// Event is the synchronized domain record. The sync layer only relies on
// EventID and Revision; everything else is payload.
type Event struct {
	EventID       string        `json:"id" dynamodbav:"event_id"`
	Revision      int64         `json:"revision" dynamodbav:"revision"`
	Title         LocalizedText `json:"title" dynamodbav:"title"`
	Description   LocalizedText `json:"description" dynamodbav:"description"`
	Location      LocalizedText `json:"location" dynamodbav:"location"`
	StartDate     time.Time     `json:"start_date" dynamodbav:"start_date"`
	EndDate       time.Time     `json:"end_date" dynamodbav:"end_date"`
	Category      string        `json:"category" dynamodbav:"category"`
	Image         *string       `json:"image,omitempty" dynamodbav:"image"`
	Capacity      *int          `json:"capacity,omitempty" dynamodbav:"capacity"`
	Registrations int           `json:"registrations" dynamodbav:"registrations"`
	CreatedAt     time.Time     `json:"created" dynamodbav:"created_at"`
	UpdatedAt     time.Time     `json:"updated" dynamodbav:"updated_at"`
}

// DisplayTitle is the label used in notifications.
func (e *Event) DisplayTitle() string {
	if t := e.Title.Best(); t != "" {
		return t
	}
	return e.EventID
}

// EventInput is the body accepted by create and update endpoints.
type EventInput struct {
	Title       LocalizedText `json:"title"`
	Description LocalizedText `json:"description"`
	Location    LocalizedText `json:"location"`
	StartDate   time.Time     `json:"start_date" validate:"required"`
	EndDate     time.Time     `json:"end_date" validate:"required,gtefield=StartDate"`
	Category    string        `json:"category" validate:"required"`
	Image       *string       `json:"image"`
	Capacity    *int          `json:"capacity" validate:"omitempty,min=0"`
}

// EventFilter narrows GetEvents results.
type EventFilter struct {
	Limit    int
	Upcoming bool
	Category string
	Query    string
}

// ImportResult is returned by the bulk import endpoint.
type ImportResult struct {
	InsertedCount int     `json:"insertedCount"`
	Events        []Event `json:"events"`
}

// Tombstone is the acknowledgement of a delete. Revision is one past the
// last revision the entity had.
type Tombstone struct {
	EventID  string `json:"id"`
	Revision int64  `json:"revision"`
}
