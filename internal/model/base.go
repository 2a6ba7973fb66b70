package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DateLayout is the wire and storage layout for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a calendar date and returns midnight UTC of that day.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// TruncateDay drops the clock part of t as seen in loc and returns midnight
// UTC of that calendar day.
func TruncateDay(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}
