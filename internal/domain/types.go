package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecord wraps every record validation failure.
var ErrInvalidRecord = errors.New("domain: invalid record")

// Location is the club's home time zone. Match dates and calendar cut-offs are evaluated here.
var Location = mustLoadLocation("Europe/Rome")

const (
	// DateLayout is the calendar date format used by matches and articles.
	DateLayout = "2006-01-02"
	// TimeLayout is the kick-off time format.
	TimeLayout = "15:04"
)

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidRecord, field, fmt.Sprintf(format, args...))
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CET", 3600)
	}
	return loc
}

// Today returns the calendar date of now in the club's time zone.
func Today(now time.Time) string {
	return now.In(Location).Format(DateLayout)
}
