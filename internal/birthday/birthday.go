// Package birthday holds the domain types shared by the contact and calendar
// backends and the date arithmetic used to place recurring birthday events.
package birthday

import (
	"time"
)

// DateFormat is the wire format for all-day event start dates.
const DateFormat = "2006-01-02"

// Contact is a contacts-store entry that carries a birthday. Only contacts
// with a known birthday (including the year) participate in a sync run.
type Contact struct {
	ID       string
	Name     string
	Birthday time.Time
}

// Event is an existing birthday event observed in the target calendar.
// Start is kept as stored by the backend; it may be empty or unparsable,
// in which case the event is rewritten rather than trusted.
type Event struct {
	ID    string
	Name  string
	Start string
}

// Occurrence is the next upcoming instance of a contact's birthday, the
// payload handed to the calendar backends when creating or updating events.
type Occurrence struct {
	Contact Contact
	Start   time.Time
	Age     int
}

// End returns the exclusive end date of the all-day event.
func (o Occurrence) End() time.Time {
	return o.Start.AddDate(0, 0, 1)
}

// NextFor computes the next upcoming occurrence of c's birthday relative to
// now. The birthday's month and day are applied to the current year; if that
// date has already passed (date-only comparison, normalized to UTC), the
// occurrence rolls over to next year. The result is never in the past.
func NextFor(now time.Time, c Contact) Occurrence {
	today := midnightUTC(now.UTC())
	bday := c.Birthday.UTC()

	next := time.Date(today.Year(), bday.Month(), bday.Day(), 0, 0, 0, 0, time.UTC)
	if next.Before(today) {
		next = time.Date(today.Year()+1, bday.Month(), bday.Day(), 0, 0, 0, 0, time.UTC)
	}

	return Occurrence{
		Contact: c,
		Start:   next,
		Age:     next.Year() - bday.Year(),
	}
}

// SameMonthDay reports whether a stored event start date falls on the same
// month and day as the given birthday. The year is deliberately ignored:
// the recurrence pattern already encodes yearly repetition, so a rolled-over
// start year must not look like a change. An empty or unparsable start
// returns false so that corrupt state is rewritten, never trusted.
func SameMonthDay(start string, bday time.Time) bool {
	if len(start) < len(DateFormat) {
		return false
	}
	// Backends may store a full timestamp; only the date part matters.
	t, err := time.Parse(DateFormat, start[:len(DateFormat)])
	if err != nil {
		return false
	}
	// Normalize through time.Date so a Feb 29 birthday stored as Mar 1 in a
	// non-leap year still matches.
	want := time.Date(t.Year(), bday.Month(), bday.Day(), 0, 0, 0, 0, time.UTC)
	return t.Month() == want.Month() && t.Day() == want.Day()
}

func midnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
