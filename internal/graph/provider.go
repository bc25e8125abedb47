package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"birthdaysync/internal/birthday"
)

// birthdayCategory marks events managed by this tool. Only events carrying
// it are considered during discovery, so the target calendar can hold
// unrelated events without interference.
const birthdayCategory = "Birthday"

// Source reads contacts from Microsoft Graph.
type Source struct {
	client *Client
	logger *slog.Logger
}

// NewSource creates a contact source backed by the given Graph client.
func NewSource(client *Client, logger *slog.Logger) *Source {
	return &Source{client: client, logger: logger}
}

// ContactsWithBirthdays returns every contact that has a usable birthday.
// Contacts without one, or with a birthday the API returned in an
// unexpected format, are skipped.
func (s *Source) ContactsWithBirthdays(ctx context.Context) ([]birthday.Contact, error) {
	raw, err := s.client.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contacts: %w", err)
	}

	var contacts []birthday.Contact
	for _, rc := range raw {
		if rc.Birthday == "" || rc.DisplayName == "" {
			continue
		}
		bday, err := time.Parse(time.RFC3339, rc.Birthday)
		if err != nil {
			s.logger.Warn("skipping contact with unparsable birthday",
				"contact", rc.DisplayName, "birthday", rc.Birthday)
			continue
		}
		contacts = append(contacts, birthday.Contact{
			ID:       rc.ID,
			Name:     rc.DisplayName,
			Birthday: bday.UTC(),
		})
	}
	return contacts, nil
}

// Store manages birthday events on a Microsoft Graph calendar.
type Store struct {
	client *Client
}

// NewStore creates a calendar store backed by the given Graph client.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

// FindOrCreateCalendar resolves the named calendar, creating it when it
// does not exist yet, and returns its id.
func (s *Store) FindOrCreateCalendar(ctx context.Context, name string) (string, error) {
	calendars, err := s.client.ListCalendars(ctx)
	if err != nil {
		return "", err
	}
	for _, cal := range calendars {
		if cal.Name == name {
			return cal.ID, nil
		}
	}
	created, err := s.client.CreateCalendar(ctx, name)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// BirthdayEvents returns the events this tool manages, keyed by subject.
// When two managed events share a subject the later one wins.
func (s *Store) BirthdayEvents(ctx context.Context, calendarID string) (map[string]birthday.Event, error) {
	raw, err := s.client.ListEvents(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	events := make(map[string]birthday.Event)
	for _, ev := range raw {
		if !hasCategory(ev.Categories, birthdayCategory) {
			continue
		}
		var start string
		if ev.Start != nil {
			start = ev.Start.DateTime
		}
		events[ev.Subject] = birthday.Event{
			ID:    ev.ID,
			Name:  ev.Subject,
			Start: start,
		}
	}
	return events, nil
}

// CreateEvent creates a yearly recurring all-day event for the occurrence.
func (s *Store) CreateEvent(ctx context.Context, calendarID string, occ birthday.Occurrence) error {
	return s.client.CreateEvent(ctx, calendarID, buildEvent(occ))
}

// UpdateEvent rewrites an existing managed event from the occurrence.
// Graph addresses events by id alone, so calendarID is not needed here.
func (s *Store) UpdateEvent(ctx context.Context, _, eventID string, occ birthday.Occurrence) error {
	return s.client.UpdateEvent(ctx, eventID, buildEvent(occ))
}

func buildEvent(occ birthday.Occurrence) Event {
	start := occ.Start.Format(birthday.DateFormat)
	return Event{
		Subject:    occ.Contact.Name,
		Categories: []string{birthdayCategory},
		IsAllDay:   true,
		Start:      &DateTimeTimeZone{DateTime: start, TimeZone: "UTC"},
		End:        &DateTimeTimeZone{DateTime: occ.End().Format(birthday.DateFormat), TimeZone: "UTC"},
		Body: &ItemBody{
			ContentType: "text",
			Content:     fmt.Sprintf("Age: %d\nContact: %s", occ.Age, occ.Contact.ID),
		},
		IsReminderOn:               true,
		ReminderMinutesBeforeStart: 0,
		Recurrence: &PatternedRecurrence{
			Pattern: RecurrencePattern{
				Type:       "absoluteYearly",
				Interval:   1,
				Month:      int(occ.Contact.Birthday.Month()),
				DayOfMonth: occ.Contact.Birthday.Day(),
			},
			Range: RecurrenceRange{
				Type:      "noEnd",
				StartDate: start,
			},
		},
	}
}

func hasCategory(categories []string, want string) bool {
	for _, c := range categories {
		if c == want {
			return true
		}
	}
	return false
}
