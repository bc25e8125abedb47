package google

import (
	"context"
	"fmt"
	"net/http"

	"github.com/teambition/rrule-go"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"birthdaysync/internal/birthday"
)

// markerKey/markerValue tag events this tool manages as a private extended
// property, so discovery never confuses them with hand-made events on the
// same calendar. The value is versioned in case the event shape ever has to
// change incompatibly.
const (
	markerKey   = "birthdaySync"
	markerValue = "v1"
)

// Store manages birthday events on a Google calendar.
type Store struct {
	service *calendar.Service
}

// NewStore creates a calendar store on top of an authenticated HTTP client.
func NewStore(ctx context.Context, httpClient *http.Client) (*Store, error) {
	service, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &Store{service: service}, nil
}

// FindOrCreateCalendar resolves the named calendar from the user's calendar
// list, creating it when no calendar carries that summary yet.
func (s *Store) FindOrCreateCalendar(ctx context.Context, name string) (string, error) {
	list, err := s.service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list calendars: %w", err)
	}
	for _, entry := range list.Items {
		if entry.Summary == name {
			return entry.Id, nil
		}
	}

	created, err := s.service.Calendars.Insert(&calendar.Calendar{Summary: name}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create calendar: %w", err)
	}
	return created.Id, nil
}

// BirthdayEvents returns the events this tool manages, keyed by summary.
// The marker property restricts the listing to managed events server-side.
func (s *Store) BirthdayEvents(ctx context.Context, calendarID string) (map[string]birthday.Event, error) {
	events := make(map[string]birthday.Event)
	pageToken := ""
	for {
		call := s.service.Events.List(calendarID).
			PrivateExtendedProperty(markerKey + "=" + markerValue).
			MaxResults(250).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list events: %w", err)
		}

		for _, ev := range resp.Items {
			var start string
			if ev.Start != nil {
				start = ev.Start.Date
			}
			events[ev.Summary] = birthday.Event{
				ID:    ev.Id,
				Name:  ev.Summary,
				Start: start,
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return events, nil
		}
	}
}

// CreateEvent creates a yearly recurring all-day event for the occurrence.
func (s *Store) CreateEvent(ctx context.Context, calendarID string, occ birthday.Occurrence) error {
	_, err := s.service.Events.Insert(calendarID, buildEvent(occ)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// UpdateEvent rewrites an existing managed event from the occurrence.
func (s *Store) UpdateEvent(ctx context.Context, calendarID, eventID string, occ birthday.Occurrence) error {
	_, err := s.service.Events.Update(calendarID, eventID, buildEvent(occ)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

func buildEvent(occ birthday.Occurrence) *calendar.Event {
	rule, _ := rrule.NewRRule(rrule.ROption{
		Freq:       rrule.YEARLY,
		Bymonth:    []int{int(occ.Contact.Birthday.Month())},
		Bymonthday: []int{occ.Contact.Birthday.Day()},
	})
	return &calendar.Event{
		Summary:     occ.Contact.Name,
		Description: fmt.Sprintf("Age: %d\nContact: %s", occ.Age, occ.Contact.ID),
		Start:       &calendar.EventDateTime{Date: occ.Start.Format(birthday.DateFormat)},
		End:         &calendar.EventDateTime{Date: occ.End().Format(birthday.DateFormat)},
		Recurrence:  []string{"RRULE:" + rule.String()},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{markerKey: markerValue},
		},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "popup", Minutes: 0, ForceSendFields: []string{"Minutes"}},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
}
