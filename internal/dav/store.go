package dav

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"birthdaysync/internal/birthday"
)

// birthdayCategory marks events managed by this tool. Only VEVENTs carrying
// it in CATEGORIES are picked up during discovery.
const birthdayCategory = "Birthday"

const prodID = "-//birthdaysync//EN"

// Store manages birthday events on a CalDAV calendar. The calendar id used
// throughout is the collection path on the server.
type Store struct {
	client *caldav.Client
}

// NewStore creates a calendar store for the given CalDAV endpoint using
// HTTP basic auth.
func NewStore(endpoint, username, password string) (*Store, error) {
	httpClient := webdav.HTTPClientWithBasicAuth(nil, username, password)
	client, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	return &Store{client: client}, nil
}

// FindOrCreateCalendar resolves the named calendar. CalDAV servers vary in
// MKCALENDAR support, so a missing calendar is reported instead of created;
// create it once in the server's UI and re-run.
func (s *Store) FindOrCreateCalendar(ctx context.Context, name string) (string, error) {
	principal, err := s.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}
	homeSet, err := s.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}
	calendars, err := s.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("calendar %q not found on server; create it first and re-run", name)
}

// BirthdayEvents returns the events this tool manages, keyed by summary.
// The event id is the object path, which is all an update needs.
func (s *Store) BirthdayEvents(ctx context.Context, calendarPath string) (map[string]birthday.Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{
				{Name: ical.CompEvent, AllProps: true},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{
				{Name: ical.CompEvent},
			},
		},
	}

	objects, err := s.client.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	events := make(map[string]birthday.Event)
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			if !managedEvent(ev) {
				continue
			}
			summary, err := ev.Props.Text(ical.PropSummary)
			if err != nil || summary == "" {
				continue
			}
			var start string
			if prop := ev.Props.Get(ical.PropDateTimeStart); prop != nil {
				if t, err := prop.DateTime(time.UTC); err == nil {
					start = t.Format(birthday.DateFormat)
				}
			}
			events[summary] = birthday.Event{
				ID:    obj.Path,
				Name:  summary,
				Start: start,
			}
		}
	}
	return events, nil
}

// CreateEvent puts a new calendar object with a fresh UID-derived path.
func (s *Store) CreateEvent(ctx context.Context, calendarPath string, occ birthday.Occurrence) error {
	uid := uuid.New().String()
	objPath := path.Join(calendarPath, uid+".ics")
	return s.put(ctx, objPath, uid, occ)
}

// UpdateEvent overwrites the calendar object at the event's path. The UID is
// re-derived from the path so the object stays self-consistent.
func (s *Store) UpdateEvent(ctx context.Context, _, eventID string, occ birthday.Occurrence) error {
	uid := path.Base(eventID)
	if ext := path.Ext(uid); ext != "" {
		uid = uid[:len(uid)-len(ext)]
	}
	return s.put(ctx, eventID, uid, occ)
}

func (s *Store) put(ctx context.Context, objPath, uid string, occ birthday.Occurrence) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Children = append(cal.Children, buildEvent(uid, occ).Component)

	if _, err := s.client.PutCalendarObject(ctx, objPath, cal); err != nil {
		return fmt.Errorf("failed to put calendar object: %w", err)
	}
	return nil
}

func buildEvent(uid string, occ birthday.Occurrence) *ical.Event {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, uid)
	ev.Props.SetText(ical.PropSummary, occ.Contact.Name)
	ev.Props.SetText(ical.PropDescription, fmt.Sprintf("Age: %d\nContact: %s", occ.Age, occ.Contact.ID))
	ev.Props.SetText(ical.PropCategories, birthdayCategory)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	dtStart := ical.NewProp(ical.PropDateTimeStart)
	dtStart.SetDate(occ.Start)
	ev.Props.Set(dtStart)

	dtEnd := ical.NewProp(ical.PropDateTimeEnd)
	dtEnd.SetDate(occ.End())
	ev.Props.Set(dtEnd)

	rule, _ := rrule.NewRRule(rrule.ROption{
		Freq:       rrule.YEARLY,
		Bymonth:    []int{int(occ.Contact.Birthday.Month())},
		Bymonthday: []int{occ.Contact.Birthday.Day()},
	})
	rruleProp := ical.NewProp(ical.PropRecurrenceRule)
	rruleProp.Value = rule.String()
	ev.Props.Set(rruleProp)

	addAlarm(ev, occ.Contact.Name)
	return ev
}

// addAlarm attaches a DISPLAY alarm firing at the start of the day.
func addAlarm(ev *ical.Event, description string) {
	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, "DISPLAY")
	alarm.Props.SetText(ical.PropDescription, description)

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = "PT0S"
	alarm.Props.Set(trigger)

	ev.Children = append(ev.Children, alarm)
}

func managedEvent(ev ical.Event) bool {
	prop := ev.Props.Get(ical.PropCategories)
	if prop == nil {
		return false
	}
	categories, err := prop.TextList()
	if err != nil {
		return false
	}
	for _, c := range categories {
		if c == birthdayCategory {
			return true
		}
	}
	return false
}
