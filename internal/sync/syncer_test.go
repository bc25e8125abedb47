package sync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birthdaysync/internal/birthday"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeSource struct {
	contacts []birthday.Contact
	err      error
}

func (f *fakeSource) ContactsWithBirthdays(ctx context.Context) ([]birthday.Contact, error) {
	return f.contacts, f.err
}

// fakeStore records writes and replays them into the events map so a second
// run sees the first run's results.
type fakeStore struct {
	calendarID   string
	calendarErr  error
	events       map[string]birthday.Event
	discoveryErr error
	createErr    error
	updateErr    error

	created []birthday.Occurrence
	updated map[string]birthday.Occurrence
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		calendarID: "cal-1",
		events:     map[string]birthday.Event{},
		updated:    map[string]birthday.Occurrence{},
	}
}

func (f *fakeStore) FindOrCreateCalendar(ctx context.Context, name string) (string, error) {
	if f.calendarErr != nil {
		return "", f.calendarErr
	}
	return f.calendarID, nil
}

func (f *fakeStore) BirthdayEvents(ctx context.Context, calendarID string) (map[string]birthday.Event, error) {
	if f.discoveryErr != nil {
		return nil, f.discoveryErr
	}
	out := make(map[string]birthday.Event, len(f.events))
	for k, v := range f.events {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) CreateEvent(ctx context.Context, calendarID string, occ birthday.Occurrence) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, occ)
	f.events[occ.Contact.Name] = birthday.Event{
		ID:    "ev-" + occ.Contact.ID,
		Name:  occ.Contact.Name,
		Start: occ.Start.Format(birthday.DateFormat),
	}
	return nil
}

func (f *fakeStore) UpdateEvent(ctx context.Context, calendarID, eventID string, occ birthday.Occurrence) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated[eventID] = occ
	f.events[occ.Contact.Name] = birthday.Event{
		ID:    eventID,
		Name:  occ.Contact.Name,
		Start: occ.Start.Format(birthday.DateFormat),
	}
	return nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSyncer(source ContactSource, store CalendarStore, now time.Time) (*Syncer, *bytes.Buffer) {
	var out bytes.Buffer
	s := New(&out, testLogger(), source, store, "Birthdays")
	s.Clock = fixedClock{now: now}
	return s, &out
}

func TestDecide(t *testing.T) {
	now := date(2026, time.March, 10)
	john := birthday.Contact{ID: "c1", Name: "John Doe", Birthday: date(1990, time.May, 15)}

	t.Run("no existing event creates", func(t *testing.T) {
		d := Decide(now, john, map[string]birthday.Event{})
		assert.Equal(t, ActionCreate, d.Action)
		assert.Equal(t, date(2026, time.May, 15), d.Occurrence.Start)
		assert.Equal(t, 36, d.Occurrence.Age)
		assert.Empty(t, d.EventID)
	})

	t.Run("matching month and day skips", func(t *testing.T) {
		existing := map[string]birthday.Event{
			"John Doe": {ID: "ev-1", Name: "John Doe", Start: "2026-05-15"},
		}
		d := Decide(now, john, existing)
		assert.Equal(t, ActionSkip, d.Action)
		assert.Equal(t, "ev-1", d.EventID)
	})

	t.Run("stale start year still skips", func(t *testing.T) {
		existing := map[string]birthday.Event{
			"John Doe": {ID: "ev-1", Name: "John Doe", Start: "2024-05-15"},
		}
		d := Decide(now, john, existing)
		assert.Equal(t, ActionSkip, d.Action)
	})

	t.Run("changed day updates", func(t *testing.T) {
		existing := map[string]birthday.Event{
			"John Doe": {ID: "ev-1", Name: "John Doe", Start: "2026-05-14"},
		}
		d := Decide(now, john, existing)
		assert.Equal(t, ActionUpdate, d.Action)
		assert.Equal(t, "ev-1", d.EventID)
		assert.Equal(t, date(2026, time.May, 15), d.Occurrence.Start)
	})

	t.Run("unparsable stored start updates", func(t *testing.T) {
		existing := map[string]birthday.Event{
			"John Doe": {ID: "ev-1", Name: "John Doe", Start: ""},
		}
		d := Decide(now, john, existing)
		assert.Equal(t, ActionUpdate, d.Action)
	})
}

func TestRunCreatesUpdatesSkips(t *testing.T) {
	now := date(2026, time.March, 10)
	source := &fakeSource{contacts: []birthday.Contact{
		{ID: "c1", Name: "John Doe", Birthday: date(1990, time.May, 15)},
		{ID: "c2", Name: "Jane Roe", Birthday: date(1985, time.January, 2)},
		{ID: "c3", Name: "Sam Poe", Birthday: date(2000, time.March, 10)},
	}}
	store := newFakeStore()
	store.events["Jane Roe"] = birthday.Event{ID: "ev-jane", Name: "Jane Roe", Start: "2027-01-03"}
	store.events["Sam Poe"] = birthday.Event{ID: "ev-sam", Name: "Sam Poe", Start: "2026-03-10"}

	s, out := newTestSyncer(source, store, now)
	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Summary{Contacts: 3, Created: 1, Updated: 1, Skipped: 1}, summary)

	require.Len(t, store.created, 1)
	assert.Equal(t, "John Doe", store.created[0].Contact.Name)
	assert.Equal(t, date(2026, time.May, 15), store.created[0].Start)

	require.Contains(t, store.updated, "ev-jane")
	assert.Equal(t, date(2027, time.January, 2), store.updated["ev-jane"].Start)

	assert.Contains(t, out.String(), "✓ Created event for John Doe")
	assert.Contains(t, out.String(), "↻ Updated event for Jane Roe")
	assert.Contains(t, out.String(), "⊙ Skipped Sam Poe (up to date)")
}

func TestRunSecondPassIsIdempotent(t *testing.T) {
	now := date(2026, time.March, 10)
	source := &fakeSource{contacts: []birthday.Contact{
		{ID: "c1", Name: "John Doe", Birthday: date(1990, time.May, 15)},
		{ID: "c2", Name: "Jane Roe", Birthday: date(1985, time.January, 2)},
	}}
	store := newFakeStore()

	s, _ := newTestSyncer(source, store, now)
	first, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Contacts: 2, Skipped: 2}, second)
	assert.Len(t, store.created, 2)
	assert.Empty(t, store.updated)
}

func TestRunContactFetchFailureDegrades(t *testing.T) {
	source := &fakeSource{err: errors.New("contacts unavailable")}
	store := newFakeStore()

	var reported []error
	s, out := newTestSyncer(source, store, date(2026, time.March, 10))
	s.Report = func(err error) { reported = append(reported, err) }

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Contains(t, out.String(), "Found 0 contacts with birthdays")
	assert.Len(t, reported, 1)
}

func TestRunCalendarFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.calendarErr = errors.New("forbidden")

	s, _ := newTestSyncer(&fakeSource{}, store, date(2026, time.March, 10))
	_, err := s.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to access or create calendar")
}

func TestRunDiscoveryFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.discoveryErr = errors.New("listing failed")

	s, _ := newTestSyncer(&fakeSource{}, store, date(2026, time.March, 10))
	_, err := s.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not check existing events")
}

func TestRunCountsPerEventFailures(t *testing.T) {
	source := &fakeSource{contacts: []birthday.Contact{
		{ID: "c1", Name: "John Doe", Birthday: date(1990, time.May, 15)},
		{ID: "c2", Name: "Jane Roe", Birthday: date(1985, time.January, 2)},
	}}
	store := newFakeStore()
	store.createErr = errors.New("quota exceeded")

	var reported []error
	s, out := newTestSyncer(source, store, date(2026, time.March, 10))
	s.Report = func(err error) { reported = append(reported, err) }

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Summary{Contacts: 2, Failed: 2}, summary)
	assert.Len(t, reported, 2)
	assert.Contains(t, out.String(), "✗ Failed to create event for John Doe")
}

func TestRunDryRunWritesNothing(t *testing.T) {
	source := &fakeSource{contacts: []birthday.Contact{
		{ID: "c1", Name: "John Doe", Birthday: date(1990, time.May, 15)},
	}}
	store := newFakeStore()

	s, out := newTestSyncer(source, store, date(2026, time.March, 10))
	s.DryRun = true

	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Summary{Contacts: 1}, summary)
	assert.Empty(t, store.created)
	assert.Empty(t, store.updated)
	assert.Contains(t, out.String(), "Would create event for John Doe")
}

func TestRunDuplicateNamesLastWriteWins(t *testing.T) {
	// Two contacts sharing a display name reconcile against the same event
	// slot; the snapshot is keyed by name, so the second one updates what
	// the first created in a previous run rather than duplicating it.
	now := date(2026, time.March, 10)
	store := newFakeStore()
	store.events["John Doe"] = birthday.Event{ID: "ev-1", Name: "John Doe", Start: "2026-05-15"}

	source := &fakeSource{contacts: []birthday.Contact{
		{ID: "c1", Name: "John Doe", Birthday: date(1990, time.May, 15)},
		{ID: "c2", Name: "John Doe", Birthday: date(1992, time.August, 3)},
	}}

	s, _ := newTestSyncer(source, store, now)
	summary, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Summary{Contacts: 2, Skipped: 1, Updated: 1}, summary)
	assert.Empty(t, store.created)
	require.Contains(t, store.updated, "ev-1")
	assert.Equal(t, date(2026, time.August, 3), store.updated["ev-1"].Start)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	source := &fakeSource{contacts: []birthday.Contact{
		{ID: "c1", Name: "John Doe", Birthday: date(1990, time.May, 15)},
	}}
	store := newFakeStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, _ := newTestSyncer(source, store, date(2026, time.March, 10))
	_, err := s.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.created)
}
