// Package sync implements the reconciliation core: comparing contacts
// against existing calendar events and issuing create/update/skip decisions.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"birthdaysync/internal/birthday"
)

// ContactSource lists contacts that carry a birthday. Implementations own
// pagination; the returned slice is always complete.
type ContactSource interface {
	ContactsWithBirthdays(ctx context.Context) ([]birthday.Contact, error)
}

// CalendarStore is the narrow calendar capability the reconciler needs.
type CalendarStore interface {
	// FindOrCreateCalendar resolves the target calendar by display name,
	// creating it when absent, and returns its identifier.
	FindOrCreateCalendar(ctx context.Context, name string) (string, error)
	// BirthdayEvents returns the existing birthday events in the calendar,
	// keyed by contact display name.
	BirthdayEvents(ctx context.Context, calendarID string) (map[string]birthday.Event, error)
	CreateEvent(ctx context.Context, calendarID string, occ birthday.Occurrence) error
	UpdateEvent(ctx context.Context, calendarID, eventID string, occ birthday.Occurrence) error
}

// Clock abstracts time.Now() to allow deterministic testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// Action is the per-contact reconciliation outcome.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	default:
		return "skip"
	}
}

// Decision is the computed plan for one contact. EventID is set only when
// an existing event was matched.
type Decision struct {
	Action     Action
	Occurrence birthday.Occurrence
	EventID    string
}

// Decide computes the reconciliation decision for a single contact against
// the existing-events snapshot. A contact with no matching event is created.
// A matching event whose stored start differs in month or day, or whose start
// is missing or unparsable, is updated. Everything else is skipped.
func Decide(now time.Time, c birthday.Contact, existing map[string]birthday.Event) Decision {
	occ := birthday.NextFor(now, c)

	ev, ok := existing[c.Name]
	if !ok {
		return Decision{Action: ActionCreate, Occurrence: occ}
	}
	if birthday.SameMonthDay(ev.Start, c.Birthday) {
		return Decision{Action: ActionSkip, Occurrence: occ, EventID: ev.ID}
	}
	return Decision{Action: ActionUpdate, Occurrence: occ, EventID: ev.ID}
}

// Summary counts the per-contact outcomes of a run. It is printed at the
// end regardless of where failures occurred.
type Summary struct {
	Contacts int
	Created  int
	Updated  int
	Skipped  int
	Failed   int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d created, %d updated, %d skipped, %d failed (%d contacts)",
		s.Created, s.Updated, s.Skipped, s.Failed, s.Contacts)
}

// Syncer orchestrates one sync run: resolve calendar, snapshot existing
// events, fetch contacts, then reconcile and write one contact at a time.
type Syncer struct {
	out    io.Writer
	logger *slog.Logger
	source ContactSource
	store  CalendarStore

	CalendarName string
	Clock        Clock
	DryRun       bool

	// Report forwards non-fatal errors to the configured error sink.
	// May be nil.
	Report func(error)
}

// New creates a Syncer writing progress lines to out.
func New(out io.Writer, logger *slog.Logger, source ContactSource, store CalendarStore, calendarName string) *Syncer {
	return &Syncer{
		out:          out,
		logger:       logger,
		source:       source,
		store:        store,
		CalendarName: calendarName,
		Clock:        RealClock{},
	}
}

// Run executes the sync. Calendar resolution and existing-event discovery
// failures abort the run; duplicate prevention depends on the snapshot, so
// proceeding without it would re-create every event. A contact fetch failure
// degrades to an empty contact set, and per-event write failures are counted
// and logged but never stop the loop.
func (s *Syncer) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	fmt.Fprintln(s.out, "Starting birthday sync...")

	calendarID, err := s.store.FindOrCreateCalendar(ctx, s.CalendarName)
	if err != nil {
		return summary, fmt.Errorf("unable to access or create calendar %q: %w", s.CalendarName, err)
	}
	fmt.Fprintf(s.out, "Using calendar: %s\n", s.CalendarName)

	existing, err := s.store.BirthdayEvents(ctx, calendarID)
	if err != nil {
		return summary, fmt.Errorf("could not check existing events: %w", err)
	}
	if len(existing) > 0 {
		fmt.Fprintf(s.out, "Found %d existing birthday events\n", len(existing))
	}

	contacts, err := s.source.ContactsWithBirthdays(ctx)
	if err != nil {
		// Deliberate degrade-to-no-op: a contacts hiccup must not abort the
		// run once the calendar side is known to be healthy.
		s.logger.Error("error retrieving contacts", "error", err)
		s.report(err)
		contacts = nil
	}
	fmt.Fprintf(s.out, "Found %d contacts with birthdays\n", len(contacts))

	now := s.Clock.Now()
	for _, contact := range contacts {
		if err := ctx.Err(); err != nil {
			// Surface whatever was accomplished before the deadline hit.
			fmt.Fprintf(s.out, "\nSync interrupted: %s\n", summary)
			return summary, err
		}
		summary.Contacts++

		decision := Decide(now, contact, existing)

		if s.DryRun {
			fmt.Fprintf(s.out, "· Would %s event for %s (%s)\n",
				decision.Action, contact.Name, decision.Occurrence.Start.Format(birthday.DateFormat))
			continue
		}

		switch decision.Action {
		case ActionCreate:
			if err := s.store.CreateEvent(ctx, calendarID, decision.Occurrence); err != nil {
				s.logger.Error("error creating birthday event", "contact", contact.Name, "error", err)
				s.report(err)
				fmt.Fprintf(s.out, "✗ Failed to create event for %s\n", contact.Name)
				summary.Failed++
				continue
			}
			fmt.Fprintf(s.out, "✓ Created event for %s\n", contact.Name)
			summary.Created++
		case ActionUpdate:
			if err := s.store.UpdateEvent(ctx, calendarID, decision.EventID, decision.Occurrence); err != nil {
				s.logger.Error("error updating birthday event", "contact", contact.Name, "error", err)
				s.report(err)
				fmt.Fprintf(s.out, "✗ Failed to update event for %s\n", contact.Name)
				summary.Failed++
				continue
			}
			fmt.Fprintf(s.out, "↻ Updated event for %s\n", contact.Name)
			summary.Updated++
		case ActionSkip:
			fmt.Fprintf(s.out, "⊙ Skipped %s (up to date)\n", contact.Name)
			summary.Skipped++
		}
	}

	fmt.Fprintf(s.out, "\nSync complete: %s\n", summary)
	return summary, nil
}

func (s *Syncer) report(err error) {
	if s.Report != nil {
		s.Report(err)
	}
}
