// Package google syncs birthdays using the Google People and Calendar APIs.
package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"

	"birthdaysync/internal/birthday"
)

const connectionsPageSize = 200

// Source reads contacts from the Google People API.
type Source struct {
	service *people.Service
	logger  *slog.Logger
}

// NewSource creates a contact source on top of an authenticated HTTP client.
func NewSource(ctx context.Context, httpClient *http.Client, logger *slog.Logger) (*Source, error) {
	service, err := people.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create people service: %w", err)
	}
	return &Source{service: service, logger: logger}, nil
}

// ContactsWithBirthdays pages through the user's connections and returns
// those with a full birthday. Contacts whose birthday has no year are
// skipped, the age cannot be computed for them.
func (s *Source) ContactsWithBirthdays(ctx context.Context) ([]birthday.Contact, error) {
	var contacts []birthday.Contact
	pageToken := ""
	for {
		call := s.service.People.Connections.List("people/me").
			PersonFields("names,birthdays").
			PageSize(connectionsPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to fetch connections: %w", err)
		}

		for _, person := range resp.Connections {
			contact, ok := s.contactFrom(person)
			if !ok {
				continue
			}
			contacts = append(contacts, contact)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return contacts, nil
		}
	}
}

func (s *Source) contactFrom(person *people.Person) (birthday.Contact, bool) {
	if len(person.Names) == 0 || len(person.Birthdays) == 0 {
		return birthday.Contact{}, false
	}
	name := person.Names[0].DisplayName
	if name == "" {
		return birthday.Contact{}, false
	}
	date := person.Birthdays[0].Date
	if date == nil {
		return birthday.Contact{}, false
	}
	if date.Year == 0 {
		s.logger.Warn("skipping contact without birth year", "contact", name)
		return birthday.Contact{}, false
	}
	return birthday.Contact{
		ID:       person.ResourceName,
		Name:     name,
		Birthday: time.Date(int(date.Year), time.Month(date.Month), int(date.Day), 0, 0, 0, 0, time.UTC),
	}, true
}
