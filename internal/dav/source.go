// Package dav syncs birthdays between a CardDAV address book and a CalDAV
// calendar, for servers like Nextcloud, Radicale or Baikal.
package dav

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/carddav"

	"birthdaysync/internal/birthday"
)

// bdayFormats are the vCard BDAY layouts accepted, in preference order.
// Year-less forms like "--0214" are deliberately absent: without a birth
// year there is no age to compute.
var bdayFormats = []string{
	"2006-01-02",
	"20060102",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Source reads contacts from a CardDAV server.
type Source struct {
	client         *carddav.Client
	addressBookURL string
	logger         *slog.Logger
}

// NewSource creates a contact source for the given CardDAV endpoint using
// HTTP basic auth. When addressBookURL is empty the server's address books
// are discovered and all of them are read.
func NewSource(endpoint, username, password, addressBookURL string, logger *slog.Logger) (*Source, error) {
	httpClient := webdav.HTTPClientWithBasicAuth(nil, username, password)
	client, err := carddav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create carddav client: %w", err)
	}
	return &Source{client: client, addressBookURL: addressBookURL, logger: logger}, nil
}

// ContactsWithBirthdays returns every contact carrying a BDAY with a year.
func (s *Source) ContactsWithBirthdays(ctx context.Context) ([]birthday.Contact, error) {
	paths, err := s.addressBookPaths(ctx)
	if err != nil {
		return nil, err
	}

	query := &carddav.AddressBookQuery{
		DataRequest: carddav.AddressDataRequest{AllProp: true},
	}

	var contacts []birthday.Contact
	for _, path := range paths {
		objects, err := s.client.QueryAddressBook(ctx, path, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query address book %s: %w", path, err)
		}
		for _, obj := range objects {
			contact, ok := s.contactFrom(obj)
			if !ok {
				continue
			}
			contacts = append(contacts, contact)
		}
	}
	return contacts, nil
}

func (s *Source) addressBookPaths(ctx context.Context) ([]string, error) {
	if s.addressBookURL != "" {
		return []string{s.addressBookURL}, nil
	}

	principal, err := s.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find principal path: %w", err)
	}
	homeSet, err := s.client.FindAddressBookHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to find address book home set: %w", err)
	}
	books, err := s.client.FindAddressBooks(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("failed to find address books: %w", err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("no address books found under %s", homeSet)
	}

	paths := make([]string, 0, len(books))
	for _, book := range books {
		paths = append(paths, book.Path)
	}
	return paths, nil
}

func (s *Source) contactFrom(obj carddav.AddressObject) (birthday.Contact, bool) {
	name := obj.Card.Value(vcard.FieldFormattedName)
	if name == "" {
		return birthday.Contact{}, false
	}
	raw := obj.Card.Value(vcard.FieldBirthday)
	if raw == "" {
		return birthday.Contact{}, false
	}

	for _, layout := range bdayFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return birthday.Contact{
				ID:       obj.Path,
				Name:     name,
				Birthday: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			}, true
		}
	}

	s.logger.Warn("skipping contact with unusable birthday", "contact", name, "bday", raw)
	return birthday.Contact{}, false
}
