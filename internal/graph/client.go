// Package graph is a minimal Microsoft Graph REST client covering the
// calendar and contact surface this tool consumes: list/create calendars,
// list/create/update events, list contacts. Pagination follows the
// @odata.nextLink continuation URL until exhausted.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultBaseURL is the production Graph endpoint. Tests point the client
// at an httptest server instead.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client issues authenticated requests against the Graph API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	user       string
}

// NewClient creates a Graph client on top of an authenticated HTTP client.
// targetUser selects the mailbox to act on for app-only sessions; when empty
// the signed-in user ("me") is addressed.
func NewClient(httpClient *http.Client, targetUser string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    DefaultBaseURL,
		user:       targetUser,
	}
}

// SetBaseURL overrides the API endpoint, for testing.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// root returns the user segment all resource paths hang off.
func (c *Client) root() string {
	if c.user != "" {
		return c.baseURL + "/users/" + url.PathEscape(c.user)
	}
	return c.baseURL + "/me"
}

// Calendar is a calendar resource, reduced to the fields this tool uses.
type Calendar struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// DateTimeTimeZone is the Graph representation of a zoned timestamp.
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// ItemBody carries an event description.
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// RecurrencePattern describes how an event repeats.
type RecurrencePattern struct {
	Type       string `json:"type"`
	Interval   int    `json:"interval"`
	Month      int    `json:"month,omitempty"`
	DayOfMonth int    `json:"dayOfMonth,omitempty"`
}

// RecurrenceRange bounds a recurrence in time.
type RecurrenceRange struct {
	Type      string `json:"type"`
	StartDate string `json:"startDate"`
}

// PatternedRecurrence combines a pattern with its range.
type PatternedRecurrence struct {
	Pattern RecurrencePattern `json:"pattern"`
	Range   RecurrenceRange   `json:"range"`
}

// Event is an event resource, reduced to the fields this tool reads and
// writes.
type Event struct {
	ID                         string               `json:"id,omitempty"`
	Subject                    string               `json:"subject"`
	Categories                 []string             `json:"categories,omitempty"`
	IsAllDay                   bool                 `json:"isAllDay"`
	Start                      *DateTimeTimeZone    `json:"start,omitempty"`
	End                        *DateTimeTimeZone    `json:"end,omitempty"`
	Body                       *ItemBody            `json:"body,omitempty"`
	IsReminderOn               bool                 `json:"isReminderOn"`
	ReminderMinutesBeforeStart int                  `json:"reminderMinutesBeforeStart"`
	Recurrence                 *PatternedRecurrence `json:"recurrence,omitempty"`
}

// Contact is a contact resource, reduced to the fields this tool uses.
// Birthday is kept in wire format; an empty string means no birthday is set.
type Contact struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Birthday    string `json:"birthday"`
}

// ListCalendars returns every calendar of the addressed user.
func (c *Client) ListCalendars(ctx context.Context) ([]Calendar, error) {
	var calendars []Calendar
	next := c.root() + "/calendars"
	for next != "" {
		var page struct {
			Value    []Calendar `json:"value"`
			NextLink string     `json:"@odata.nextLink"`
		}
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list calendars: %w", err)
		}
		calendars = append(calendars, page.Value...)
		next = page.NextLink
	}
	return calendars, nil
}

// CreateCalendar creates a calendar with the given display name.
func (c *Client) CreateCalendar(ctx context.Context, name string) (Calendar, error) {
	var created Calendar
	if err := c.do(ctx, http.MethodPost, c.root()+"/calendars", Calendar{Name: name}, &created); err != nil {
		return Calendar{}, fmt.Errorf("failed to create calendar: %w", err)
	}
	return created, nil
}

// ListEvents returns every event in the given calendar.
func (c *Client) ListEvents(ctx context.Context, calendarID string) ([]Event, error) {
	var events []Event
	next := c.root() + "/calendars/" + url.PathEscape(calendarID) + "/events?$top=100"
	for next != "" {
		var page struct {
			Value    []Event `json:"value"`
			NextLink string  `json:"@odata.nextLink"`
		}
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list events: %w", err)
		}
		events = append(events, page.Value...)
		next = page.NextLink
	}
	return events, nil
}

// CreateEvent inserts a new event into the given calendar.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, event Event) error {
	path := c.root() + "/calendars/" + url.PathEscape(calendarID) + "/events"
	if err := c.do(ctx, http.MethodPost, path, event, nil); err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// UpdateEvent patches an existing event by id with freshly computed fields.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, event Event) error {
	path := c.root() + "/events/" + url.PathEscape(eventID)
	if err := c.do(ctx, http.MethodPatch, path, event, nil); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// ListContacts returns every contact of the addressed user.
func (c *Client) ListContacts(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	next := c.root() + "/contacts?$top=100"
	for next != "" {
		var page struct {
			Value    []Contact `json:"value"`
			NextLink string    `json:"@odata.nextLink"`
		}
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list contacts: %w", err)
		}
		contacts = append(contacts, page.Value...)
		next = page.NextLink
	}
	return contacts, nil
}

// apiError is the error envelope Graph wraps failures in.
type apiError struct {
	Err struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Err.Code != "" {
			return fmt.Errorf("graph: HTTP %d: %s: %s", resp.StatusCode, apiErr.Err.Code, apiErr.Err.Message)
		}
		return fmt.Errorf("graph: HTTP %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
