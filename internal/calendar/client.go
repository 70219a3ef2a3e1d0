// Package calendar wraps the Google Calendar API as consumed by the rest of
// the system: event CRUD plus the freebusy query feeding the availability
// engine. Every call takes the access token produced by the credential
// manager; nothing here touches stored credentials.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/pysugar/calendar-nexus/internal/availability"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// DefaultCalendarID addresses the tenant's primary calendar.
const DefaultCalendarID = "primary"

// Event is the provider-neutral event shape exposed to handlers.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// Client is the calendar collaborator surface. Implementations must
// propagate ctx to the underlying network calls.
type Client interface {
	ListEvents(ctx context.Context, accessToken, calendarID string, window availability.Interval) ([]Event, error)
	InsertEvent(ctx context.Context, accessToken, calendarID string, event Event) (*Event, error)
	UpdateEvent(ctx context.Context, accessToken, calendarID string, event Event) (*Event, error)
	DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error
	BusyIntervals(ctx context.Context, accessToken, calendarID string, window availability.Interval) ([]availability.Interval, error)
}

type googleClient struct{}

// NewClient returns a Client backed by the Google Calendar API.
func NewClient() Client {
	return googleClient{}
}

// service builds a per-request API client from the caller's access token.
func (googleClient) service(ctx context.Context, accessToken string) (*gcal.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := gcal.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

func (c googleClient) ListEvents(ctx context.Context, accessToken, calendarID string, window availability.Interval) ([]Event, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	call := svc.Events.List(calendarID).
		TimeMin(window.Start.Format(time.RFC3339)).
		TimeMax(window.End.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)

	var events []Event
	if err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			events = append(events, fromAPIEvent(item))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

func (c googleClient) InsertEvent(ctx context.Context, accessToken, calendarID string, event Event) (*Event, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	created, err := svc.Events.Insert(calendarID, toAPIEvent(event)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	out := fromAPIEvent(created)
	return &out, nil
}

func (c googleClient) UpdateEvent(ctx context.Context, accessToken, calendarID string, event Event) (*Event, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	updated, err := svc.Events.Update(calendarID, event.ID, toAPIEvent(event)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	out := fromAPIEvent(updated)
	return &out, nil
}

func (c googleClient) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func (c googleClient) BusyIntervals(ctx context.Context, accessToken, calendarID string, window availability.Interval) ([]availability.Interval, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: window.Start.Format(time.RFC3339),
		TimeMax: window.End.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query failed: %w", err)
	}

	busy, err := busyFromResponse(resp)
	if err != nil {
		return nil, err
	}
	return availability.MergeBusy(busy), nil
}

// busyFromResponse converts freebusy periods to intervals. A period that does
// not parse is an error: dropping it would make occupied time look free.
func busyFromResponse(resp *gcal.FreeBusyResponse) ([]availability.Interval, error) {
	var busy []availability.Interval
	for _, cal := range resp.Calendars {
		for _, period := range cal.Busy {
			start, err := time.Parse(time.RFC3339, period.Start)
			if err != nil {
				return nil, fmt.Errorf("freebusy period start %q: %w", period.Start, err)
			}
			end, err := time.Parse(time.RFC3339, period.End)
			if err != nil {
				return nil, fmt.Errorf("freebusy period end %q: %w", period.End, err)
			}
			busy = append(busy, availability.Interval{Start: start, End: end})
		}
	}
	return busy, nil
}

func fromAPIEvent(item *gcal.Event) Event {
	ev := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
	}
	if item.Start != nil && item.Start.DateTime != "" {
		ev.Start, _ = time.Parse(time.RFC3339, item.Start.DateTime)
	}
	if item.End != nil && item.End.DateTime != "" {
		ev.End, _ = time.Parse(time.RFC3339, item.End.DateTime)
	}
	for _, att := range item.Attendees {
		if att.Email != "" {
			ev.Attendees = append(ev.Attendees, att.Email)
		}
	}
	return ev
}

func toAPIEvent(event Event) *gcal.Event {
	item := &gcal.Event{
		Id:          event.ID,
		Summary:     event.Summary,
		Description: event.Description,
		Start:       &gcal.EventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: event.End.Format(time.RFC3339)},
	}
	for _, email := range event.Attendees {
		// Empty attendee entries are treated as "no attendee", not an error.
		if email == "" {
			continue
		}
		item.Attendees = append(item.Attendees, &gcal.EventAttendee{Email: email})
	}
	return item
}
