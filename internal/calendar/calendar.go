package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/bdaycal/internal/model"
	"github.com/nhle/bdaycal/internal/source"
)

// YearlyRecurrence repeats an event every year on the same date.
const YearlyRecurrence = "RRULE:FREQ=YEARLY"

const eventDateLayout = "2006-01-02"

var errFound = errors.New("matching event found")

// Service is an authenticated calendar session.
type Service struct {
	events *gcal.EventsService
}

// NewService creates a session from client options (credentials, endpoint).
func NewService(ctx context.Context, opts ...option.ClientOption) (*Service, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, &source.AuthError{
			SourceType: source.SourceTypeCalendar,
			Message:    "creating calendar client",
			Err:        err,
		}
	}
	return &Service{events: svc.Events}, nil
}

// EventExists reports whether calendarID has an event starting on the
// record's day whose summary equals the description exactly.
func (s *Service) EventExists(
	ctx context.Context, calendarID string, rec model.Record,
) (bool, error) {
	day, err := rec.Day()
	if err != nil {
		return false, err
	}

	call := s.events.List(calendarID).
		TimeMin(day.Format(time.RFC3339)).
		TimeMax(day.AddDate(0, 0, 1).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)

	err = call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Summary == rec.Description {
				return errFound
			}
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return true, nil
	}
	if err != nil {
		return false, apiError("events.list", err)
	}

	return false, nil
}

// CreateEvent inserts an all-day event on the record's day that recurs every
// year, titled with the description.
func (s *Service) CreateEvent(
	ctx context.Context, calendarID string, rec model.Record,
) error {
	day, err := rec.Day()
	if err != nil {
		return err
	}

	event := &gcal.Event{
		Summary: rec.Description,
		Start:   &gcal.EventDateTime{Date: day.Format(eventDateLayout)},
		// All-day end dates are exclusive.
		End:        &gcal.EventDateTime{Date: day.AddDate(0, 0, 1).Format(eventDateLayout)},
		Recurrence: []string{YearlyRecurrence},
	}

	if _, err := s.events.Insert(calendarID, event).Context(ctx).Do(); err != nil {
		return apiError("events.insert", err)
	}

	return nil
}

// apiError sorts API failures into auth and transport errors.
func apiError(op string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) &&
		(gErr.Code == http.StatusUnauthorized || gErr.Code == http.StatusForbidden) {
		return &source.AuthError{
			SourceType: source.SourceTypeCalendar,
			Message:    fmt.Sprintf("%s rejected: %s", op, gErr.Message),
			Err:        err,
		}
	}

	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return &source.AuthError{
			SourceType: source.SourceTypeCalendar,
			Message:    fmt.Sprintf("%s: token refresh failed", op),
			Err:        err,
		}
	}

	return &source.TransportError{
		SourceType: source.SourceTypeCalendar,
		Op:         op,
		Err:        err,
	}
}
