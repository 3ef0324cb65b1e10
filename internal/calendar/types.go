package calendar

import (
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

// EventTime is the start or end of an event as the API returned it.
// Exactly one of Date (all-day, "2006-01-02") and DateTime (RFC3339) is set
// on well-formed events.
type EventTime struct {
	Date     string
	DateTime string
}

// IsZero reports whether neither field is set.
func (t EventTime) IsZero() bool {
	return t.Date == "" && t.DateTime == ""
}

// AllDay reports whether the time is a calendar date without a time of day.
func (t EventTime) AllDay() bool {
	return t.DateTime == "" && t.Date != ""
}

// Event is a fetched calendar event. Start or End are nil when the API
// record lacked them.
type Event struct {
	ID          string
	Summary     string
	Description string
	Status      string
	Start       *EventTime
	End         *EventTime
}

const statusCancelled = "cancelled"

// MonthBounds returns the half-open interval [first day of month, first day
// of the following month) in UTC. December rolls over into January of the
// next year.
func MonthBounds(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if month == time.December {
		return start, time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return start, time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
}

// toEventTime converts an API start/end object.
func toEventTime(t *gcal.EventDateTime) *EventTime {
	if t == nil {
		return nil
	}
	return &EventTime{
		Date:     t.Date,
		DateTime: t.DateTime,
	}
}

// toEvent converts a Google Calendar event to an Event.
func toEvent(event *gcal.Event) Event {
	if event == nil {
		return Event{}
	}
	return Event{
		ID:          event.Id,
		Summary:     event.Summary,
		Description: event.Description,
		Status:      event.Status,
		Start:       toEventTime(event.Start),
		End:         toEventTime(event.End),
	}
}
