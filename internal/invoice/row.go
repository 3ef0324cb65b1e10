package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teemow/sbginvoice/internal/calendar"
)

const (
	// naiveDateTimeLayout accepts date-times without a zone, read as UTC.
	naiveDateTimeLayout = "2006-01-02T15:04:05"

	commentSeparator = " — "
	fallbackComment  = "Session"
)

var nanosPerHour = decimal.NewFromInt(int64(time.Hour))

// Row is one invoice line.
type Row struct {
	Date    string
	Hours   decimal.Decimal
	Comment string
}

// HoursString formats the hours with exactly two decimals.
func (r Row) HoursString() string {
	return r.Hours.StringFixed(2)
}

// Record returns the row as CSV fields.
func (r Row) Record() []string {
	return []string{r.Date, r.HoursString(), r.Comment}
}

// BuildRows maps events to rows in order. The first malformed event aborts
// the whole build.
func BuildRows(events []calendar.Event) ([]Row, error) {
	rows := make([]Row, 0, len(events))
	for i, ev := range events {
		row, err := BuildRow(i, ev)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BuildRow maps the event at position index to an invoice row.
func BuildRow(index int, ev calendar.Event) (Row, error) {
	start, end, err := eventInterval(index, ev)
	if err != nil {
		return Row{}, err
	}
	return Row{
		Date:    DateLabel(start),
		Hours:   EventDuration(start, end),
		Comment: Comment(ev.Summary, ev.Description),
	}, nil
}

// TotalHours sums the hours of rows.
func TotalHours(rows []Row) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Hours)
	}
	return total
}

// EventDuration is (end - start) in hours rounded to two decimals. An end
// before the start counts as zero.
func EventDuration(start, end time.Time) decimal.Decimal {
	d := end.Sub(start)
	if d < 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(d)).Div(nanosPerHour).Round(2)
}

// DateLabel formats the start date as "17 September, 2019", using the
// wall-clock date of t.
func DateLabel(t time.Time) string {
	return fmt.Sprintf("%d %s, %d", t.Day(), t.Month(), t.Year())
}

// Comment joins the trimmed summary and description. Either one alone is
// used as is; both empty gives "Session".
func Comment(summary, description string) string {
	summary = strings.TrimSpace(summary)
	description = strings.TrimSpace(description)

	switch {
	case summary != "" && description != "":
		return summary + commentSeparator + description
	case summary != "":
		return summary
	case description != "":
		return description
	default:
		return fallbackComment
	}
}

func eventInterval(index int, ev calendar.Event) (time.Time, time.Time, error) {
	malformed := func(field, reason string, err error) error {
		return &MalformedEventError{Index: index, EventID: ev.ID, Field: field, Reason: reason, Err: err}
	}

	if ev.Start == nil || ev.Start.IsZero() {
		return time.Time{}, time.Time{}, malformed("start", "is missing", nil)
	}
	if ev.End == nil || ev.End.IsZero() {
		return time.Time{}, time.Time{}, malformed("end", "is missing", nil)
	}
	if ev.Start.AllDay() != ev.End.AllDay() {
		return time.Time{}, time.Time{}, malformed("end", "mixes all-day and timed values with start", nil)
	}

	start, err := parseEventTime(*ev.Start)
	if err != nil {
		return time.Time{}, time.Time{}, malformed("start", "is not a valid time", err)
	}
	end, err := parseEventTime(*ev.End)
	if err != nil {
		return time.Time{}, time.Time{}, malformed("end", "is not a valid time", err)
	}
	return start, end, nil
}

// parseEventTime reads an all-day date as midnight UTC and a date-time as its
// wall clock in UTC. Any zone suffix is dropped.
func parseEventTime(t calendar.EventTime) (time.Time, error) {
	if t.AllDay() {
		return time.Parse(time.DateOnly, t.Date)
	}
	if ts, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC), nil
	}
	return time.Parse(naiveDateTimeLayout, t.DateTime)
}
