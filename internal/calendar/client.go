package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/sbginvoice/internal/instrumentation"
)

// Client wraps the Google Calendar service
type Client struct {
	svc     *gcal.Service
	metrics *instrumentation.Metrics
}

// NewClient creates a Calendar client from raw client options. Tests use it
// with option.WithEndpoint to point at a fake API.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// NewClientFromTokenSource creates a Calendar client authenticated with ts.
func NewClientFromTokenSource(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	client := oauth2.NewClient(ctx, ts)

	// Force HTTP/1.1 by disabling HTTP/2
	transport := client.Transport.(*oauth2.Transport)
	transport.Base = &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
	}

	return NewClient(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)...)
}

// WithMetrics sets the recorder for Google API operation metrics.
func (c *Client) WithMetrics(m *instrumentation.Metrics) *Client {
	c.metrics = m
	return c
}

// ListMonthEvents returns every event of calendarID that overlaps the given
// month, recurring events expanded, ordered by start time. An empty slice is
// a valid result.
func (c *Client) ListMonthEvents(ctx context.Context, calendarID string, year int, month time.Month) ([]Event, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("month %d out of range", month)
	}
	start, end := MonthBounds(year, month)
	return c.ListEvents(ctx, calendarID, start, end)
}

// ListEvents lists single events in a calendar within [timeMin, timeMax).
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Event, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, "events.list")
	defer span.End()
	started := time.Now()

	call := c.svc.Events.List(calendarID).
		TimeMin(timeMin.UTC().Format(time.RFC3339)).
		TimeMax(timeMax.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")

	events := []Event{}
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item == nil || item.Status == statusCancelled {
				continue
			}
			events = append(events, toEvent(item))
		}
		return nil
	})
	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, "events.list", instrumentation.StatusError, time.Since(started))
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	instrumentation.SetSpanSuccess(span)
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, "events.list", instrumentation.StatusSuccess, time.Since(started))
	return events, nil
}
