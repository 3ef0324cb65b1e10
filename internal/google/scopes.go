package google

import (
	gcal "google.golang.org/api/calendar/v3"
)

// DefaultOAuthScopes are the scopes requested during authorization. The
// invoice run only reads events, so read-only calendar access is enough.
var DefaultOAuthScopes = []string{
	gcal.CalendarReadonlyScope,
}
