package invoice

import "fmt"

// MalformedEventError reports an event whose start or end cannot be used to
// compute a row. Index is the position in the fetched sequence.
type MalformedEventError struct {
	Index   int
	EventID string
	Field   string
	Reason  string
	Err     error
}

func (e *MalformedEventError) Error() string {
	msg := fmt.Sprintf("malformed event #%d", e.Index)
	if e.EventID != "" {
		msg += fmt.Sprintf(" (%s)", e.EventID)
	}
	msg += fmt.Sprintf(": %s %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}
