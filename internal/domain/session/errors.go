package session

import "errors"

// Session-level failures. Frame-level problems never surface here.
var (
	ErrSourceOpen = errors.New("could not open video file")
	ErrNoData     = errors.New("no data analyzed")
)

// Report-facing messages for the session-level failures.
const (
	msgSourceOpen = "Could not open video file"
	msgNoData     = "No data analyzed"
)

// ErrorMessage renders err the way it appears in a report's error field.
func ErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceOpen):
		return msgSourceOpen
	case errors.Is(err, ErrNoData):
		return msgNoData
	default:
		return err.Error()
	}
}
