package media

import "errors"

var (
	// ErrDownload is returned when a video could not be fetched after all retries.
	ErrDownload = errors.New("video download failed")
	// ErrHTTPStatus wraps a non-retryable HTTP status.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrEmptySource is returned for a blank source string.
	ErrEmptySource = errors.New("empty video source")
)
