package replay

import "errors"

var (
	// ErrUnexpectedStatus is returned when the service answers with an unexpected HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrInvalidReport marks a report that is neither a full metric set nor a single error.
	ErrInvalidReport = errors.New("invalid report")

	// ErrVerification is returned by Run when any collected report is invalid.
	ErrVerification = errors.New("verification failed")
)
