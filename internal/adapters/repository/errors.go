package repository

import "errors"

// Sentinel kinds for report store errors.
var (
	ErrNotFound     = errors.New("session not found")
	ErrInvalidLimit = errors.New("invalid listing limit")
	ErrEmptyID      = errors.New("session id is required")
)
