package service

import "errors"

var (
	// ErrNotStarted is returned by operations that need a running service.
	ErrNotStarted = errors.New("service not started")
	// ErrInvalidRequest wraps submission validation failures.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoAnalyzer is returned by Start without a session analyzer.
	ErrNoAnalyzer = errors.New("no session analyzer configured")
)
