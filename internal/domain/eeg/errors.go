package eeg

import "errors"

// Sentinel kinds for eeg errors.
var (
	ErrUnknownBand = errors.New("unknown eeg band")
)
