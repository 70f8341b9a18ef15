package vision

import "errors"

// ErrNilDetector is returned when an analyzer is built without detectors.
var ErrNilDetector = errors.New("face and eye detectors are required")
