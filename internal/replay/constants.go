package replay

import "time"

// Session status values as rendered by the service.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// Submission outcomes.
const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
	progressInterval        = time.Second
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	directoryPermission  = 0750
	logFilePermission    = 0600
)
