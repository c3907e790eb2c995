package escalation

import (
	"time"
)

// Timing constants for step execution.
const (
	// NextStepDelay is the minimum spacing between consecutive steps,
	// used whenever a handler has no opinion about its own eta.
	NextStepDelay = 5 * time.Second

	// DefaultWaitDelay is used by a Wait step with no configured delay.
	DefaultWaitDelay = 5 * time.Minute

	// MaxRepeatTimes caps how often a repeat-escalation step restarts the
	// chain. Past the cap the step becomes a no-op.
	MaxRepeatTimes = 5

	// PauseRecheckDelay is how often a paused alert-count-window step is
	// re-polled by the driver.
	PauseRecheckDelay = time.Minute
)

// StepResult is the immutable outcome of running one escalation step. It
// is never persisted standalone; the snapshot folds it into its cursor
// fields immediately after the step executes.
type StepResult struct {
	// ETA is when the driver should next invoke execution. Zero means no
	// further automatic execution.
	ETA time.Time

	// StopEscalation marks the escalation sequence terminal.
	StopEscalation bool

	// StartFromBeginning resets the cursor to the first policy.
	StartFromBeginning bool

	// PauseEscalation repeats the same step at ETA instead of advancing.
	PauseEscalation bool
}
