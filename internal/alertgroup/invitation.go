package alertgroup

import (
	"time"
)

// InvitationAttemptsLimit caps how many times an unanswered invitation is
// re-sent before it goes quiet.
const InvitationAttemptsLimit = 5

// Invitation is a direct page of one user into an alert group, retried on
// a fixed backoff schedule until acknowledged or exhausted.
type Invitation struct {
	ID        string    `json:"id"`
	Invitee   UserRef   `json:"invitee"`
	Author    *UserRef  `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Attempt counts notification attempts already made (0-based).
	Attempt int `json:"attempt"`

	// Active is cleared when the invitee responds or attempts run out.
	Active bool `json:"active"`
}

// DelayForAttempt returns how long after the previous attempt the given
// attempt fires: attempt n waits (n+1) * 10 minutes.
func DelayForAttempt(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(attempt+1) * 10 * time.Minute
}
