package escalation

import (
	"time"

	"github.com/OWNER/escalator/internal/alertgroup"
	"github.com/OWNER/escalator/internal/timeutil"
)

// StepConfig is the immutable configuration of one escalation step,
// copied verbatim from the live policy when the snapshot is built. Only
// the fields relevant to the step kind are meaningful.
type StepConfig struct {
	// WaitDelay configures a Wait step. Zero means unconfigured.
	WaitDelay timeutil.Duration `json:"wait_delay,omitempty"`

	// NotifyQueue is the ordered-by-policy user set for the queue and
	// multiple-users steps. The order here is not the notification order;
	// rotation sorts deterministically (see NextInRotation). A schedule
	// step refreshes this queue with whoever is on call at run time.
	NotifyQueue []alertgroup.UserRef `json:"notify_queue,omitempty"`

	// FromTime and ToTime bound a NotifyIfTime window; it may wrap
	// midnight. Both must be set for the step to be configured.
	FromTime *timeutil.TimeOfDay `json:"from_time,omitempty"`
	ToTime   *timeutil.TimeOfDay `json:"to_time,omitempty"`

	// NumAlertsInWindow and NumMinutesInWindow configure the
	// alert-count-window step. Zero means unconfigured.
	NumAlertsInWindow  int `json:"num_alerts_in_window,omitempty"`
	NumMinutesInWindow int `json:"num_minutes_in_window,omitempty"`

	NotifySchedule *alertgroup.ScheduleRef `json:"notify_schedule,omitempty"`
	NotifyGroup    *alertgroup.GroupRef    `json:"notify_group,omitempty"`
	CustomAction   *alertgroup.ActionRef   `json:"custom_action,omitempty"`
	CustomWebhook  *alertgroup.WebhookRef  `json:"custom_webhook,omitempty"`
}

// StepState is the mutable per-run state of one policy snapshot, zeroed
// when the snapshot is built and mutated in place run to run.
type StepState struct {
	// LastNotified is the rotation cursor for the users-queue step.
	LastNotified *alertgroup.UserRef `json:"last_notified,omitempty"`

	// EscalationCounter counts repeat-escalation passes, capped at
	// MaxRepeatTimes.
	EscalationCounter int `json:"escalation_counter,omitempty"`

	// PassedLastTime is stamped on every execution; the plan projector
	// uses it to tell passed steps from future ones.
	PassedLastTime *time.Time `json:"passed_last_time,omitempty"`

	// Paused is set by the alert-count-window step while its threshold
	// is unmet.
	Paused bool `json:"paused,omitempty"`
}

// PolicySnapshot is the frozen, point-in-time copy of one escalation
// policy at a position in the chain. The originating configured policy
// may later be edited or deleted without affecting this copy.
type PolicySnapshot struct {
	// ID is the identity of the originating configured policy, kept for
	// audit and log linking.
	ID string `json:"id"`

	// Order is the position within the escalation chain. Orders are dense
	// and unique within one snapshot; they define execution sequencing
	// and the projector's passed/future comparisons.
	Order int `json:"order"`

	Step   Step       `json:"step"`
	Config StepConfig `json:"config"`
	State  StepState  `json:"state"`
}

// PolicyConfig is one live configured policy as supplied by the routing
// resolution when a snapshot is built.
type PolicyConfig struct {
	ID     string     `json:"id"`
	Order  int        `json:"order"`
	Step   Step       `json:"step"`
	Config StepConfig `json:"config"`
}

// ChannelFilterSnapshot freezes the routing rule identity active when
// escalation started, for display even if the live rule changes.
type ChannelFilterSnapshot struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ChainSnapshot freezes the escalation chain identity active when
// escalation started.
type ChainSnapshot struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Route is the resolved routing context for an alert group: its channel
// filter, the escalation chain the filter selects, and that chain's
// policies in order. The caller resolves it from live configuration once,
// when escalation starts.
type Route struct {
	ChannelFilter  *ChannelFilterSnapshot `json:"channel_filter,omitempty"`
	Chain          *ChainSnapshot         `json:"chain,omitempty"`
	SlackChannelID string                 `json:"slack_channel_id,omitempty"`
	Policies       []PolicyConfig         `json:"policies,omitempty"`
}
