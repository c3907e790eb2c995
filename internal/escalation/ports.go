package escalation

import (
	"time"

	"github.com/OWNER/escalator/internal/alertgroup"
)

// Clock supplies the current time. Injectable so step timing is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ScheduleResolver maps a schedule to the users on call at an instant.
// A non-nil error signals resolution failure (for example a broken
// calendar import), distinct from a successful empty result.
type ScheduleResolver interface {
	UsersOnCallNow(schedule alertgroup.ScheduleRef, at time.Time) ([]alertgroup.UserRef, error)
}

// AuditLog is the append-only sink for escalation log records. An
// implementation must attach the record to the alert group's history (the
// plan projector reads it from there) before returning.
type AuditLog interface {
	Append(g *alertgroup.AlertGroup, rec alertgroup.LogRecord) error
}

// TaskSubmitter accepts notification and action work scheduled by step
// handlers. Implementations must defer the work until the enclosing
// snapshot write commits; a step never performs delivery itself.
type TaskSubmitter interface {
	Submit(t Task)
}

// UserDirectory resolves stored user references against the live user
// set. Snapshot deserialization drops queue members the directory no
// longer knows.
type UserDirectory interface {
	Lookup(id string) (alertgroup.UserRef, bool)
}

// LivePolicyWriter propagates the rotation cursor back onto the live
// configured policy, best effort, so a manually re-triggered escalation
// resumes the rotation instead of restarting it. May be left nil.
type LivePolicyWriter interface {
	SetLastNotified(policyID string, user alertgroup.UserRef)
}

// TaskType names a unit of deferred notification or action work.
type TaskType string

const (
	TaskNotifyUser        TaskType = "notify_user"
	TaskNotifyAll         TaskType = "notify_all"
	TaskNotifyGroup       TaskType = "notify_group"
	TaskTriggerAction     TaskType = "trigger_action"
	TaskTriggerWebhook    TaskType = "trigger_webhook"
	TaskResolveByLastStep TaskType = "resolve_by_last_step"
)

// Task is one unit of work handed to the TaskSubmitter. Delivery itself
// (Slack, SMS, phone, push, webhook) happens downstream and is out of
// scope here.
type Task struct {
	ID           string   `json:"id"`
	Type         TaskType `json:"type"`
	AlertGroupID string   `json:"alert_group_id"`

	// User is set for per-user notification tasks.
	User *alertgroup.UserRef `json:"user,omitempty"`

	// StepOrder parameterizes channel-wide and group tasks.
	StepOrder int `json:"step_order,omitempty"`

	// PolicyID is the correlation key for action and webhook tasks.
	PolicyID string `json:"policy_id,omitempty"`

	Important bool   `json:"important,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
