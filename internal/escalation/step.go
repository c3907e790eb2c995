// Package escalation implements the escalation-policy execution engine:
// frozen policy snapshots executed step by step against an alert group,
// the snapshot state machine advanced by an external driver, and the
// ports the engine needs from its collaborators.
package escalation

// Step selects the behavior of one escalation policy. The set is closed;
// StepUnconfigured is an explicit member so dispatch stays exhaustive
// instead of special-casing a missing value.
type Step string

const (
	StepWait                         Step = "wait"
	StepNotifyAll                    Step = "notify_all"
	StepRepeatEscalation             Step = "repeat_escalation"
	StepFinalResolve                 Step = "final_resolve"
	StepNotifyGroup                  Step = "notify_group"
	StepNotifyGroupImportant         Step = "notify_group_important"
	StepNotifySchedule               Step = "notify_schedule"
	StepNotifyScheduleImportant      Step = "notify_schedule_important"
	StepTriggerAction                Step = "trigger_action"
	StepTriggerWebhook               Step = "trigger_webhook"
	StepNotifyUsersQueue             Step = "notify_users_queue"
	StepNotifyIfTime                 Step = "notify_if_time"
	StepNotifyIfAlertsInWindow       Step = "notify_if_alerts_in_window"
	StepNotifyMultipleUsers          Step = "notify_multiple_users"
	StepNotifyMultipleUsersImportant Step = "notify_multiple_users_important"
	StepUnconfigured                 Step = "unconfigured"
)

// Known reports whether s is a member of the closed step set.
func (s Step) Known() bool {
	switch s {
	case StepWait, StepNotifyAll, StepRepeatEscalation, StepFinalResolve,
		StepNotifyGroup, StepNotifyGroupImportant,
		StepNotifySchedule, StepNotifyScheduleImportant,
		StepTriggerAction, StepTriggerWebhook,
		StepNotifyUsersQueue, StepNotifyIfTime, StepNotifyIfAlertsInWindow,
		StepNotifyMultipleUsers, StepNotifyMultipleUsersImportant,
		StepUnconfigured:
		return true
	}
	return false
}

// Important reports whether the step uses important personal notification
// chains.
func (s Step) Important() bool {
	switch s {
	case StepNotifyGroupImportant, StepNotifyScheduleImportant, StepNotifyMultipleUsersImportant:
		return true
	}
	return false
}

// UserAttributable reports whether a triggered record for this step names
// a user as its author. The log view keeps author-attributed records only
// for these steps.
func (s Step) UserAttributable() bool {
	switch s {
	case StepNotifyUsersQueue, StepNotifyMultipleUsers, StepNotifyMultipleUsersImportant,
		StepNotifySchedule, StepNotifyScheduleImportant:
		return true
	}
	return false
}

// Display returns the short human name used in plan and log lines.
func (s Step) Display() string {
	switch s {
	case StepWait:
		return "wait"
	case StepNotifyAll:
		return "notify everyone in the channel"
	case StepRepeatEscalation:
		return "repeat escalation from the beginning"
	case StepFinalResolve:
		return "resolve the alert group"
	case StepNotifyGroup:
		return "notify user group"
	case StepNotifyGroupImportant:
		return "notify user group (important)"
	case StepNotifySchedule:
		return "notify on-call from schedule"
	case StepNotifyScheduleImportant:
		return "notify on-call from schedule (important)"
	case StepTriggerAction:
		return "trigger outgoing action"
	case StepTriggerWebhook:
		return "trigger outgoing webhook"
	case StepNotifyUsersQueue:
		return "round-robin notify users"
	case StepNotifyIfTime:
		return "continue escalation if current time is in range"
	case StepNotifyIfAlertsInWindow:
		return "continue escalation if alert count threshold is exceeded"
	case StepNotifyMultipleUsers:
		return "notify users"
	case StepNotifyMultipleUsersImportant:
		return "notify users (important)"
	case StepUnconfigured:
		return "unconfigured step"
	}
	return string(s)
}
