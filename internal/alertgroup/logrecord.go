package alertgroup

import (
	"time"
)

// RecordType classifies escalation log records.
type RecordType string

// Escalation log record types. The plan projector filters some of these
// out of the human-facing log view.
const (
	RecordEscalationTriggered RecordType = "escalation_triggered"
	RecordEscalationFailed    RecordType = "escalation_failed"
	RecordEscalationFinished  RecordType = "escalation_finished"
	RecordAck                 RecordType = "ack"
	RecordUnack               RecordType = "unack"
	RecordResolve             RecordType = "resolve"
	RecordUnresolve           RecordType = "unresolve"
	RecordSilence             RecordType = "silence"
	RecordUnsilence           RecordType = "unsilence"
	RecordInvitationTriggered RecordType = "invitation_triggered"
	RecordAckReminder         RecordType = "ack_reminder_triggered"
	RecordWiped               RecordType = "wiped"
	RecordDeleted             RecordType = "deleted"
)

// FailureCode names the reason an escalation step failed. Failures are
// audit data, never errors: a misconfigured step logs a failure and the
// escalation sequence keeps moving.
type FailureCode string

const (
	FailNone                  FailureCode = ""
	FailWaitNotConfigured     FailureCode = "wait_not_configured"
	FailNoRecipients          FailureCode = "no_recipients"
	FailScheduleNotConfigured FailureCode = "schedule_not_configured"
	FailScheduleImport        FailureCode = "schedule_import_failed"
	FailNoOneOnCall           FailureCode = "no_one_on_call"
	FailGroupNotConfigured    FailureCode = "group_not_configured"
	FailWindowNotConfigured   FailureCode = "window_not_configured"
	FailActionNotConfigured   FailureCode = "action_not_configured"
	FailWebhookNotConfigured  FailureCode = "webhook_not_configured"
	FailStepUnspecified       FailureCode = "step_unspecified"
)

// LogRecord is one entry in an alert group's append-only escalation history.
type LogRecord struct {
	ID        string     `json:"id"`
	Type      RecordType `json:"type"`
	CreatedAt time.Time  `json:"created_at"`

	// Author is set when the record is attributable to a user (for
	// triggered records, the user being notified).
	Author *UserRef `json:"author,omitempty"`

	// Reason is the human-readable line shown in the log view.
	Reason string `json:"reason,omitempty"`

	// Code is set on escalation_failed records.
	Code FailureCode `json:"code,omitempty"`

	// Step and StepOrder link the record to the escalation policy step
	// that produced it; PolicyID links to the originating configured
	// policy for audit even after it is edited or deleted.
	Step      string `json:"step,omitempty"`
	StepOrder *int   `json:"step_order,omitempty"`
	PolicyID  string `json:"policy_id,omitempty"`

	// ETA is attached by time-window steps to record when escalation
	// continues.
	ETA *time.Time `json:"eta,omitempty"`

	// Detail carries free-form context from whatever initiated the
	// execution, e.g. which poll run the step ran under.
	Detail string `json:"detail,omitempty"`
}

// PersonalRecordType classifies per-user notification log records.
type PersonalRecordType string

const (
	PersonalTriggered PersonalRecordType = "triggered"
	PersonalFailed    PersonalRecordType = "failed"
	PersonalSuccess   PersonalRecordType = "success"
)

// PersonalLogRecord is one per-user notification attempt.
type PersonalLogRecord struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Type      PersonalRecordType `json:"type"`
	CreatedAt time.Time          `json:"created_at"`
	Channel   Channel            `json:"channel,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

// ResolutionNote is an operator-written note, optionally folded into the
// merged log view.
type ResolutionNote struct {
	ID        string    `json:"id"`
	Author    *UserRef  `json:"author,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
