// Package alertgroup holds the read model the escalation engine consumes:
// alert groups with their alerts, lifecycle state, paging invitations,
// audit history, and per-user notification policies. The engine never owns
// this data; it reads committed state supplied by the surrounding system.
package alertgroup

import (
	"time"
)

// UserRef identifies a notifiable user. Username may be empty for users
// whose profile was never completed; the rotation rule tolerates that.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// ScheduleRef identifies an on-call schedule resolved externally.
type ScheduleRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// GroupRef identifies a user group whose membership is resolved downstream.
type GroupRef struct {
	ID     string `json:"id"`
	Handle string `json:"handle,omitempty"`
}

// ActionRef identifies a custom outgoing action (button).
type ActionRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// WebhookRef identifies a custom outgoing webhook.
type WebhookRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Alert is a single raw alert inside an alert group. Only the creation
// timestamp matters to the engine (alert-count window checks).
type Alert struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertGroup is a deduplicated cluster of alerts being escalated together.
type AlertGroup struct {
	ID string `json:"id"`

	// Alerts ordered by arrival; the last element is the most recent.
	Alerts []Alert `json:"alerts,omitempty"`

	Acknowledged bool `json:"acknowledged,omitempty"`
	Resolved     bool `json:"resolved,omitempty"`

	// Silenced marks the group silenced. SilencedUntil carries the expiry;
	// nil with Silenced set means silenced forever.
	Silenced      bool       `json:"silenced,omitempty"`
	SilencedUntil *time.Time `json:"silenced_until,omitempty"`

	// RootID is set when this group was attached to another group; an
	// attached group never escalates on its own.
	RootID string `json:"root_id,omitempty"`

	// LogRecords is the append-only escalation history.
	LogRecords []LogRecord `json:"log_records,omitempty"`

	// PersonalLog holds per-user notification attempts.
	PersonalLog []PersonalLogRecord `json:"personal_log,omitempty"`

	// ResolutionNotes are optional operator notes folded into the log view.
	ResolutionNotes []ResolutionNote `json:"resolution_notes,omitempty"`

	// Invitations are direct pages of individual users.
	Invitations []Invitation `json:"invitations,omitempty"`

	// NotificationPolicies maps user ID to that user's personal
	// notification chain, used by the plan projector.
	NotificationPolicies map[string][]NotificationPolicyStep `json:"notification_policies,omitempty"`
}

// LastAlert returns the most recent alert, or nil for an empty group.
func (g *AlertGroup) LastAlert() *Alert {
	if len(g.Alerts) == 0 {
		return nil
	}
	return &g.Alerts[len(g.Alerts)-1]
}

// AlertsWithin counts alerts created in the window ending at the most
// recent alert's timestamp.
func (g *AlertGroup) AlertsWithin(window time.Duration) int {
	last := g.LastAlert()
	if last == nil {
		return 0
	}
	cutoff := last.CreatedAt.Add(-window)
	n := 0
	for _, a := range g.Alerts {
		if !a.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n
}

// SilencedForever reports whether the group is silenced with no expiry.
func (g *AlertGroup) SilencedForever() bool {
	return g.Silenced && g.SilencedUntil == nil
}

// SilenceRemaining returns how much silence time is left at now, or zero.
func (g *AlertGroup) SilenceRemaining(now time.Time) time.Duration {
	if !g.Silenced || g.SilencedUntil == nil {
		return 0
	}
	if rem := g.SilencedUntil.Sub(now); rem > 0 {
		return rem
	}
	return 0
}

// Attached reports whether this group was attached to a root group.
func (g *AlertGroup) Attached() bool {
	return g.RootID != ""
}

// ActiveInvitations returns invitations still awaiting acknowledgement.
func (g *AlertGroup) ActiveInvitations() []Invitation {
	var out []Invitation
	for _, inv := range g.Invitations {
		if inv.Active {
			out = append(out, inv)
		}
	}
	return out
}

// PoliciesFor returns the personal notification chain for a user, using a
// single immediate default notification when the user configured nothing.
func (g *AlertGroup) PoliciesFor(userID string, important bool) []NotificationPolicyStep {
	if steps, ok := g.NotificationPolicies[userID]; ok && len(steps) > 0 {
		if important {
			var imp []NotificationPolicyStep
			for _, s := range steps {
				if s.Important {
					imp = append(imp, s)
				}
			}
			if len(imp) > 0 {
				return imp
			}
		}
		var def []NotificationPolicyStep
		for _, s := range steps {
			if !s.Important {
				def = append(def, s)
			}
		}
		if len(def) > 0 {
			return def
		}
		return steps
	}
	return []NotificationPolicyStep{{Kind: NotifyStepNotify, Channel: ChannelDefault}}
}
