package driver

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/OWNER/escalator/internal/alertgroup"
	"github.com/OWNER/escalator/internal/escalation"
	"github.com/OWNER/escalator/internal/taskq"
)

// logNotifier is the fallback delivery sink when no real notifier is
// configured: it records each task in the driver log and nothing else.
type logNotifier struct {
	logger *log.Logger
}

func (n logNotifier) Notify(t escalation.Task) error {
	if t.User != nil {
		n.logger.Printf("Task %s: %s -> %s (group %s)", t.ID, t.Type, t.User.Username, t.AlertGroupID)
	} else {
		n.logger.Printf("Task %s: %s (group %s)", t.ID, t.Type, t.AlertGroupID)
	}
	return nil
}

// deliverer wraps the configured notifier with the task types the driver
// handles itself: the final-resolve task mutates the group, and per-user
// notification tasks leave a personal log record behind. mutated tells
// the caller whether the group document needs another write.
type deliverer struct {
	next    taskq.Notifier
	clock   escalation.Clock
	audit   escalation.AuditLog
	group   *alertgroup.AlertGroup
	mutated bool
}

func (d *deliverer) Notify(t escalation.Task) error {
	switch t.Type {
	case escalation.TaskResolveByLastStep:
		if d.group.Resolved {
			return nil
		}
		d.group.Resolved = true
		d.mutated = true
		rec := alertgroup.LogRecord{
			ID:        uuid.NewString(),
			Type:      alertgroup.RecordResolve,
			CreatedAt: d.clock.Now(),
			Reason:    "resolved automatically",
		}
		if err := d.audit.Append(d.group, rec); err != nil {
			return err
		}
		return d.next.Notify(t)

	case escalation.TaskNotifyUser:
		if t.User != nil {
			d.group.PersonalLog = append(d.group.PersonalLog, alertgroup.PersonalLogRecord{
				ID:        uuid.NewString(),
				UserID:    t.User.ID,
				Type:      alertgroup.PersonalTriggered,
				CreatedAt: d.clock.Now(),
				Reason:    t.Reason,
			})
			d.mutated = true
		}
		return d.next.Notify(t)

	default:
		return d.next.Notify(t)
	}
}

func finishedRecord(now time.Time) alertgroup.LogRecord {
	return alertgroup.LogRecord{
		ID:        uuid.NewString(),
		Type:      alertgroup.RecordEscalationFinished,
		CreatedAt: now,
	}
}
