package escalation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/OWNER/escalator/internal/alertgroup"
	"github.com/OWNER/escalator/internal/timeutil"
)

// Executor runs escalation steps against alert groups. It performs no
// delivery itself: side effects are audit records appended through Audit
// and work handed to Tasks, which the caller flushes after its snapshot
// write commits.
type Executor struct {
	Clock     Clock
	Schedules ScheduleResolver
	Audit     AuditLog
	Tasks     TaskSubmitter

	// LivePolicies is optional; when set, the users-queue step writes its
	// rotation cursor back onto the live configured policy.
	LivePolicies LivePolicyWriter

	// reason is the caller-supplied context of the execution in flight.
	// Execute sets it before dispatching, so an executor handles one
	// execution at a time.
	reason string
}

// NewExecutor builds an executor over the required ports.
func NewExecutor(audit AuditLog, tasks TaskSubmitter, schedules ScheduleResolver) *Executor {
	return &Executor{
		Clock:     SystemClock{},
		Schedules: schedules,
		Audit:     audit,
		Tasks:     tasks,
	}
}

func (x *Executor) now() time.Time {
	if x.Clock == nil {
		return time.Now().UTC()
	}
	return x.Clock.Now()
}

// Execute runs one escalation step against an alert group and reports
// what should happen next. Business-level misconfiguration never returns
// an error; it becomes a failed audit record and the step completes with
// a default result so one bad step never blocks the sequence. Errors are
// reserved for faults in the audit sink itself.
func (x *Executor) Execute(p *PolicySnapshot, g *alertgroup.AlertGroup, reason string) (StepResult, error) {
	x.reason = reason

	var res *StepResult
	var err error

	switch p.Step {
	case StepWait:
		res, err = x.stepWait(p, g)
	case StepNotifyAll:
		res, err = x.stepNotifyAll(p, g)
	case StepNotifyUsersQueue:
		res, err = x.stepNotifyUsersQueue(p, g)
	case StepNotifyMultipleUsers, StepNotifyMultipleUsersImportant:
		res, err = x.stepNotifyMultipleUsers(p, g)
	case StepNotifySchedule, StepNotifyScheduleImportant:
		res, err = x.stepNotifySchedule(p, g)
	case StepNotifyGroup, StepNotifyGroupImportant:
		res, err = x.stepNotifyGroup(p, g)
	case StepNotifyIfTime:
		res, err = x.stepNotifyIfTime(p, g)
	case StepNotifyIfAlertsInWindow:
		res, err = x.stepNotifyIfAlertsInWindow(p, g)
	case StepTriggerAction:
		res, err = x.stepTriggerAction(p, g)
	case StepTriggerWebhook:
		res, err = x.stepTriggerWebhook(p, g)
	case StepRepeatEscalation:
		res, err = x.stepRepeatEscalation(p, g)
	case StepFinalResolve:
		res, err = x.stepFinalResolve(p, g)
	case StepUnconfigured:
		res, err = x.stepUnconfigured(p, g)
	default:
		// Unknown values can only come from hand-edited documents; treat
		// them exactly like an unconfigured step.
		res, err = x.stepUnconfigured(p, g)
	}

	now := x.now()
	p.State.PassedLastTime = &now
	if err != nil {
		return StepResult{}, err
	}
	if res == nil {
		res = &StepResult{ETA: now.Add(NextStepDelay)}
	}
	return *res, nil
}

// newRecord seeds a log record linked to the executing step.
func (x *Executor) newRecord(p *PolicySnapshot, typ alertgroup.RecordType) alertgroup.LogRecord {
	order := p.Order
	return alertgroup.LogRecord{
		ID:        uuid.New().String(),
		Type:      typ,
		CreatedAt: x.now(),
		Step:      string(p.Step),
		StepOrder: &order,
		PolicyID:  p.ID,
		Detail:    x.reason,
	}
}

func (x *Executor) logTriggered(p *PolicySnapshot, g *alertgroup.AlertGroup, reason string, author *alertgroup.UserRef) error {
	rec := x.newRecord(p, alertgroup.RecordEscalationTriggered)
	rec.Reason = reason
	rec.Author = author
	return x.Audit.Append(g, rec)
}

func (x *Executor) logFailed(p *PolicySnapshot, g *alertgroup.AlertGroup, code alertgroup.FailureCode, reason string) error {
	rec := x.newRecord(p, alertgroup.RecordEscalationFailed)
	rec.Code = code
	rec.Reason = reason
	return x.Audit.Append(g, rec)
}

func (x *Executor) stepWait(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	delay := p.Config.WaitDelay.Std()
	if delay > 0 {
		if err := x.logTriggered(p, g, fmt.Sprintf("wait %s before the next step", delay), nil); err != nil {
			return nil, err
		}
	} else {
		// An unconfigured wait still waits: refusing to proceed would
		// block the whole chain on one bad step.
		delay = DefaultWaitDelay
		if err := x.logFailed(p, g, alertgroup.FailWaitNotConfigured, "wait step has no delay configured"); err != nil {
			return nil, err
		}
	}
	return &StepResult{ETA: x.now().Add(delay)}, nil
}

func (x *Executor) stepNotifyAll(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	x.Tasks.Submit(Task{
		ID:           uuid.New().String(),
		Type:         TaskNotifyAll,
		AlertGroupID: g.ID,
		StepOrder:    p.Order,
	})
	return nil, nil
}

func (x *Executor) stepNotifyUsersQueue(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	if len(p.Config.NotifyQueue) == 0 {
		return nil, x.logFailed(p, g, alertgroup.FailNoRecipients, "no recipients configured for the step")
	}
	next := NextInRotation(p.Config.NotifyQueue, p.State.LastNotified)
	p.State.LastNotified = next
	if x.LivePolicies != nil {
		x.LivePolicies.SetLastNotified(p.ID, *next)
	}
	x.Tasks.Submit(Task{
		ID:           uuid.New().String(),
		Type:         TaskNotifyUser,
		AlertGroupID: g.ID,
		User:         next,
		StepOrder:    p.Order,
	})
	return nil, x.logTriggered(p, g, "notify the next user in the rotation", next)
}

func (x *Executor) stepNotifyMultipleUsers(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	if len(p.Config.NotifyQueue) == 0 {
		return nil, x.logFailed(p, g, alertgroup.FailNoRecipients, "no recipients configured for the step")
	}
	if err := x.logTriggered(p, g, "notify multiple users", nil); err != nil {
		return nil, err
	}
	for i := range p.Config.NotifyQueue {
		u := p.Config.NotifyQueue[i]
		x.Tasks.Submit(Task{
			ID:           uuid.New().String(),
			Type:         TaskNotifyUser,
			AlertGroupID: g.ID,
			User:         &u,
			StepOrder:    p.Order,
			Important:    p.Step.Important(),
		})
		if err := x.logTriggered(p, g, fmt.Sprintf("notify %s", displayName(u)), &u); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (x *Executor) stepNotifySchedule(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	sched := p.Config.NotifySchedule
	if sched == nil {
		return nil, x.logFailed(p, g, alertgroup.FailScheduleNotConfigured, "no schedule configured for the step")
	}
	users, err := x.Schedules.UsersOnCallNow(*sched, x.now())
	if err != nil {
		return nil, x.logFailed(p, g, alertgroup.FailScheduleImport, fmt.Sprintf("could not resolve schedule %s", sched.Name))
	}
	if len(users) == 0 {
		return nil, x.logFailed(p, g, alertgroup.FailNoOneOnCall, fmt.Sprintf("no one on call for schedule %s", sched.Name))
	}
	// Refresh the queue with the on-call set captured at run time; the
	// projector renders this queue for steps already passed.
	p.Config.NotifyQueue = users
	if err := x.logTriggered(p, g, fmt.Sprintf("notify on-call from schedule %s", sched.Name), nil); err != nil {
		return nil, err
	}
	for i := range users {
		u := users[i]
		x.Tasks.Submit(Task{
			ID:           uuid.New().String(),
			Type:         TaskNotifyUser,
			AlertGroupID: g.ID,
			User:         &u,
			StepOrder:    p.Order,
			Important:    p.Step.Important(),
			Reason:       fmt.Sprintf("on call for schedule %s", sched.Name),
		})
	}
	return nil, nil
}

func (x *Executor) stepNotifyGroup(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	if p.Config.NotifyGroup == nil {
		return nil, x.logFailed(p, g, alertgroup.FailGroupNotConfigured, "no user group configured for the step")
	}
	// Group membership resolution happens downstream.
	x.Tasks.Submit(Task{
		ID:           uuid.New().String(),
		Type:         TaskNotifyGroup,
		AlertGroupID: g.ID,
		StepOrder:    p.Order,
		Important:    p.Step.Important(),
	})
	return nil, nil
}

func (x *Executor) stepNotifyIfTime(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	if p.Config.FromTime == nil || p.Config.ToTime == nil {
		return nil, x.logFailed(p, g, alertgroup.FailWindowNotConfigured, "time window not configured for the step")
	}
	now := x.now()
	rec := x.newRecord(p, alertgroup.RecordEscalationTriggered)
	if timeutil.InsideWindow(now, *p.Config.FromTime, *p.Config.ToTime) {
		// Inside the window escalation proceeds immediately; the default
		// eta substitution supplies the spacing.
		rec.Reason = "current time is inside the escalation window, continuing"
		return nil, x.Audit.Append(g, rec)
	}
	eta := timeutil.NextOccurrence(now, *p.Config.FromTime)
	rec.Reason = fmt.Sprintf("escalation continues at %s", p.Config.FromTime)
	rec.ETA = &eta
	if err := x.Audit.Append(g, rec); err != nil {
		return nil, err
	}
	return &StepResult{ETA: eta}, nil
}

func (x *Executor) stepNotifyIfAlertsInWindow(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	if p.Config.NumAlertsInWindow <= 0 || p.Config.NumMinutesInWindow <= 0 {
		// Unconfigured collapses to the same outcome as a satisfied
		// threshold (advance to the next step); only the log differs.
		return nil, x.logFailed(p, g, alertgroup.FailWindowNotConfigured, "alert count window not configured for the step")
	}
	if !p.State.Paused {
		// Log once per pause episode, not on every re-poll.
		reason := fmt.Sprintf("continue escalation only if more than %d alerts arrive within %d minutes",
			p.Config.NumAlertsInWindow, p.Config.NumMinutesInWindow)
		if err := x.logTriggered(p, g, reason, nil); err != nil {
			return nil, err
		}
	}
	window := time.Duration(p.Config.NumMinutesInWindow) * time.Minute
	if g.AlertsWithin(window) <= p.Config.NumAlertsInWindow {
		p.State.Paused = true
		return &StepResult{ETA: x.now().Add(PauseRecheckDelay), PauseEscalation: true}, nil
	}
	// Threshold exceeded: the step is satisfied and behaves as a no-op.
	return nil, nil
}

func (x *Executor) stepTriggerAction(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	if p.Config.CustomAction == nil {
		return nil, x.logFailed(p, g, alertgroup.FailActionNotConfigured, "no outgoing action configured for the step")
	}
	x.Tasks.Submit(Task{
		ID:           uuid.New().String(),
		Type:         TaskTriggerAction,
		AlertGroupID: g.ID,
		PolicyID:     p.ID,
	})
	return nil, nil
}

func (x *Executor) stepTriggerWebhook(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	if p.Config.CustomWebhook == nil {
		return nil, x.logFailed(p, g, alertgroup.FailWebhookNotConfigured, "no outgoing webhook configured for the step")
	}
	x.Tasks.Submit(Task{
		ID:           uuid.New().String(),
		Type:         TaskTriggerWebhook,
		AlertGroupID: g.ID,
		PolicyID:     p.ID,
	})
	return nil, nil
}

func (x *Executor) stepRepeatEscalation(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	if p.State.EscalationCounter >= MaxRepeatTimes {
		// Cap reached: fall through to the next step instead of looping.
		return nil, nil
	}
	if err := x.logTriggered(p, g, "repeat escalation from the beginning", nil); err != nil {
		return nil, err
	}
	p.State.EscalationCounter++
	return &StepResult{ETA: x.now().Add(NextStepDelay), StartFromBeginning: true}, nil
}

func (x *Executor) stepFinalResolve(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	if err := x.logTriggered(p, g, "resolve the alert group by the last step of the escalation chain", nil); err != nil {
		return nil, err
	}
	x.Tasks.Submit(Task{
		ID:           uuid.New().String(),
		Type:         TaskResolveByLastStep,
		AlertGroupID: g.ID,
	})
	return &StepResult{StopEscalation: true}, nil
}

func (x *Executor) stepUnconfigured(p *PolicySnapshot, g *alertgroup.AlertGroup) (*StepResult, error) {
	return nil, x.logFailed(p, g, alertgroup.FailStepUnspecified, "escalation step is not specified")
}

// displayName renders a user for log lines.
func displayName(u alertgroup.UserRef) string {
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}
