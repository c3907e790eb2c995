package escalation

import (
	"errors"
	"testing"
	"time"

	"github.com/OWNER/escalator/internal/alertgroup"
	"github.com/OWNER/escalator/internal/timeutil"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type memAudit struct{ records []alertgroup.LogRecord }

func (a *memAudit) Append(g *alertgroup.AlertGroup, rec alertgroup.LogRecord) error {
	g.LogRecords = append(g.LogRecords, rec)
	a.records = append(a.records, rec)
	return nil
}

type memTasks struct{ tasks []Task }

func (s *memTasks) Submit(t Task) { s.tasks = append(s.tasks, t) }

type stubSchedules struct {
	users []alertgroup.UserRef
	err   error
}

func (s stubSchedules) UsersOnCallNow(alertgroup.ScheduleRef, time.Time) ([]alertgroup.UserRef, error) {
	return s.users, s.err
}

type cursorWriter struct {
	policyID string
	user     alertgroup.UserRef
	calls    int
}

func (w *cursorWriter) SetLastNotified(policyID string, user alertgroup.UserRef) {
	w.policyID = policyID
	w.user = user
	w.calls++
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testExecutor(sched ScheduleResolver) (*Executor, *memAudit, *memTasks) {
	audit := &memAudit{}
	tasks := &memTasks{}
	x := NewExecutor(audit, tasks, sched)
	x.Clock = fixedClock{testNow}
	return x, audit, tasks
}

func mustTime(t *testing.T, s string) timeutil.TimeOfDay {
	t.Helper()
	tod, err := timeutil.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q): %v", s, err)
	}
	return tod
}

func TestExecuteMisconfiguredSteps(t *testing.T) {
	tests := []struct {
		step Step
		code alertgroup.FailureCode
	}{
		{StepNotifyUsersQueue, alertgroup.FailNoRecipients},
		{StepNotifyMultipleUsers, alertgroup.FailNoRecipients},
		{StepNotifySchedule, alertgroup.FailScheduleNotConfigured},
		{StepNotifyGroup, alertgroup.FailGroupNotConfigured},
		{StepNotifyIfTime, alertgroup.FailWindowNotConfigured},
		{StepNotifyIfAlertsInWindow, alertgroup.FailWindowNotConfigured},
		{StepTriggerAction, alertgroup.FailActionNotConfigured},
		{StepTriggerWebhook, alertgroup.FailWebhookNotConfigured},
		{StepUnconfigured, alertgroup.FailStepUnspecified},
		{Step("bogus"), alertgroup.FailStepUnspecified},
	}
	for _, tt := range tests {
		t.Run(string(tt.step), func(t *testing.T) {
			x, audit, tasks := testExecutor(stubSchedules{})
			p := &PolicySnapshot{ID: "pol-1", Order: 0, Step: tt.step}
			g := &alertgroup.AlertGroup{ID: "ag-1"}

			res, err := x.Execute(p, g, "test")
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if len(audit.records) != 1 {
				t.Fatalf("got %d records, want 1", len(audit.records))
			}
			rec := audit.records[0]
			if rec.Type != alertgroup.RecordEscalationFailed {
				t.Errorf("record type = %q, want %q", rec.Type, alertgroup.RecordEscalationFailed)
			}
			if rec.Code != tt.code {
				t.Errorf("failure code = %q, want %q", rec.Code, tt.code)
			}
			if len(tasks.tasks) != 0 {
				t.Errorf("got %d tasks, want 0", len(tasks.tasks))
			}
			if want := testNow.Add(NextStepDelay); !res.ETA.Equal(want) {
				t.Errorf("eta = %v, want %v", res.ETA, want)
			}
			if p.State.PassedLastTime == nil || !p.State.PassedLastTime.Equal(testNow) {
				t.Errorf("PassedLastTime = %v, want %v", p.State.PassedLastTime, testNow)
			}
		})
	}
}

func TestExecuteWait(t *testing.T) {
	t.Run("configured", func(t *testing.T) {
		x, audit, _ := testExecutor(stubSchedules{})
		p := &PolicySnapshot{Step: StepWait, Config: StepConfig{WaitDelay: timeutil.D(10 * time.Minute)}}
		g := &alertgroup.AlertGroup{ID: "ag-1"}

		res, err := x.Execute(p, g, "test")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if want := testNow.Add(10 * time.Minute); !res.ETA.Equal(want) {
			t.Errorf("eta = %v, want %v", res.ETA, want)
		}
		if len(audit.records) != 1 || audit.records[0].Type != alertgroup.RecordEscalationTriggered {
			t.Fatalf("want one triggered record, got %v", audit.records)
		}
		if audit.records[0].Detail != "test" {
			t.Errorf("record detail = %q, want the caller's reason", audit.records[0].Detail)
		}
	})

	t.Run("unconfigured falls back to the default delay", func(t *testing.T) {
		x, audit, _ := testExecutor(stubSchedules{})
		p := &PolicySnapshot{Step: StepWait}
		g := &alertgroup.AlertGroup{ID: "ag-1"}

		res, err := x.Execute(p, g, "test")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if want := testNow.Add(DefaultWaitDelay); !res.ETA.Equal(want) {
			t.Errorf("eta = %v, want %v", res.ETA, want)
		}
		if len(audit.records) != 1 || audit.records[0].Code != alertgroup.FailWaitNotConfigured {
			t.Fatalf("want one %s record, got %v", alertgroup.FailWaitNotConfigured, audit.records)
		}
		if audit.records[0].Detail != "test" {
			t.Errorf("record detail = %q, want the caller's reason", audit.records[0].Detail)
		}
	})
}

func TestExecuteNotifyAll(t *testing.T) {
	x, _, tasks := testExecutor(stubSchedules{})
	p := &PolicySnapshot{Order: 2, Step: StepNotifyAll}
	g := &alertgroup.AlertGroup{ID: "ag-1"}

	res, err := x.Execute(p, g, "test")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(tasks.tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks.tasks))
	}
	task := tasks.tasks[0]
	if task.Type != TaskNotifyAll || task.AlertGroupID != "ag-1" || task.StepOrder != 2 {
		t.Errorf("task = %+v, want notify_all for ag-1 at order 2", task)
	}
	if want := testNow.Add(NextStepDelay); !res.ETA.Equal(want) {
		t.Errorf("eta = %v, want %v", res.ETA, want)
	}
}

func TestExecuteNotifyUsersQueue(t *testing.T) {
	alice := alertgroup.UserRef{ID: "u1", Username: "alice"}
	bob := alertgroup.UserRef{ID: "u2", Username: "bob"}

	x, audit, tasks := testExecutor(stubSchedules{})
	live := &cursorWriter{}
	x.LivePolicies = live

	p := &PolicySnapshot{
		ID:     "pol-7",
		Step:   StepNotifyUsersQueue,
		Config: StepConfig{NotifyQueue: []alertgroup.UserRef{bob, alice}},
	}
	g := &alertgroup.AlertGroup{ID: "ag-1"}

	if _, err := x.Execute(p, g, "test"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if p.State.LastNotified == nil || p.State.LastNotified.ID != alice.ID {
		t.Fatalf("first rotation pick = %v, want %s", p.State.LastNotified, alice.ID)
	}
	if live.calls != 1 || live.policyID != "pol-7" || live.user.ID != alice.ID {
		t.Errorf("live cursor writeback = %+v, want pol-7/%s", live, alice.ID)
	}
	if len(tasks.tasks) != 1 || tasks.tasks[0].Type != TaskNotifyUser || tasks.tasks[0].User.ID != alice.ID {
		t.Fatalf("tasks = %+v, want one notify_user for %s", tasks.tasks, alice.ID)
	}
	rec := audit.records[len(audit.records)-1]
	if rec.Author == nil || rec.Author.ID != alice.ID {
		t.Errorf("record author = %v, want %s", rec.Author, alice.ID)
	}

	// The next run advances past the stored cursor.
	if _, err := x.Execute(p, g, "test"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if p.State.LastNotified.ID != bob.ID {
		t.Errorf("second rotation pick = %s, want %s", p.State.LastNotified.ID, bob.ID)
	}
}

func TestExecuteNotifyMultipleUsers(t *testing.T) {
	alice := alertgroup.UserRef{ID: "u1", Username: "alice"}
	bob := alertgroup.UserRef{ID: "u2", Username: "bob"}

	t.Run("default", func(t *testing.T) {
		x, audit, tasks := testExecutor(stubSchedules{})
		p := &PolicySnapshot{
			Step:   StepNotifyMultipleUsers,
			Config: StepConfig{NotifyQueue: []alertgroup.UserRef{alice, bob}},
		}
		g := &alertgroup.AlertGroup{ID: "ag-1"}

		if _, err := x.Execute(p, g, "test"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if len(tasks.tasks) != 2 {
			t.Fatalf("got %d tasks, want 2", len(tasks.tasks))
		}
		for _, task := range tasks.tasks {
			if task.Important {
				t.Errorf("task for %s marked important", task.User.ID)
			}
		}
		// One step-level record plus one per user.
		if len(audit.records) != 3 {
			t.Fatalf("got %d records, want 3", len(audit.records))
		}
		if audit.records[0].Author != nil {
			t.Errorf("step record has author %v, want none", audit.records[0].Author)
		}
		if audit.records[1].Author.ID != alice.ID || audit.records[2].Author.ID != bob.ID {
			t.Errorf("per-user record authors = %v, %v", audit.records[1].Author, audit.records[2].Author)
		}
	})

	t.Run("important", func(t *testing.T) {
		x, _, tasks := testExecutor(stubSchedules{})
		p := &PolicySnapshot{
			Step:   StepNotifyMultipleUsersImportant,
			Config: StepConfig{NotifyQueue: []alertgroup.UserRef{alice}},
		}
		g := &alertgroup.AlertGroup{ID: "ag-1"}

		if _, err := x.Execute(p, g, "test"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if len(tasks.tasks) != 1 || !tasks.tasks[0].Important {
			t.Errorf("tasks = %+v, want one important notify_user", tasks.tasks)
		}
	})
}

func TestExecuteNotifySchedule(t *testing.T) {
	sched := &alertgroup.ScheduleRef{ID: "s1", Name: "ops"}
	oncall := []alertgroup.UserRef{{ID: "u1", Username: "alice"}}

	t.Run("import failure", func(t *testing.T) {
		x, audit, tasks := testExecutor(stubSchedules{err: errors.New("ical gone")})
		p := &PolicySnapshot{Step: StepNotifySchedule, Config: StepConfig{NotifySchedule: sched}}
		g := &alertgroup.AlertGroup{ID: "ag-1"}

		if _, err := x.Execute(p, g, "test"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if len(audit.records) != 1 || audit.records[0].Code != alertgroup.FailScheduleImport {
			t.Fatalf("want one %s record, got %v", alertgroup.FailScheduleImport, audit.records)
		}
		if len(tasks.tasks) != 0 {
			t.Errorf("got %d tasks, want 0", len(tasks.tasks))
		}
	})

	t.Run("nobody on call", func(t *testing.T) {
		x, audit, _ := testExecutor(stubSchedules{})
		p := &PolicySnapshot{Step: StepNotifySchedule, Config: StepConfig{NotifySchedule: sched}}
		g := &alertgroup.AlertGroup{ID: "ag-1"}

		if _, err := x.Execute(p, g, "test"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if len(audit.records) != 1 || audit.records[0].Code != alertgroup.FailNoOneOnCall {
			t.Fatalf("want one %s record, got %v", alertgroup.FailNoOneOnCall, audit.records)
		}
	})

	t.Run("resolved", func(t *testing.T) {
		x, _, tasks := testExecutor(stubSchedules{users: oncall})
		p := &PolicySnapshot{Step: StepNotifyScheduleImportant, Config: StepConfig{NotifySchedule: sched}}
		g := &alertgroup.AlertGroup{ID: "ag-1"}

		if _, err := x.Execute(p, g, "test"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if len(p.Config.NotifyQueue) != 1 || p.Config.NotifyQueue[0].ID != "u1" {
			t.Errorf("queue after resolution = %v, want the on-call set", p.Config.NotifyQueue)
		}
		if len(tasks.tasks) != 1 {
			t.Fatalf("got %d tasks, want 1", len(tasks.tasks))
		}
		task := tasks.tasks[0]
		if task.Type != TaskNotifyUser || !task.Important {
			t.Errorf("task = %+v, want important notify_user", task)
		}
		if want := "on call for schedule ops"; task.Reason != want {
			t.Errorf("task reason = %q, want %q", task.Reason, want)
		}
	})
}

func TestExecuteNotifyIfTime(t *testing.T) {
	t.Run("inside window", func(t *testing.T) {
		from, to := mustTime(t, "09:00"), mustTime(t, "17:00")
		x, audit, _ := testExecutor(stubSchedules{})
		p := &PolicySnapshot{Step: StepNotifyIfTime, Config: StepConfig{FromTime: &from, ToTime: &to}}
		g := &alertgroup.AlertGroup{ID: "ag-1"}

		res, err := x.Execute(p, g, "test")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if want := testNow.Add(NextStepDelay); !res.ETA.Equal(want) {
			t.Errorf("eta = %v, want %v", res.ETA, want)
		}
		if audit.records[0].ETA != nil {
			t.Errorf("record eta = %v, want none", audit.records[0].ETA)
		}
	})

	t.Run("outside window defers to the window start", func(t *testing.T) {
		from, to := mustTime(t, "13:00"), mustTime(t, "14:00")
		x, audit, _ := testExecutor(stubSchedules{})
		p := &PolicySnapshot{Step: StepNotifyIfTime, Config: StepConfig{FromTime: &from, ToTime: &to}}
		g := &alertgroup.AlertGroup{ID: "ag-1"}

		res, err := x.Execute(p, g, "test")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		want := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
		if !res.ETA.Equal(want) {
			t.Errorf("eta = %v, want %v", res.ETA, want)
		}
		if audit.records[0].ETA == nil || !audit.records[0].ETA.Equal(want) {
			t.Errorf("record eta = %v, want %v", audit.records[0].ETA, want)
		}
	})
}

func TestExecuteNotifyIfAlertsInWindow(t *testing.T) {
	cfg := StepConfig{NumAlertsInWindow: 2, NumMinutesInWindow: 10}
	alertsAt := func(offsets ...time.Duration) []alertgroup.Alert {
		var out []alertgroup.Alert
		for i, off := range offsets {
			out = append(out, alertgroup.Alert{ID: string(rune('a' + i)), CreatedAt: testNow.Add(off)})
		}
		return out
	}

	t.Run("below threshold pauses", func(t *testing.T) {
		x, audit, _ := testExecutor(stubSchedules{})
		p := &PolicySnapshot{Step: StepNotifyIfAlertsInWindow, Config: cfg}
		g := &alertgroup.AlertGroup{ID: "ag-1", Alerts: alertsAt(0)}

		res, err := x.Execute(p, g, "test")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !res.PauseEscalation {
			t.Error("PauseEscalation = false, want true")
		}
		if want := testNow.Add(PauseRecheckDelay); !res.ETA.Equal(want) {
			t.Errorf("eta = %v, want %v", res.ETA, want)
		}
		if !p.State.Paused {
			t.Error("policy not marked paused")
		}
		if len(audit.records) != 1 {
			t.Fatalf("got %d records, want 1", len(audit.records))
		}

		// Re-polling a paused step does not log again.
		if _, err := x.Execute(p, g, "test"); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if len(audit.records) != 1 {
			t.Errorf("got %d records after re-poll, want 1", len(audit.records))
		}
	})

	t.Run("threshold exceeded proceeds", func(t *testing.T) {
		x, _, _ := testExecutor(stubSchedules{})
		p := &PolicySnapshot{Step: StepNotifyIfAlertsInWindow, Config: cfg}
		g := &alertgroup.AlertGroup{ID: "ag-1", Alerts: alertsAt(-5*time.Minute, -time.Minute, 0)}

		res, err := x.Execute(p, g, "test")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if res.PauseEscalation {
			t.Error("PauseEscalation = true, want false")
		}
		if p.State.Paused {
			t.Error("policy marked paused")
		}
		if want := testNow.Add(NextStepDelay); !res.ETA.Equal(want) {
			t.Errorf("eta = %v, want %v", res.ETA, want)
		}
	})
}

func TestExecuteRepeatEscalation(t *testing.T) {
	x, audit, _ := testExecutor(stubSchedules{})
	p := &PolicySnapshot{Step: StepRepeatEscalation}
	g := &alertgroup.AlertGroup{ID: "ag-1"}

	res, err := x.Execute(p, g, "test")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.StartFromBeginning {
		t.Error("StartFromBeginning = false, want true")
	}
	if p.State.EscalationCounter != 1 {
		t.Errorf("counter = %d, want 1", p.State.EscalationCounter)
	}

	p.State.EscalationCounter = MaxRepeatTimes
	before := len(audit.records)
	res, err = x.Execute(p, g, "test")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.StartFromBeginning {
		t.Error("StartFromBeginning = true past the repeat cap")
	}
	if p.State.EscalationCounter != MaxRepeatTimes {
		t.Errorf("counter = %d, want %d", p.State.EscalationCounter, MaxRepeatTimes)
	}
	if len(audit.records) != before {
		t.Errorf("capped repeat logged %d new records", len(audit.records)-before)
	}
}

func TestExecuteFinalResolve(t *testing.T) {
	x, audit, tasks := testExecutor(stubSchedules{})
	p := &PolicySnapshot{Step: StepFinalResolve}
	g := &alertgroup.AlertGroup{ID: "ag-1"}

	res, err := x.Execute(p, g, "test")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.StopEscalation {
		t.Error("StopEscalation = false, want true")
	}
	if len(tasks.tasks) != 1 || tasks.tasks[0].Type != TaskResolveByLastStep {
		t.Fatalf("tasks = %+v, want one resolve_by_last_step", tasks.tasks)
	}
	if len(audit.records) != 1 || audit.records[0].Type != alertgroup.RecordEscalationTriggered {
		t.Fatalf("want one triggered record, got %v", audit.records)
	}
}
