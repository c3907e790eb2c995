package driver

import (
	"testing"
	"time"

	"github.com/OWNER/escalator/internal/alertgroup"
	"github.com/OWNER/escalator/internal/directory"
	"github.com/OWNER/escalator/internal/escalation"
	"github.com/OWNER/escalator/internal/store"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type collectNotifier struct{ tasks []escalation.Task }

func (n *collectNotifier) Notify(t escalation.Task) error {
	n.tasks = append(n.tasks, t)
	return nil
}

func newTestDriver(t *testing.T) (*Driver, *store.Store, *collectNotifier, *stepClock) {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	st, err := store.New(cfg.DataDir, nil)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	notifier := &collectNotifier{}
	d, err := New(cfg, st, nil, notifier, directory.OpenRotations(cfg.DataDir))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	clock := &stepClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	d.clock = clock
	return d, st, notifier, clock
}

func saveGroup(t *testing.T, st *store.Store, doc *store.Document) {
	t.Helper()
	if err := st.Save(doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func TestProcessGroupRunsEscalationToResolution(t *testing.T) {
	d, st, notifier, clock := newTestDriver(t)

	doc := &store.Document{
		Group: &alertgroup.AlertGroup{
			ID:     "ag-1",
			Alerts: []alertgroup.Alert{{ID: "a1", CreatedAt: clock.Now()}},
		},
		Route: &escalation.Route{
			Policies: []escalation.PolicyConfig{
				{ID: "p0", Order: 0, Step: escalation.StepNotifyAll},
				{ID: "p1", Order: 1, Step: escalation.StepFinalResolve},
			},
		},
	}
	saveGroup(t, st, doc)

	// First poll builds the snapshot and runs the first step.
	if err := d.processGroup("ag-1"); err != nil {
		t.Fatalf("processGroup() error = %v", err)
	}
	got, err := st.Load("ag-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Snapshot == nil || got.Snapshot.CurrentOrder != 1 {
		t.Fatalf("snapshot = %+v, want cursor at 1", got.Snapshot)
	}
	if len(notifier.tasks) != 1 || notifier.tasks[0].Type != escalation.TaskNotifyAll {
		t.Fatalf("tasks = %+v, want one notify_all", notifier.tasks)
	}

	// Not due again until the spacing delay passes.
	if err := d.processGroup("ag-1"); err != nil {
		t.Fatalf("processGroup() error = %v", err)
	}
	if len(notifier.tasks) != 1 {
		t.Fatalf("step ran before its eta, tasks = %+v", notifier.tasks)
	}

	clock.advance(escalation.NextStepDelay + time.Second)
	if err := d.processGroup("ag-1"); err != nil {
		t.Fatalf("processGroup() error = %v", err)
	}
	got, err = st.Load("ag-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.Snapshot.Finished {
		t.Error("snapshot not finished after the final step")
	}
	if !got.Group.Resolved {
		t.Error("group not resolved by the final-resolve task")
	}

	var sawResolve, sawFinished bool
	for _, r := range got.Group.LogRecords {
		switch r.Type {
		case alertgroup.RecordResolve:
			sawResolve = true
			if r.Reason != "resolved automatically" {
				t.Errorf("resolve reason = %q", r.Reason)
			}
		case alertgroup.RecordEscalationFinished:
			sawFinished = true
		}
	}
	if !sawResolve || !sawFinished {
		t.Errorf("log records = %+v, want resolve and finished records", got.Group.LogRecords)
	}

	// A finished group stays quiet.
	before := len(notifier.tasks)
	clock.advance(time.Hour)
	if err := d.processGroup("ag-1"); err != nil {
		t.Fatalf("processGroup() error = %v", err)
	}
	if len(notifier.tasks) != before {
		t.Errorf("finished group produced tasks: %+v", notifier.tasks[before:])
	}
}

func TestProcessGroupSkipsSuppressedGroups(t *testing.T) {
	until := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		group alertgroup.AlertGroup
	}{
		{"resolved", alertgroup.AlertGroup{ID: "g", Resolved: true}},
		{"acknowledged", alertgroup.AlertGroup{ID: "g", Acknowledged: true}},
		{"attached", alertgroup.AlertGroup{ID: "g", RootID: "root-1"}},
		{"silenced forever", alertgroup.AlertGroup{ID: "g", Silenced: true}},
		{"silenced with time left", alertgroup.AlertGroup{ID: "g", Silenced: true, SilencedUntil: &until}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, st, notifier, _ := newTestDriver(t)
			doc := &store.Document{
				Group: &tt.group,
				Route: &escalation.Route{Policies: []escalation.PolicyConfig{
					{ID: "p0", Order: 0, Step: escalation.StepNotifyAll},
				}},
			}
			saveGroup(t, st, doc)

			if err := d.processGroup("g"); err != nil {
				t.Fatalf("processGroup() error = %v", err)
			}
			got, err := st.Load("g")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.Snapshot != nil {
				t.Error("snapshot built for a suppressed group")
			}
			if len(notifier.tasks) != 0 {
				t.Errorf("tasks = %+v, want none", notifier.tasks)
			}
		})
	}
}

func TestProcessGroupRecordsPersonalLog(t *testing.T) {
	d, st, _, clock := newTestDriver(t)

	alice := alertgroup.UserRef{ID: "u1", Username: "alice"}
	doc := &store.Document{
		Group: &alertgroup.AlertGroup{ID: "ag-1"},
		Route: &escalation.Route{Policies: []escalation.PolicyConfig{
			{ID: "p0", Order: 0, Step: escalation.StepNotifyMultipleUsers,
				Config: escalation.StepConfig{NotifyQueue: []alertgroup.UserRef{alice}}},
		}},
	}
	saveGroup(t, st, doc)

	if err := d.processGroup("ag-1"); err != nil {
		t.Fatalf("processGroup() error = %v", err)
	}
	got, err := st.Load("ag-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Group.PersonalLog) != 1 {
		t.Fatalf("personal log = %+v, want one record", got.Group.PersonalLog)
	}
	rec := got.Group.PersonalLog[0]
	if rec.UserID != "u1" || rec.Type != alertgroup.PersonalTriggered {
		t.Errorf("personal record = %+v, want triggered for u1", rec)
	}
	if !rec.CreatedAt.Equal(clock.Now()) {
		t.Errorf("record time = %v, want %v", rec.CreatedAt, clock.Now())
	}
}

func TestProcessGroupResumesRotationAcrossRuns(t *testing.T) {
	d, st, notifier, _ := newTestDriver(t)

	alice := alertgroup.UserRef{ID: "u1", Username: "alice"}
	bob := alertgroup.UserRef{ID: "u2", Username: "bob"}
	d.rotations.SetLastNotified("p0", alice)

	doc := &store.Document{
		Group: &alertgroup.AlertGroup{ID: "ag-1"},
		Route: &escalation.Route{Policies: []escalation.PolicyConfig{
			{ID: "p0", Order: 0, Step: escalation.StepNotifyUsersQueue,
				Config: escalation.StepConfig{NotifyQueue: []alertgroup.UserRef{alice, bob}}},
		}},
	}
	saveGroup(t, st, doc)

	if err := d.processGroup("ag-1"); err != nil {
		t.Fatalf("processGroup() error = %v", err)
	}
	// The seeded cursor points at alice, so this run notifies bob.
	if len(notifier.tasks) != 1 || notifier.tasks[0].User == nil || notifier.tasks[0].User.ID != bob.ID {
		t.Fatalf("tasks = %+v, want notify_user for bob", notifier.tasks)
	}
	if got, ok := d.rotations.LastNotified("p0"); !ok || got.ID != bob.ID {
		t.Errorf("persisted cursor = (%v, %v), want bob", got, ok)
	}
}

func TestProcessGroupUnpausesOnNewAlert(t *testing.T) {
	d, st, _, clock := newTestDriver(t)
	start := clock.Now()

	s := escalation.Build(&escalation.Route{Policies: []escalation.PolicyConfig{
		{ID: "p0", Order: 0, Step: escalation.StepNotifyIfAlertsInWindow,
			Config: escalation.StepConfig{NumAlertsInWindow: 3, NumMinutesInWindow: 30}},
		{ID: "p1", Order: 1, Step: escalation.StepNotifyAll},
	}})
	s.Paused = true
	s.Policies[0].State.Paused = true
	passed := start.Add(-time.Minute)
	s.Policies[0].State.PassedLastTime = &passed
	eta := start.Add(escalation.PauseRecheckDelay)
	s.NextStepETA = &eta

	doc := &store.Document{
		Group: &alertgroup.AlertGroup{
			ID: "ag-1",
			Alerts: []alertgroup.Alert{
				{ID: "a1", CreatedAt: start.Add(-2 * time.Minute)},
				// Arrived after the step last ran.
				{ID: "a2", CreatedAt: start.Add(-10 * time.Second)},
			},
		},
		Snapshot: s,
	}
	saveGroup(t, st, doc)

	if err := d.processGroup("ag-1"); err != nil {
		t.Fatalf("processGroup() error = %v", err)
	}
	got, err := st.Load("ag-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Snapshot.Paused {
		t.Fatal("snapshot still paused after a new alert")
	}
	want := start.Add(escalation.NextStepDelay)
	if got.Snapshot.NextStepETA == nil || !got.Snapshot.NextStepETA.Equal(want) {
		t.Errorf("NextStepETA = %v, want %v", got.Snapshot.NextStepETA, want)
	}
}
