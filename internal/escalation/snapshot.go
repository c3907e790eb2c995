package escalation

import (
	"sort"
	"time"

	"github.com/OWNER/escalator/internal/alertgroup"
)

// SnapshotState labels the lifecycle phase of an escalation snapshot.
type SnapshotState string

const (
	SnapshotNotStarted SnapshotState = "not_started"
	SnapshotActive     SnapshotState = "active"
	SnapshotPaused     SnapshotState = "paused"
	SnapshotTerminal   SnapshotState = "terminal"
)

// Snapshot is the frozen escalation plan of one alert group: the ordered
// policy snapshots captured when escalation started, the routing context
// active at that moment, and the mutable cursor the driver advances. It
// is built exactly once per alert group and then read-mutate-written on
// every driver invocation.
type Snapshot struct {
	ChannelFilter *ChannelFilterSnapshot `json:"channel_filter,omitempty"`
	Chain         *ChainSnapshot         `json:"chain,omitempty"`

	// SlackChannelID freezes the chat channel association at start time
	// for chat-specific steps.
	SlackChannelID string `json:"slack_channel_id,omitempty"`

	// Policies in dense execution order. May be empty when the resolved
	// chain had no policies.
	Policies []*PolicySnapshot `json:"policies,omitempty"`

	// CurrentOrder is the order of the step about to run.
	CurrentOrder int `json:"current_order"`

	// LastActiveOrder is the order of the step that ran most recently,
	// nil before the first run. The plan projector keys off it.
	LastActiveOrder *int `json:"last_active_order,omitempty"`

	// Paused mirrors and aggregates policy-level pauses.
	Paused bool `json:"paused,omitempty"`

	// NextStepETA is when the driver should next invoke ExecuteStep. Nil
	// means no further automatic execution.
	NextStepETA *time.Time `json:"next_step_eta,omitempty"`

	// Finished is set once a step stopped the escalation or the policy
	// list ran out.
	Finished bool `json:"finished,omitempty"`
}

// Build freezes the resolved route into a new snapshot. A nil route (no
// channel filter or no chain resolvable) produces an explicitly empty
// snapshot rather than none at all, so callers can tell "not yet built"
// from "built but empty".
func Build(route *Route) *Snapshot {
	s := &Snapshot{}
	if route == nil {
		return s
	}
	s.ChannelFilter = route.ChannelFilter
	s.Chain = route.Chain
	s.SlackChannelID = route.SlackChannelID

	// Configured orders define sequencing only. Snapshot orders are
	// re-based to a dense 0..n-1 so the cursor always lands on a policy:
	// a hand-written route numbered from 1 must not finish untouched.
	configs := append([]PolicyConfig(nil), route.Policies...)
	sort.SliceStable(configs, func(i, j int) bool { return configs[i].Order < configs[j].Order })
	for i, pc := range configs {
		step := pc.Step
		if !step.Known() {
			step = StepUnconfigured
		}
		s.Policies = append(s.Policies, &PolicySnapshot{
			ID:     pc.ID,
			Order:  i,
			Step:   step,
			Config: pc.Config,
		})
	}
	return s
}

// PolicyAt returns the policy snapshot with the given order, or nil.
func (s *Snapshot) PolicyAt(order int) *PolicySnapshot {
	for _, p := range s.Policies {
		if p.Order == order {
			return p
		}
	}
	return nil
}

// State reports the lifecycle phase for display.
func (s *Snapshot) State() SnapshotState {
	switch {
	case s.Finished:
		return SnapshotTerminal
	case s.Paused:
		return SnapshotPaused
	case s.LastActiveOrder != nil:
		return SnapshotActive
	case len(s.Policies) == 0:
		return SnapshotTerminal
	default:
		return SnapshotNotStarted
	}
}

// ExecuteStep advances the snapshot by one step: it executes the policy
// at the cursor and folds the result into the cursor fields. The caller
// must hold the alert group's execution lock and persist the snapshot
// atomically with the group afterwards.
func (s *Snapshot) ExecuteStep(x *Executor, g *alertgroup.AlertGroup, reason string) error {
	p := s.PolicyAt(s.CurrentOrder)
	if p == nil {
		// Policies exhausted.
		s.Finished = true
		s.NextStepETA = nil
		return nil
	}

	res, err := x.Execute(p, g, reason)
	if err != nil {
		return err
	}

	last := s.CurrentOrder
	s.LastActiveOrder = &last

	if res.PauseEscalation {
		// Same order again at the eta; this is how the alert-count-window
		// step polls.
		s.Paused = true
		s.setETA(res.ETA)
		return nil
	}
	// A previously paused step that now proceeds lifts the pause.
	if s.Paused {
		s.Paused = false
		p.State.Paused = false
	}
	if res.StartFromBeginning {
		s.CurrentOrder = 0
	} else {
		s.CurrentOrder++
	}
	if res.StopEscalation {
		s.Finished = true
		s.NextStepETA = nil
		return nil
	}
	s.setETA(res.ETA)
	return nil
}

// Unpause clears the snapshot-level pause and the pause flag of the step
// at the cursor. The driver calls it when a new alert arrives on a
// paused group.
func (s *Snapshot) Unpause(now time.Time) {
	if !s.Paused {
		return
	}
	s.Paused = false
	if p := s.PolicyAt(s.CurrentOrder); p != nil {
		p.State.Paused = false
	}
	eta := now.Add(NextStepDelay)
	s.NextStepETA = &eta
}

// Due reports whether the driver should invoke ExecuteStep at now.
func (s *Snapshot) Due(now time.Time) bool {
	if s.Finished || s.NextStepETA == nil {
		return false
	}
	return !now.Before(*s.NextStepETA)
}

func (s *Snapshot) setETA(eta time.Time) {
	if eta.IsZero() {
		s.NextStepETA = nil
		return
	}
	t := eta
	s.NextStepETA = &t
}
