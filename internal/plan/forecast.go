package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/OWNER/escalator/internal/alertgroup"
	"github.com/OWNER/escalator/internal/escalation"
	"github.com/OWNER/escalator/internal/timeutil"
)

// Entry is one bucket of the forecast: everything planned to happen at
// the same offset from now.
type Entry struct {
	Offset time.Duration
	Lines  []string
}

// item is the internal per-line wrapper. It carries the user the line
// targets (for the supersede rule) and which block produced it; blocks
// are collapsed away before the entries are returned.
type item struct {
	offset time.Duration
	line   string
	userID string
	block  int
}

// Forecast projects what will happen to the alert group and when,
// without executing anything. Active invitations are projected on their
// backoff schedule; unless the group is acknowledged or silenced forever,
// the escalation snapshot's remaining steps are walked with wait delays
// accumulated into a running offset. A final-resolve step truncates
// everything planned after it, and when several chains would notify the
// same user only the earliest chain survives.
func Forecast(g *alertgroup.AlertGroup, s *escalation.Snapshot, now time.Time, forSlack bool) []Entry {
	var items []item
	block := 0

	for _, inv := range g.ActiveInvitations() {
		items = foldBlock(items, invitationItems(inv, now, block, forSlack))
		block++
	}

	if !g.Acknowledged && !g.SilencedForever() && s != nil && !s.Finished {
		items = walkPolicies(items, g, s, now, block, forSlack)
	}

	return collapse(items)
}

// invitationItems projects the remaining notification attempts of one
// invitation. Attempt n fires DelayForAttempt(n) after attempt n-1.
func invitationItems(inv alertgroup.Invitation, now time.Time, block int, forSlack bool) []item {
	var out []item
	elapsed := now.Sub(inv.CreatedAt)
	cumulative := time.Duration(0)
	for a := 0; a < alertgroup.InvitationAttemptsLimit; a++ {
		cumulative += alertgroup.DelayForAttempt(a)
		if a < inv.Attempt {
			continue
		}
		offset := cumulative - elapsed
		if offset < 0 {
			offset = 0
		}
		out = append(out, item{
			offset: offset,
			line:   fmt.Sprintf("invite %s (attempt %d)", userName(inv.Invitee, forSlack), a+1),
			userID: inv.Invitee.ID,
			block:  block,
		})
	}
	return out
}

// walkPolicies renders the snapshot's future steps into items.
func walkPolicies(items []item, g *alertgroup.AlertGroup, s *escalation.Snapshot, now time.Time, block int, forSlack bool) []item {
	policies := make([]*escalation.PolicySnapshot, len(s.Policies))
	copy(policies, s.Policies)
	sort.Slice(policies, func(i, j int) bool { return policies[i].Order < policies[j].Order })

	next, inFlightWait := nextStepOrder(s)
	anchor, anchorOrder, haveAnchor := lastStepAnchor(g)

	offset := g.SilenceRemaining(now)

	for _, p := range policies {
		if p.Order < next {
			continue
		}
		switch p.Step {
		case escalation.StepWait:
			delay := p.Config.WaitDelay.Std()
			if delay <= 0 {
				delay = escalation.DefaultWaitDelay
			}
			if inFlightWait && p.Order == next {
				// The wait already started; count only what remains.
				started := waitStartedAt(p, anchor, anchorOrder, haveAnchor)
				if !started.IsZero() {
					if rem := delay - now.Sub(started); rem > 0 {
						offset += rem
					}
					continue
				}
			}
			offset += delay

		case escalation.StepFinalResolve:
			items = foldBlock(items, []item{{
				offset: offset,
				line:   "resolve the alert group automatically",
				block:  block,
			}})
			block++
			// Resolve wins: nothing already planned after it survives.
			return pruneAfter(items, offset)

		case escalation.StepNotifyIfTime:
			var b []item
			b, offset = notifyIfTimeItems(p, now, offset, block)
			items = foldBlock(items, b)
			block++

		default:
			items = foldBlock(items, stepItems(p, g, offset, block, forSlack))
			block++
		}
	}
	return items
}

// nextStepOrder derives the order of the step about to run. A wait step
// that ran most recently is not skipped past: its elapsed time has to be
// counted, so the walk starts at the wait itself.
func nextStepOrder(s *escalation.Snapshot) (order int, inFlightWait bool) {
	if s.LastActiveOrder == nil {
		return 0, false
	}
	la := *s.LastActiveOrder
	if p := s.PolicyAt(la); p != nil && p.Step == escalation.StepWait {
		return la, true
	}
	return la + 1, false
}

// lastStepAnchor finds the most recent log record carrying a step
// identifier after the last stop/ack/resolve boundary. Anything before
// such a boundary belongs to a previous escalation pass.
func lastStepAnchor(g *alertgroup.AlertGroup) (at time.Time, order int, ok bool) {
	boundary := -1
	for i, r := range g.LogRecords {
		switch r.Type {
		case alertgroup.RecordAck, alertgroup.RecordResolve, alertgroup.RecordEscalationFinished:
			boundary = i
		}
	}
	for i := len(g.LogRecords) - 1; i > boundary; i-- {
		r := g.LogRecords[i]
		if r.StepOrder != nil {
			return r.CreatedAt, *r.StepOrder, true
		}
	}
	return time.Time{}, 0, false
}

// waitStartedAt picks the best evidence for when an in-flight wait step
// began: its log record if the anchor points at it, otherwise the stamped
// execution time.
func waitStartedAt(p *escalation.PolicySnapshot, anchor time.Time, anchorOrder int, haveAnchor bool) time.Time {
	if haveAnchor && anchorOrder == p.Order {
		return anchor
	}
	if p.State.PassedLastTime != nil {
		return *p.State.PassedLastTime
	}
	return time.Time{}
}

// notifyIfTimeItems renders a time-window step and, when the projected
// arrival falls outside the window, pushes the running offset to the next
// window opening.
func notifyIfTimeItems(p *escalation.PolicySnapshot, now time.Time, offset time.Duration, block int) ([]item, time.Duration) {
	if p.Config.FromTime == nil || p.Config.ToTime == nil {
		return []item{{offset: offset, line: "skipping time-window step: not configured", block: block}}, offset
	}
	line := fmt.Sprintf("continue escalation only between %s and %s", p.Config.FromTime, p.Config.ToTime)
	arrival := now.Add(offset)
	if !timeutil.InsideWindow(arrival, *p.Config.FromTime, *p.Config.ToTime) {
		opens := timeutil.NextOccurrence(arrival, *p.Config.FromTime)
		offset += opens.Sub(arrival)
	}
	return []item{{offset: offset, line: line, block: block}}, offset
}

// stepItems renders one non-wait step into its plan lines, expanding the
// personal notification chains of every affected user.
func stepItems(p *escalation.PolicySnapshot, g *alertgroup.AlertGroup, offset time.Duration, block int, forSlack bool) []item {
	single := func(line string) []item {
		return []item{{offset: offset, line: line, block: block}}
	}

	switch p.Step {
	case escalation.StepNotifyAll:
		return single("notify everyone in the channel")

	case escalation.StepNotifyUsersQueue:
		if len(p.Config.NotifyQueue) == 0 {
			return single("skipping user rotation step: no recipients configured")
		}
		next := escalation.NextInRotation(p.Config.NotifyQueue, p.State.LastNotified)
		return expandUser(g, *next, false, offset, block, forSlack)

	case escalation.StepNotifyMultipleUsers, escalation.StepNotifyMultipleUsersImportant:
		if len(p.Config.NotifyQueue) == 0 {
			return single("skipping notify-users step: no recipients configured")
		}
		var out []item
		for _, u := range p.Config.NotifyQueue {
			out = append(out, expandUser(g, u, p.Step.Important(), offset, block, forSlack)...)
		}
		return out

	case escalation.StepNotifySchedule, escalation.StepNotifyScheduleImportant:
		if p.Config.NotifySchedule == nil {
			return single("skipping schedule step: no schedule configured")
		}
		if len(p.Config.NotifyQueue) == 0 {
			// On-call users are resolved when the step runs.
			return single(fmt.Sprintf("notify whoever is on call for schedule %s", p.Config.NotifySchedule.Name))
		}
		var out []item
		for _, u := range p.Config.NotifyQueue {
			out = append(out, expandUser(g, u, p.Step.Important(), offset, block, forSlack)...)
		}
		return out

	case escalation.StepNotifyGroup, escalation.StepNotifyGroupImportant:
		if p.Config.NotifyGroup == nil {
			return single("skipping user-group step: no group configured")
		}
		return single(fmt.Sprintf("notify members of group %s", groupName(*p.Config.NotifyGroup, forSlack)))

	case escalation.StepTriggerAction:
		if p.Config.CustomAction == nil {
			return single("skipping outgoing action step: not configured")
		}
		return single(fmt.Sprintf("trigger outgoing action %s", p.Config.CustomAction.Name))

	case escalation.StepTriggerWebhook:
		if p.Config.CustomWebhook == nil {
			return single("skipping outgoing webhook step: not configured")
		}
		return single(fmt.Sprintf("trigger outgoing webhook %s", p.Config.CustomWebhook.Name))

	case escalation.StepRepeatEscalation:
		return single(fmt.Sprintf("repeat escalation from the beginning (up to %d times)", escalation.MaxRepeatTimes))

	case escalation.StepNotifyIfAlertsInWindow:
		if p.Config.NumAlertsInWindow <= 0 || p.Config.NumMinutesInWindow <= 0 {
			return single("skipping alert-count step: not configured")
		}
		return single(fmt.Sprintf("continue escalation only if more than %d alerts arrive within %d minutes",
			p.Config.NumAlertsInWindow, p.Config.NumMinutesInWindow))

	default:
		return single("skipping unspecified step")
	}
}

// expandUser renders the personal notification chain of one user, waits
// accumulated, one line per delivery.
func expandUser(g *alertgroup.AlertGroup, u alertgroup.UserRef, important bool, base time.Duration, block int, forSlack bool) []item {
	var out []item
	acc := time.Duration(0)
	for _, st := range g.PoliciesFor(u.ID, important) {
		if st.Kind == alertgroup.NotifyStepWait {
			acc += st.WaitDelay.Std()
			continue
		}
		out = append(out, item{
			offset: base + acc,
			line:   channelLine(st.Channel, u, forSlack),
			userID: u.ID,
			block:  block,
		})
	}
	return out
}

func channelLine(ch alertgroup.Channel, u alertgroup.UserRef, forSlack bool) string {
	name := userName(u, forSlack)
	switch ch {
	case alertgroup.ChannelSlack:
		return fmt.Sprintf("invite %s in the channel", name)
	case alertgroup.ChannelSMS:
		return fmt.Sprintf("send an SMS to %s", name)
	case alertgroup.ChannelPhone:
		return fmt.Sprintf("call %s", name)
	case alertgroup.ChannelTelegram:
		return fmt.Sprintf("notify %s via Telegram", name)
	case alertgroup.ChannelEmail:
		return fmt.Sprintf("email %s", name)
	case alertgroup.ChannelMobilePush:
		return fmt.Sprintf("send a mobile push to %s", name)
	case alertgroup.ChannelWebhook:
		return fmt.Sprintf("notify %s via webhook", name)
	default:
		return fmt.Sprintf("notify %s", name)
	}
}

func userName(u alertgroup.UserRef, forSlack bool) string {
	name := u.Username
	if name == "" {
		name = u.ID
	}
	if forSlack {
		return "@" + name
	}
	return name
}

func groupName(gr alertgroup.GroupRef, forSlack bool) string {
	name := gr.Handle
	if name == "" {
		name = gr.ID
	}
	if forSlack {
		return "@" + name
	}
	return name
}

// foldBlock merges a new step block into the accumulated items. When the
// same user already has a chain planned, only the chain with the earliest
// first delivery survives: a step that re-notifies a user sooner
// supersedes their later queued events, and never the other way around.
func foldBlock(items []item, b []item) []item {
	if len(b) == 0 {
		return items
	}

	newFirst := map[string]time.Duration{}
	for _, it := range b {
		if it.userID == "" {
			continue
		}
		if cur, ok := newFirst[it.userID]; !ok || it.offset < cur {
			newFirst[it.userID] = it.offset
		}
	}

	oldFirst := map[string]time.Duration{}
	for _, it := range items {
		if it.userID == "" {
			continue
		}
		if cur, ok := oldFirst[it.userID]; !ok || it.offset < cur {
			oldFirst[it.userID] = it.offset
		}
	}

	// Users whose existing chain starts no later than the new one keep
	// the existing chain; the new block's lines for them are dropped.
	keepOld := map[string]bool{}
	for user, nf := range newFirst {
		if of, ok := oldFirst[user]; ok && of <= nf {
			keepOld[user] = true
		}
	}

	var out []item
	for _, it := range items {
		if it.userID != "" {
			if _, contested := newFirst[it.userID]; contested && !keepOld[it.userID] {
				continue
			}
		}
		out = append(out, it)
	}
	for _, it := range b {
		if it.userID != "" && keepOld[it.userID] {
			continue
		}
		out = append(out, it)
	}
	return out
}

// pruneAfter drops every item planned strictly later than the cutoff.
func pruneAfter(items []item, cutoff time.Duration) []item {
	var out []item
	for _, it := range items {
		if it.offset > cutoff {
			continue
		}
		out = append(out, it)
	}
	return out
}

// collapse clamps negative offsets to zero and buckets lines by offset,
// dropping empty buckets, preserving line order within a bucket.
func collapse(items []item) []Entry {
	if len(items) == 0 {
		return nil
	}
	buckets := map[time.Duration][]string{}
	var offsets []time.Duration
	for _, it := range items {
		off := it.offset
		if off < 0 {
			off = 0
		}
		if it.line == "" {
			continue
		}
		if _, ok := buckets[off]; !ok {
			offsets = append(offsets, off)
		}
		buckets[off] = append(buckets[off], it.line)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	var out []Entry
	for _, off := range offsets {
		out = append(out, Entry{Offset: off, Lines: buckets[off]})
	}
	return out
}
