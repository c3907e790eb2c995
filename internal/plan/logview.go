// Package plan reconstructs an alert group's escalation timeline without
// executing anything: a flat chronological log merged from the group's
// record streams, and a forward-looking forecast of what the escalation
// snapshot will do next and when. Everything here is read-only and safe
// to call at arbitrarily high frequency; it never mutates the snapshot
// or the log records and tolerates reading a snapshot mid-sequence.
package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/OWNER/escalator/internal/alertgroup"
	"github.com/OWNER/escalator/internal/escalation"
)

// Record is one line of the merged chronological log view.
type Record struct {
	CreatedAt time.Time
	Author    *alertgroup.UserRef
	Line      string
}

// noisy record types are internal bookkeeping, excluded from the view.
var noisyRecordTypes = map[alertgroup.RecordType]bool{
	alertgroup.RecordEscalationFinished:  true,
	alertgroup.RecordInvitationTriggered: true,
	alertgroup.RecordAckReminder:         true,
	alertgroup.RecordWiped:               true,
	alertgroup.RecordDeleted:             true,
}

// LogRecords merges the group's escalation records, personal notification
// records, and (optionally) resolution notes into one list sorted by
// timestamp.
//
// Escalation records are filtered two ways: noisy internal types are
// dropped, and triggered records that carry an author are kept only for
// steps whose action is attributable to that user. The distinction drives
// what end users read as "who did what", so it is load-bearing.
func LogRecords(g *alertgroup.AlertGroup, withResolutionNotes bool) []Record {
	var out []Record

	for _, r := range g.LogRecords {
		if noisyRecordTypes[r.Type] {
			continue
		}
		if r.Type == alertgroup.RecordEscalationTriggered && r.Author != nil {
			if !escalation.Step(r.Step).UserAttributable() {
				continue
			}
		}
		out = append(out, Record{
			CreatedAt: r.CreatedAt,
			Author:    r.Author,
			Line:      renderLogRecord(r),
		})
	}

	for _, r := range g.PersonalLog {
		out = append(out, Record{
			CreatedAt: r.CreatedAt,
			Author:    &alertgroup.UserRef{ID: r.UserID},
			Line:      renderPersonalRecord(r),
		})
	}

	if withResolutionNotes {
		for _, n := range g.ResolutionNotes {
			out = append(out, Record{
				CreatedAt: n.CreatedAt,
				Author:    n.Author,
				Line:      fmt.Sprintf("resolution note: %s", n.Text),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func renderLogRecord(r alertgroup.LogRecord) string {
	switch r.Type {
	case alertgroup.RecordEscalationFailed:
		if r.Reason != "" {
			return fmt.Sprintf("escalation step failed: %s", r.Reason)
		}
		return fmt.Sprintf("escalation step failed (%s)", r.Code)
	case alertgroup.RecordEscalationTriggered:
		if r.Reason != "" {
			return r.Reason
		}
		return escalation.Step(r.Step).Display()
	default:
		if r.Reason != "" {
			return r.Reason
		}
		return string(r.Type)
	}
}

func renderPersonalRecord(r alertgroup.PersonalLogRecord) string {
	switch r.Type {
	case alertgroup.PersonalFailed:
		return fmt.Sprintf("notification via %s failed: %s", r.Channel, r.Reason)
	case alertgroup.PersonalSuccess:
		return fmt.Sprintf("notified via %s", r.Channel)
	default:
		return fmt.Sprintf("notification via %s triggered", r.Channel)
	}
}
