package escalation

import (
	"sort"

	"github.com/OWNER/escalator/internal/alertgroup"
)

// NextInRotation returns the user to notify next from a queue, round
// robin. The queue is sorted by (username, id) so the order is
// deterministic regardless of how the queue was assembled; the element
// after last wins, wrapping at the end. A last user no longer in the
// queue (or nil) restarts from the front, so removing the previously
// notified user never breaks the cycle.
func NextInRotation(queue []alertgroup.UserRef, last *alertgroup.UserRef) *alertgroup.UserRef {
	if len(queue) == 0 {
		return nil
	}
	sorted := make([]alertgroup.UserRef, len(queue))
	copy(sorted, queue)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Username != sorted[j].Username {
			return sorted[i].Username < sorted[j].Username
		}
		return sorted[i].ID < sorted[j].ID
	})

	idx := -1
	if last != nil {
		for i, u := range sorted {
			if u.ID == last.ID {
				idx = i
				break
			}
		}
	}
	next := sorted[(idx+1)%len(sorted)]
	return &next
}
