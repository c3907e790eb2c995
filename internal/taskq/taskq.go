// Package taskq collects the side effects of step execution and releases
// them only after the enclosing snapshot write commits. Scheduling work
// before the commit would let a worker observe stale state, so steps
// append to a batch and the driver flushes it on success or drops it on
// failure.
package taskq

import (
	"fmt"

	"github.com/OWNER/escalator/internal/escalation"
)

// Notifier receives flushed tasks. Actual delivery (Slack, SMS, phone,
// push, webhook) lives behind this interface and out of scope.
type Notifier interface {
	Notify(t escalation.Task) error
}

// Batch accumulates tasks during one step execution. It implements
// escalation.TaskSubmitter. A batch belongs to a single logical
// execution; it is not safe for concurrent use, matching the
// one-execution-per-alert-group model.
type Batch struct {
	pending []escalation.Task
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Submit defers one task until Flush.
func (b *Batch) Submit(t escalation.Task) {
	b.pending = append(b.pending, t)
}

// Pending returns the tasks deferred so far.
func (b *Batch) Pending() []escalation.Task {
	return b.pending
}

// Len returns the number of deferred tasks.
func (b *Batch) Len() int {
	return len(b.pending)
}

// Flush hands every deferred task to the notifier and empties the batch.
// Called only after the snapshot write committed. Delivery stops at the
// first notifier error; undelivered tasks stay pending so the caller can
// retry.
func (b *Batch) Flush(n Notifier) error {
	for len(b.pending) > 0 {
		t := b.pending[0]
		if err := n.Notify(t); err != nil {
			return fmt.Errorf("delivering %s task for group %s: %w", t.Type, t.AlertGroupID, err)
		}
		b.pending = b.pending[1:]
	}
	return nil
}

// Discard drops all deferred tasks. Called when the snapshot write did
// not commit.
func (b *Batch) Discard() {
	b.pending = nil
}
