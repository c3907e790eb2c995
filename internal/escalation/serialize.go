package escalation

import (
	"encoding/json"
	"fmt"
)

// MarshalSnapshot serializes a snapshot to its persisted document form.
// The document survives process restarts and drives every subsequent
// driver invocation, so the round trip must be lossless for order, step,
// and mutable state (see LoadSnapshot).
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// LoadSnapshot deserializes a persisted snapshot. When a user directory
// is supplied, notify-queue members the directory no longer knows are
// silently dropped rather than failing the load: a deleted user must not
// wedge an in-flight escalation. The rotation cursor is kept even when
// stale; rotation treats an unknown cursor as "start over".
func LoadSnapshot(data []byte, dir UserDirectory) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	FilterUsers(&s, dir)
	return &s, nil
}

// FilterUsers drops notify-queue members the directory no longer knows
// and refreshes the kept references. A nil directory is a no-op.
func FilterUsers(s *Snapshot, dir UserDirectory) {
	if dir == nil {
		return
	}
	for _, p := range s.Policies {
		if len(p.Config.NotifyQueue) == 0 {
			continue
		}
		kept := p.Config.NotifyQueue[:0]
		for _, u := range p.Config.NotifyQueue {
			if live, ok := dir.Lookup(u.ID); ok {
				kept = append(kept, live)
			}
		}
		p.Config.NotifyQueue = kept
	}
}
