package directory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/OWNER/escalator/internal/alertgroup"
)

// RotationsFileName is the rotation cursor file under the data
// directory.
const RotationsFileName = "rotations.json"

// Rotations persists the users-queue rotation cursor per configured
// policy, so an escalation re-triggered later resumes the rotation where
// the previous run left it instead of restarting from the top.
type Rotations struct {
	mu   sync.Mutex
	path string
}

// OpenRotations returns a rotation cursor store in the data directory.
func OpenRotations(dataDir string) *Rotations {
	return &Rotations{path: filepath.Join(dataDir, RotationsFileName)}
}

// SetLastNotified records the rotation cursor for a policy. Best effort:
// the cursor is a resume hint, losing a write only means one rotation
// restarts from the top.
func (r *Rotations) SetLastNotified(policyID string, user alertgroup.UserRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cursors := r.load()
	cursors[policyID] = user

	data, err := json.MarshalIndent(cursors, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(r.path, data, 0600)
}

// LastNotified returns the recorded cursor for a policy, if any.
func (r *Rotations) LastNotified(policyID string) (alertgroup.UserRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.load()[policyID]
	return u, ok
}

func (r *Rotations) load() map[string]alertgroup.UserRef {
	cursors := map[string]alertgroup.UserRef{}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return cursors
	}
	_ = json.Unmarshal(data, &cursors)
	return cursors
}
