// Package directory supplies the driver's view of users, on-call
// schedules and rotation cursors from JSON files in the data directory.
// It backs the escalation ports that need live configuration: snapshot
// loading drops users the directory no longer lists, schedule steps ask
// it who is on call, and the users-queue step writes its rotation cursor
// through it.
package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OWNER/escalator/internal/alertgroup"
)

// UsersFileName is the user list file under the data directory.
const UsersFileName = "users.json"

// Directory is the live user set. A user absent from the file counts as
// deleted.
type Directory struct {
	users map[string]alertgroup.UserRef
}

// LoadUsers reads the user list from <dataDir>/users.json. A missing
// file yields an empty directory, not an error: a fresh data directory
// simply has no users yet.
func LoadUsers(dataDir string) (*Directory, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, UsersFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Directory{users: map[string]alertgroup.UserRef{}}, nil
		}
		return nil, fmt.Errorf("reading users: %w", err)
	}

	var list []alertgroup.UserRef
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing users: %w", err)
	}

	users := make(map[string]alertgroup.UserRef, len(list))
	for _, u := range list {
		if u.ID == "" {
			return nil, fmt.Errorf("user entry with empty id in %s", UsersFileName)
		}
		users[u.ID] = u
	}
	return &Directory{users: users}, nil
}

// Lookup resolves a user ID against the live set.
func (d *Directory) Lookup(id string) (alertgroup.UserRef, bool) {
	u, ok := d.users[id]
	return u, ok
}

// Len returns the number of known users.
func (d *Directory) Len() int { return len(d.users) }
