package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/OWNER/escalator/internal/alertgroup"
	"github.com/OWNER/escalator/internal/timeutil"
)

// SchedulesFileName is the schedule definitions file under the data
// directory.
const SchedulesFileName = "schedules.json"

// Shift is one recurring daily on-call window. Windows may wrap
// midnight.
type Shift struct {
	From  timeutil.TimeOfDay   `json:"from"`
	To    timeutil.TimeOfDay   `json:"to"`
	Users []alertgroup.UserRef `json:"users"`
}

// Schedule is one named on-call schedule: an always-on user set, shift
// windows layered on top, or both.
type Schedule struct {
	// Users are on call around the clock.
	Users []alertgroup.UserRef `json:"users,omitempty"`

	// Shifts add users during their daily window.
	Shifts []Shift `json:"shifts,omitempty"`
}

// Schedules resolves who is on call from <dataDir>/schedules.json.
type Schedules struct {
	path string
}

// OpenSchedules returns a resolver reading from the data directory. The
// file is re-read on every resolution so schedule edits apply without a
// driver restart.
func OpenSchedules(dataDir string) *Schedules {
	return &Schedules{path: filepath.Join(dataDir, SchedulesFileName)}
}

// UsersOnCallNow returns the users on call for the schedule at the given
// instant. An unknown schedule resolves to nobody; an unreadable or
// unparseable file is a resolution failure, which escalation records as
// a schedule import failure rather than an empty shift.
func (s *Schedules) UsersOnCallNow(ref alertgroup.ScheduleRef, at time.Time) ([]alertgroup.UserRef, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading schedules: %w", err)
	}

	var all map[string]Schedule
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parsing schedules: %w", err)
	}

	sched, ok := all[ref.ID]
	if !ok {
		return nil, nil
	}

	users := append([]alertgroup.UserRef(nil), sched.Users...)
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		seen[u.ID] = true
	}
	for _, shift := range sched.Shifts {
		if !timeutil.InsideWindow(at, shift.From, shift.To) {
			continue
		}
		for _, u := range shift.Users {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			users = append(users, u)
		}
	}
	return users, nil
}
