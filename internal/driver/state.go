package driver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// State is the driver's bookkeeping record, written to
// <data_dir>/driver/state.json on start, each poll, and shutdown. It is
// for status display only; the file lock is what actually prevents a
// second driver.
type State struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	LastPoll  time.Time `json:"last_poll,omitempty"`
	PollCount int       `json:"poll_count"`
}

func statePath(dataDir string) string {
	return filepath.Join(dataDir, "driver", "state.json")
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "driver", "driver.pid")
}

// SaveState writes the driver state file.
func SaveState(dataDir string, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	path := statePath(dataDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating driver directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}

// ReadState reads the driver state file. Returns nil without error when
// no state has been written yet.
func ReadState(dataDir string) (*State, error) {
	data, err := os.ReadFile(statePath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	return &state, nil
}

// IsRunning checks whether a driver is running for the given data
// directory. It reads the PID file and probes the process. Stale PID
// files are cleaned up. The file lock in Run is the authoritative
// duplicate-prevention mechanism; this is for status checks.
func IsRunning(dataDir string) (bool, int, error) {
	data, err := os.ReadFile(pidPath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return false, 0, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0, nil
	}

	// On Unix, FindProcess always succeeds. Send signal 0 to check if alive.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		_ = os.Remove(pidPath(dataDir))
		return false, 0, nil
	}

	return true, pid, nil
}

// StopDriver stops the running driver for the given data directory.
func StopDriver(dataDir string) error {
	running, pid, err := IsRunning(dataDir)
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("driver is not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM: %w", err)
	}

	// Give graceful shutdown a moment before escalating.
	time.Sleep(2 * time.Second)
	if err := process.Signal(syscall.Signal(0)); err == nil {
		_ = process.Signal(syscall.SIGKILL)
	}

	_ = os.Remove(pidPath(dataDir))
	return nil
}
