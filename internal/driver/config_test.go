package driver

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/var/lib/escalator")

	if cfg.PollInterval.Std() != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.PollInterval.Std(), DefaultPollInterval)
	}
	if want := filepath.Join("/var/lib/escalator", "driver", "driver.log"); cfg.LogFile != want {
		t.Errorf("LogFile = %s, want %s", cfg.LogFile, want)
	}
	if want := filepath.Join("/var/lib/escalator", "driver", "driver.pid"); cfg.PidFile != want {
		t.Errorf("PidFile = %s, want %s", cfg.PidFile, want)
	}
	if want := filepath.Join("/var/lib/escalator", "driver", "driver.lock"); cfg.LockFile != want {
		t.Errorf("LockFile = %s, want %s", cfg.LockFile, want)
	}
}

func TestLoadConfig(t *testing.T) {
	writeConfig := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "escalator.toml")
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("writing config: %v", err)
		}
		return path
	}

	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
data_dir = "/srv/escalator"
poll_interval = "30s"
log_file = "/var/log/escalator.log"
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.DataDir != "/srv/escalator" {
			t.Errorf("DataDir = %s, want /srv/escalator", cfg.DataDir)
		}
		if cfg.PollInterval.Std() != 30*time.Second {
			t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval.Std())
		}
		if cfg.LogFile != "/var/log/escalator.log" {
			t.Errorf("LogFile = %s, want the configured path", cfg.LogFile)
		}
		// Unset paths still get defaults.
		if want := filepath.Join("/srv/escalator", "driver", "driver.pid"); cfg.PidFile != want {
			t.Errorf("PidFile = %s, want %s", cfg.PidFile, want)
		}
	})

	t.Run("data_dir is required", func(t *testing.T) {
		path := writeConfig(t, `poll_interval = "30s"`)
		if _, err := LoadConfig(path); err == nil {
			t.Error("LoadConfig() error = nil, want missing data_dir error")
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		path := writeConfig(t, `
data_dir = "/srv/escalator"
poll_interval = "soon"
`)
		if _, err := LoadConfig(path); err == nil {
			t.Error("LoadConfig() error = nil, want parse error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("LoadConfig() error = nil, want read error")
		}
	})
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()

	// Nothing written yet.
	st, err := ReadState(dir)
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if st != nil {
		t.Fatalf("ReadState() = %+v, want nil", st)
	}

	want := &State{
		Running:   true,
		PID:       1234,
		StartedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		PollCount: 7,
	}
	if err := SaveState(dir, want); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}
	got, err := ReadState(dir)
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if got == nil || !got.Running || got.PID != 1234 || got.PollCount != 7 {
		t.Errorf("ReadState() = %+v, want %+v", got, want)
	}
}

func TestIsRunning(t *testing.T) {
	dir := t.TempDir()

	t.Run("no pid file", func(t *testing.T) {
		running, _, err := IsRunning(dir)
		if err != nil {
			t.Fatalf("IsRunning() error = %v", err)
		}
		if running {
			t.Error("IsRunning() = true without a pid file")
		}
	})

	t.Run("live process", func(t *testing.T) {
		if err := os.MkdirAll(filepath.Join(dir, "driver"), 0755); err != nil {
			t.Fatal(err)
		}
		// Our own PID is guaranteed alive.
		if err := os.WriteFile(pidPath(dir), []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
			t.Fatal(err)
		}
		running, pid, err := IsRunning(dir)
		if err != nil {
			t.Fatalf("IsRunning() error = %v", err)
		}
		if !running || pid != os.Getpid() {
			t.Errorf("IsRunning() = (%v, %d), want our own pid", running, pid)
		}
	})

	t.Run("stale pid file is removed", func(t *testing.T) {
		// PIDs beyond the default kernel maximum never exist.
		if err := os.WriteFile(pidPath(dir), []byte("4194399"), 0600); err != nil {
			t.Fatal(err)
		}
		running, _, err := IsRunning(dir)
		if err != nil {
			t.Fatalf("IsRunning() error = %v", err)
		}
		if running {
			t.Error("IsRunning() = true for a dead pid")
		}
		if _, err := os.Stat(pidPath(dir)); !os.IsNotExist(err) {
			t.Error("stale pid file not removed")
		}
	})
}
