package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/OWNER/escalator/internal/timeutil"
)

// DefaultPollInterval is how often the driver scans for due alert
// groups when the config does not say otherwise. Escalation step ETAs
// have second granularity, so polling much faster buys nothing.
const DefaultPollInterval = 10 * time.Second

// Config holds the driver's runtime settings, read from escalator.toml.
type Config struct {
	// DataDir is the store root. Group documents live under
	// <data_dir>/groups/, driver bookkeeping under <data_dir>/driver/.
	DataDir string `toml:"data_dir"`

	// PollInterval is how often the driver scans for due groups.
	PollInterval timeutil.Duration `toml:"poll_interval"`

	// LogFile, PidFile and LockFile default to paths under
	// <data_dir>/driver/ when left empty.
	LogFile  string `toml:"log_file"`
	PidFile  string `toml:"pid_file"`
	LockFile string `toml:"lock_file"`
}

// DefaultConfig returns a config rooted at dataDir with every other
// field at its default.
func DefaultConfig(dataDir string) *Config {
	cfg := &Config{DataDir: dataDir}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("config %s: data_dir is required", path)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	driverDir := filepath.Join(c.DataDir, "driver")
	if c.PollInterval.Std() <= 0 {
		c.PollInterval = timeutil.Duration(DefaultPollInterval)
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(driverDir, "driver.log")
	}
	if c.PidFile == "" {
		c.PidFile = filepath.Join(driverDir, "driver.pid")
	}
	if c.LockFile == "" {
		c.LockFile = filepath.Join(driverDir, "driver.lock")
	}
}
