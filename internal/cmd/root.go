// Package cmd provides CLI commands for the esc tool.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OWNER/escalator/internal/directory"
	"github.com/OWNER/escalator/internal/driver"
	"github.com/OWNER/escalator/internal/store"
)

var rootCmd = &cobra.Command{
	Use:     "esc",
	Short:   "Escalator - alert group escalation engine",
	Version: Version,
	Long: `Escalator runs escalation chains for alert groups.

When an alert group fires, its escalation chain is frozen into a
snapshot and a background driver walks the chain step by step: waiting,
notifying users and schedules, repeating, and resolving. The CLI manages
alert groups, inspects the escalation plan and log, and controls the
driver.`,
}

// Command group IDs - used by subcommands to organize help output
const (
	GroupAlerts  = "alerts"
	GroupInspect = "inspect"
	GroupService = "services"
	GroupDiag    = "diag"
)

var (
	flagDataDir string
	flagConfig  string
)

func init() {
	cobra.EnablePrefixMatching = true

	rootCmd.AddGroup(
		&cobra.Group{ID: GroupAlerts, Title: "Alert Groups:"},
		&cobra.Group{ID: GroupInspect, Title: "Inspection:"},
		&cobra.Group{ID: GroupService, Title: "Driver:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)
	rootCmd.SetHelpCommandGroupID(GroupDiag)
	rootCmd.SetCompletionCommandGroupID(GroupDiag)

	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data", "", "Data directory (default $ESCALATOR_DATA or ~/.escalator)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to escalator.toml (overrides --data)")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		// Errors already printed by cobra
		return 1
	}
	return 0
}

// loadConfig resolves the driver config from --config, --data, the
// ESCALATOR_DATA environment variable, or ~/.escalator, in that order.
func loadConfig() (*driver.Config, error) {
	if flagConfig != "" {
		return driver.LoadConfig(flagConfig)
	}

	dataDir := flagDataDir
	if dataDir == "" {
		dataDir = os.Getenv("ESCALATOR_DATA")
	}
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".escalator")
	}

	// A config file in the data directory applies when present.
	cfgPath := filepath.Join(dataDir, "escalator.toml")
	if _, err := os.Stat(cfgPath); err == nil {
		return driver.LoadConfig(cfgPath)
	}
	return driver.DefaultConfig(dataDir), nil
}

// openStore opens the alert group store with the live user directory
// attached, so loaded snapshots drop deleted users.
func openStore(cfg *driver.Config) (*store.Store, *directory.Directory, error) {
	users, err := directory.LoadUsers(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(cfg.DataDir, users)
	if err != nil {
		return nil, nil, err
	}
	return st, users, nil
}
