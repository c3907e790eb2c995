package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/OWNER/escalator/internal/directory"
	"github.com/OWNER/escalator/internal/driver"
	"github.com/OWNER/escalator/internal/style"
)

var driveCmd = &cobra.Command{
	Use:     "drive",
	GroupID: GroupService,
	Short:   "Manage the escalation driver",
	Long: `Manage the escalation driver process.

The driver is the background process that advances escalations: it polls
the store for alert groups whose next step is due, executes one step per
group under the group's lock, persists the snapshot, and delivers the
resulting notification tasks.`,
	RunE: requireSubcommand,
}

var driveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the driver in the background",
	Long: `Start the escalation driver as a detached background process.

The driver logs to <data>/driver/driver.log. Running start while a
driver already holds the lock is a no-op.`,
	RunE: runDriveStart,
}

var driveRunCmd = &cobra.Command{
	Use:    "run",
	Short:  "Run the driver in the foreground",
	Hidden: true,
	RunE:   runDriveRun,
}

var driveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running driver",
	RunE:  runDriveStop,
}

var driveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check driver status",
	RunE:  runDriveStatus,
}

func init() {
	driveCmd.AddCommand(driveStartCmd, driveRunCmd, driveStopCmd, driveStatusCmd)
	rootCmd.AddCommand(driveCmd)
}

func requireSubcommand(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

func runDriveStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid, err := driver.IsRunning(cfg.DataDir)
	if err != nil {
		return err
	}
	if running {
		fmt.Printf("Driver already running (PID %d)\n", pid)
		return nil
	}

	exePath, err := os.Executable()
	if err != nil {
		return err
	}

	run := exec.Command(exePath, "drive", "run", "--data", cfg.DataDir)
	if flagConfig != "" {
		run = exec.Command(exePath, "drive", "run", "--config", flagConfig)
	}
	// Detach from parent I/O; the driver has its own log file.
	run.Stdin = nil
	run.Stdout = nil
	run.Stderr = nil
	if err := run.Start(); err != nil {
		return fmt.Errorf("starting driver: %w", err)
	}

	// Wait for the driver to take the lock and write its PID.
	time.Sleep(300 * time.Millisecond)
	running, pid, err = driver.IsRunning(cfg.DataDir)
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("driver failed to start (see %s)", cfg.LogFile)
	}

	fmt.Printf("%s Driver started (PID %d)\n", style.Success.Render("✓"), pid)
	return nil
}

func runDriveRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, _, err := openStore(cfg)
	if err != nil {
		return err
	}

	schedules := directory.OpenSchedules(cfg.DataDir)
	rotations := directory.OpenRotations(cfg.DataDir)

	d, err := driver.New(cfg, st, schedules, nil, rotations)
	if err != nil {
		return err
	}
	return d.Run()
}

func runDriveStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := driver.StopDriver(cfg.DataDir); err != nil {
		return err
	}
	fmt.Printf("%s Driver stopped\n", style.Success.Render("✓"))
	return nil
}

func runDriveStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid, err := driver.IsRunning(cfg.DataDir)
	if err != nil {
		return err
	}
	if !running {
		fmt.Println(style.Dim.Render("Driver is not running"))
		return nil
	}

	fmt.Printf("%s Driver running (PID %d)\n", style.Success.Render("●"), pid)

	state, err := driver.ReadState(cfg.DataDir)
	if err != nil || state == nil {
		return nil
	}
	fmt.Printf("  %s %s\n", style.Dim.Render("started:"), state.StartedAt.Format(time.RFC3339))
	if !state.LastPoll.IsZero() {
		fmt.Printf("  %s %s (%d polls)\n", style.Dim.Render("last poll:"), state.LastPoll.Format(time.RFC3339), state.PollCount)
	}
	return nil
}
