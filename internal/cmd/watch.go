package cmd

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/OWNER/escalator/internal/tui/watch"
)

var watchCmd = &cobra.Command{
	Use:     "watch <group-id>",
	GroupID: GroupInspect,
	Short:   "Follow an alert group live",
	Long: `Follow an alert group in a terminal UI.

Shows the projected escalation plan and the merged log, refreshed as the
driver advances the escalation. Tab switches panes, q quits.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("watch requires a terminal; use 'esc plan' or 'esc log' instead")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, _, err := openStore(cfg)
	if err != nil {
		return err
	}

	// Fail fast on a missing group before taking over the screen.
	if _, err := st.Load(args[0]); err != nil {
		return err
	}

	p := tea.NewProgram(watch.New(st, args[0]), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running watch UI: %w", err)
	}
	return nil
}
