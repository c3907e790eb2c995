package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OWNER/escalator/internal/plan"
	"github.com/OWNER/escalator/internal/style"
)

var planSlack bool

var planCmd = &cobra.Command{
	Use:     "plan <group-id>",
	GroupID: GroupInspect,
	Short:   "Show the projected escalation timeline",
	Long: `Show the projected escalation timeline for an alert group.

The plan is a forecast of what the escalation chain and any pending
invitations will do, bucketed by time from now. Acknowledged and
silenced-forever groups have no plan.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var logNotes bool

var logCmd = &cobra.Command{
	Use:     "log <group-id>",
	GroupID: GroupInspect,
	Short:   "Show the escalation log",
	Long: `Show the merged, chronological escalation log of an alert group:
chain activity, lifecycle changes, and per-user notification attempts.`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

func init() {
	planCmd.Flags().BoolVar(&planSlack, "slack", false, "Render names as chat mentions")
	logCmd.Flags().BoolVar(&logNotes, "notes", false, "Include resolution notes")
	rootCmd.AddCommand(planCmd, logCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	doc, err := st.Load(args[0])
	if err != nil {
		return err
	}

	entries := plan.Forecast(doc.Group, doc.Snapshot, time.Now().UTC(), planSlack)
	if len(entries) == 0 {
		fmt.Println(style.Dim.Render("Nothing planned."))
		return nil
	}
	fmt.Print(plan.RenderEntries(entries))
	return nil
}

func runLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	doc, err := st.Load(args[0])
	if err != nil {
		return err
	}

	records := plan.LogRecords(doc.Group, logNotes)
	if len(records) == 0 {
		fmt.Println(style.Dim.Render("No log records."))
		return nil
	}
	fmt.Print(plan.RenderLog(records))
	return nil
}
