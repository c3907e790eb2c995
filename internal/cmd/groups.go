package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/OWNER/escalator/internal/alertgroup"
	"github.com/OWNER/escalator/internal/directory"
	"github.com/OWNER/escalator/internal/store"
	"github.com/OWNER/escalator/internal/style"
)

var groupsCmd = &cobra.Command{
	Use:     "groups",
	Aliases: []string{"group"},
	GroupID: GroupAlerts,
	Short:   "Manage alert groups",
	RunE:    requireSubcommand,
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert groups",
	RunE:  runGroupsList,
}

var groupsShowCmd = &cobra.Command{
	Use:   "show <group-id>",
	Short: "Show one alert group",
	Args:  cobra.ExactArgs(1),
	RunE:  runGroupsShow,
}

var alertRoute string

var alertCmd = &cobra.Command{
	Use:     "alert <group-id>",
	GroupID: GroupAlerts,
	Short:   "Record an incoming alert",
	Long: `Record an incoming alert on an alert group.

The alert joins the named group, creating it when it does not exist yet.
A new group takes its escalation route from the routes file; the driver
freezes that route into a snapshot and starts walking it on its next
poll. An alert on a paused group lifts the pause.`,
	Args: cobra.ExactArgs(1),
	RunE: runAlert,
}

func init() {
	alertCmd.Flags().StringVar(&alertRoute, "route", "default", "Route name for a newly created group")
	groupsCmd.AddCommand(groupsListCmd, groupsShowCmd)
	rootCmd.AddCommand(groupsCmd, alertCmd)
}

func runGroupsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, _, err := openStore(cfg)
	if err != nil {
		return err
	}

	ids, err := st.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println(style.Dim.Render("No alert groups."))
		return nil
	}

	for _, id := range ids {
		doc, err := st.Load(id)
		if err != nil {
			fmt.Printf("%s %s %s\n", style.Error.Render("!"), id, style.Dim.Render(err.Error()))
			continue
		}
		fmt.Printf("%s %s  %s\n", stateIcon(doc), style.Bold.Render(id), style.Dim.Render(describeGroup(doc)))
	}
	return nil
}

func runGroupsShow(cmd *cobra.Command, args []string) error {
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
	g := doc.Group

	fmt.Printf("%s %s\n", style.Heading.Render("Alert group"), style.Bold.Render(g.ID))
	fmt.Printf("  %s %s\n", style.Dim.Render("state:"), describeGroup(doc))
	fmt.Printf("  %s %d\n", style.Dim.Render("alerts:"), len(g.Alerts))
	if last := g.LastAlert(); last != nil {
		fmt.Printf("  %s %s\n", style.Dim.Render("last alert:"), last.CreatedAt.Format(time.RFC3339))
	}
	if doc.Snapshot != nil {
		title := cases.Title(language.English)
		fmt.Printf("  %s %s\n", style.Dim.Render("escalation:"), title.String(string(doc.Snapshot.State())))
		if doc.Snapshot.NextStepETA != nil {
			fmt.Printf("  %s %s\n", style.Dim.Render("next step:"), doc.Snapshot.NextStepETA.Format(time.RFC3339))
		}
		for _, p := range doc.Snapshot.Policies {
			marker := " "
			if !doc.Snapshot.Finished && p.Order == doc.Snapshot.CurrentOrder {
				marker = style.Warning.Render("→")
			}
			fmt.Printf("  %s %2d. %s\n", marker, p.Order, p.Step.Display())
		}
	}
	if n := len(g.ActiveInvitations()); n > 0 {
		fmt.Printf("  %s %d\n", style.Dim.Render("active invitations:"), n)
	}
	return nil
}

func runAlert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	id := args[0]

	release, err := st.Lock(id)
	if err != nil {
		return err
	}
	defer release()

	doc, err := st.Load(id)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		route, rerr := directory.LoadRoute(cfg.DataDir, alertRoute)
		if rerr != nil {
			return rerr
		}
		doc = &store.Document{
			Group: &alertgroup.AlertGroup{ID: id},
			Route: route,
		}
		created = true
	default:
		return err
	}

	doc.Group.Alerts = append(doc.Group.Alerts, alertgroup.Alert{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	})
	if err := st.Save(doc); err != nil {
		return err
	}

	if created {
		fmt.Printf("%s Created alert group %s (route %s)\n", style.Success.Render("✓"), style.Bold.Render(id), alertRoute)
	} else {
		fmt.Printf("%s Recorded alert on %s (%d alerts)\n", style.Success.Render("✓"), style.Bold.Render(id), len(doc.Group.Alerts))
	}
	return nil
}

func stateIcon(doc *store.Document) string {
	g := doc.Group
	switch {
	case g.Resolved:
		return style.Success.Render("✓")
	case g.Acknowledged:
		return style.Success.Render("●")
	case g.Silenced:
		return style.Dim.Render("◌")
	default:
		return style.Error.Render("●")
	}
}

func describeGroup(doc *store.Document) string {
	g := doc.Group
	switch {
	case g.Resolved:
		return "resolved"
	case g.Acknowledged:
		return "acknowledged"
	case g.SilencedForever():
		return "silenced"
	case g.Silenced:
		return fmt.Sprintf("silenced until %s", g.SilencedUntil.Format("15:04:05"))
	case g.Attached():
		return fmt.Sprintf("attached to %s", g.RootID)
	case doc.Snapshot == nil:
		return "firing, escalation not started"
	default:
		return fmt.Sprintf("firing, escalation %s", doc.Snapshot.State())
	}
}
