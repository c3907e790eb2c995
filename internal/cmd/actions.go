package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/OWNER/escalator/internal/alertgroup"
	"github.com/OWNER/escalator/internal/auditlog"
	"github.com/OWNER/escalator/internal/directory"
	"github.com/OWNER/escalator/internal/store"
	"github.com/OWNER/escalator/internal/style"
)

var actionUser string

var ackCmd = &cobra.Command{
	Use:     "ack <group-id>",
	GroupID: GroupAlerts,
	Short:   "Acknowledge an alert group",
	Long: `Acknowledge an alert group.

Acknowledging stops escalation: the driver skips acknowledged groups and
the plan projector truncates their forecast. Use unack to hand the group
back to the escalation chain.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateGroup(args[0], alertgroup.RecordAck, "", func(doc *store.Document, users *directory.Directory) error {
			doc.Group.Acknowledged = true
			return nil
		})
	},
}

var unackCmd = &cobra.Command{
	Use:     "unack <group-id>",
	GroupID: GroupAlerts,
	Short:   "Un-acknowledge an alert group",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateGroup(args[0], alertgroup.RecordUnack, "", func(doc *store.Document, users *directory.Directory) error {
			doc.Group.Acknowledged = false
			resumeEscalation(doc)
			return nil
		})
	},
}

var resolveCmd = &cobra.Command{
	Use:     "resolve <group-id>",
	GroupID: GroupAlerts,
	Short:   "Resolve an alert group",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateGroup(args[0], alertgroup.RecordResolve, "", func(doc *store.Document, users *directory.Directory) error {
			doc.Group.Resolved = true
			return nil
		})
	},
}

var unresolveCmd = &cobra.Command{
	Use:     "unresolve <group-id>",
	GroupID: GroupAlerts,
	Short:   "Re-open a resolved alert group",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateGroup(args[0], alertgroup.RecordUnresolve, "", func(doc *store.Document, users *directory.Directory) error {
			doc.Group.Resolved = false
			resumeEscalation(doc)
			return nil
		})
	},
}

var silenceFor time.Duration

var silenceCmd = &cobra.Command{
	Use:     "silence <group-id>",
	GroupID: GroupAlerts,
	Short:   "Silence an alert group",
	Long: `Silence an alert group.

With --for, escalation pauses and resumes when the silence expires; the
plan projector shifts the forecast by the remaining silence. Without
--for the group is silenced indefinitely and drops out of the forecast.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason := "silenced forever"
		if silenceFor > 0 {
			reason = fmt.Sprintf("silenced for %s", silenceFor)
		}
		return mutateGroup(args[0], alertgroup.RecordSilence, reason, func(doc *store.Document, users *directory.Directory) error {
			doc.Group.Silenced = true
			doc.Group.SilencedUntil = nil
			if silenceFor > 0 {
				until := time.Now().UTC().Add(silenceFor)
				doc.Group.SilencedUntil = &until
			}
			return nil
		})
	},
}

var unsilenceCmd = &cobra.Command{
	Use:     "unsilence <group-id>",
	GroupID: GroupAlerts,
	Short:   "Lift an alert group's silence",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateGroup(args[0], alertgroup.RecordUnsilence, "", func(doc *store.Document, users *directory.Directory) error {
			doc.Group.Silenced = false
			doc.Group.SilencedUntil = nil
			resumeEscalation(doc)
			return nil
		})
	},
}

var inviteCmd = &cobra.Command{
	Use:     "invite <group-id> <user-id>",
	GroupID: GroupAlerts,
	Short:   "Page a specific user onto an alert group",
	Long: `Page a specific user onto an alert group.

An invitation notifies the user through their personal notification
chain with growing backoff between attempts, independent of the
escalation chain. The plan projector folds pending attempts into the
forecast.`,
	Args: cobra.ExactArgs(2),
	RunE: runInvite,
}

var noteCmd = &cobra.Command{
	Use:     "note <group-id> <text>",
	GroupID: GroupAlerts,
	Short:   "Attach a resolution note to an alert group",
	Args:    cobra.ExactArgs(2),
	RunE:    runNote,
}

func init() {
	silenceCmd.Flags().DurationVar(&silenceFor, "for", 0, "Silence duration (default: forever)")
	for _, c := range []*cobra.Command{ackCmd, unackCmd, resolveCmd, unresolveCmd, silenceCmd, unsilenceCmd, inviteCmd, noteCmd} {
		c.Flags().StringVar(&actionUser, "user", "", "Acting user ID")
		rootCmd.AddCommand(c)
	}
}

// mutateGroup applies one lifecycle change under the group's execution
// lock: mutate, append the audit record, save atomically.
func mutateGroup(id string, recType alertgroup.RecordType, reason string, mutate func(*store.Document, *directory.Directory) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, users, err := openStore(cfg)
	if err != nil {
		return err
	}
	audit, err := auditlog.NewFileLog(cfg.DataDir)
	if err != nil {
		return err
	}

	release, err := st.Lock(id)
	if err != nil {
		return err
	}
	defer release()

	doc, err := st.Load(id)
	if err != nil {
		return err
	}
	if err := mutate(doc, users); err != nil {
		return err
	}

	rec := alertgroup.LogRecord{
		ID:        uuid.NewString(),
		Type:      recType,
		CreatedAt: time.Now().UTC(),
		Reason:    reason,
	}
	if actionUser != "" {
		if u, ok := users.Lookup(actionUser); ok {
			rec.Author = &u
		} else {
			return fmt.Errorf("unknown user %q", actionUser)
		}
	}
	if err := audit.Append(doc.Group, rec); err != nil {
		return err
	}
	if err := st.Save(doc); err != nil {
		return err
	}

	fmt.Printf("%s %s %s\n", style.Success.Render("✓"), style.Bold.Render(id), recType)
	return nil
}

// resumeEscalation makes an unfinished snapshot due again after a state
// change handed the group back to the chain.
func resumeEscalation(doc *store.Document) {
	s := doc.Snapshot
	if s == nil || s.Finished {
		return
	}
	eta := time.Now().UTC()
	s.NextStepETA = &eta
}

func runInvite(cmd *cobra.Command, args []string) error {
	id, userID := args[0], args[1]
	return mutateGroup(id, alertgroup.RecordInvitationTriggered, fmt.Sprintf("invited %s", userID), func(doc *store.Document, users *directory.Directory) error {
		invitee, ok := users.Lookup(userID)
		if !ok {
			return fmt.Errorf("unknown user %q", userID)
		}
		inv := alertgroup.Invitation{
			ID:        uuid.NewString(),
			Invitee:   invitee,
			CreatedAt: time.Now().UTC(),
			Active:    true,
		}
		if actionUser != "" {
			if author, ok := users.Lookup(actionUser); ok {
				inv.Author = &author
			}
		}
		doc.Group.Invitations = append(doc.Group.Invitations, inv)
		return nil
	})
}

func runNote(cmd *cobra.Command, args []string) error {
	id, text := args[0], args[1]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, users, err := openStore(cfg)
	if err != nil {
		return err
	}

	release, err := st.Lock(id)
	if err != nil {
		return err
	}
	defer release()

	doc, err := st.Load(id)
	if err != nil {
		return err
	}
	note := alertgroup.ResolutionNote{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if actionUser != "" {
		if u, ok := users.Lookup(actionUser); ok {
			note.Author = &u
		}
	}
	doc.Group.ResolutionNotes = append(doc.Group.ResolutionNotes, note)
	if err := st.Save(doc); err != nil {
		return err
	}
	fmt.Printf("%s Note added to %s\n", style.Success.Render("✓"), style.Bold.Render(id))
	return nil
}
