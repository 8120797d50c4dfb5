package cli

import (
	"fmt"

	"github.com/go-events-sync/internal/domain"
	"github.com/spf13/cobra"
)

func newNotificationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notes"},
		Short:   "Inspect the notification log of the profile",
	}
	cmd.AddCommand(newNotificationsListCmd(a), newNotificationsReadCmd(a), newNotificationsClearCmd(a))
	return cmd
}

func newNotificationsListCmd(a *app) *cobra.Command {
	var (
		unread bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, notes, err := a.openNotes(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			list := notes.List()
			if unread {
				kept := list[:0]
				for _, n := range list {
					if !n.Read {
						kept = append(kept, n)
					}
				}
				list = kept
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			if err := printNotifications(cmd.OutOrStdout(), list); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d unread\n", notes.UnreadCount())
			return err
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newNotificationsReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read ID",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, notes, err := a.openNotes(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			if !notes.MarkRead(args[0]) {
				return fmt.Errorf("notification %s: %w", args[0], domain.ErrNotFound)
			}
			return nil
		},
	}
}

func newNotificationsClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, notes, err := a.openNotes(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			notes.ClearAll()
			return nil
		},
	}
}
