package cli

import (
	"fmt"

	"github.com/go-events-sync/internal/domain"
	"github.com/spf13/cobra"
)

func newEventsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read and change events through a single tab",
	}
	cmd.AddCommand(
		newEventsListCmd(a),
		newEventsGetCmd(a),
		newEventsCreateCmd(a),
		newEventsUpdateCmd(a),
		newEventsDeleteCmd(a),
		newEventsImportCmd(a),
	)
	return cmd
}

// withPage runs fn against one page of a freshly opened profile.
func withPage(cmd *cobra.Command, a *app, fn func(pg *page) error) error {
	prof, err := a.openProfile(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer prof.Close()
	pg, err := prof.openPage(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer pg.Close()
	return fn(pg)
}

func newEventsListCmd(a *app) *cobra.Command {
	var (
		ff     filterFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events, from the cache when the server is unreachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPage(cmd, a, func(pg *page) error {
				if err := pg.coord.Load(cmd.Context(), ff.filter()); err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), pg.coord.Events())
				}
				return printEvents(cmd.OutOrStdout(), pg.coord.Events())
			})
		},
	}
	ff.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newEventsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPage(cmd, a, func(pg *page) error {
				e, err := pg.api.GetEvent(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if e == nil {
					return fmt.Errorf("event %s: %w", args[0], domain.ErrNotFound)
				}
				return writeJSON(cmd.OutOrStdout(), e)
			})
		},
	}
}

func newEventsCreateCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event from a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := readEventInput(cmd, file)
			if err != nil {
				return err
			}
			return withPage(cmd, a, func(pg *page) error {
				e, err := pg.coord.Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s (revision %d)\n", e.EventID, e.Revision)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "event JSON, - for stdin")
	return cmd
}

func newEventsUpdateCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Replace an event from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readEventInput(cmd, file)
			if err != nil {
				return err
			}
			return withPage(cmd, a, func(pg *page) error {
				e, err := pg.coord.Update(cmd.Context(), args[0], in)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated %s (revision %d)\n", e.EventID, e.Revision)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "event JSON, - for stdin")
	return cmd
}

func newEventsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPage(cmd, a, func(pg *page) error {
				if err := pg.coord.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return err
			})
		},
	}
}

func newEventsImportCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create many events from a JSON array",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := readEventInputs(cmd, file)
			if err != nil {
				return err
			}
			return withPage(cmd, a, func(pg *page) error {
				res, err := pg.coord.Import(cmd.Context(), in)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d events\n", res.InsertedCount)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON array of events, - for stdin")
	return cmd
}
