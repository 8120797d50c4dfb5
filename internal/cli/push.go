package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-events-sync/internal/domain"
	"github.com/go-events-sync/internal/infrastructure/sqlite"
	"github.com/spf13/cobra"
)

func newPushCmd(a *app) *cobra.Command {
	var click bool
	cmd := &cobra.Command{
		Use:   "push [PAYLOAD]",
		Short: "Deliver a push message to the worker as the OS would",
		Long:  "push hands a JSON payload ({title, body, icon, url}) to the cache worker, which shows it as a notification. With --click the notification is then clicked. Without PAYLOAD the payload is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) == 1 {
				data = []byte(args[0])
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
				data = b
			}

			cfg := a.settings()
			store, err := sqlite.Open(cfg.ProfilePath)
			if err != nil {
				return fmt.Errorf("open profile: %w", err)
			}
			defer store.Close()
			w, err := newWorker(cfg, store, cmd.OutOrStdout(), a.log())
			if err != nil {
				return err
			}

			if err := w.Push(cmd.Context(), data); err != nil {
				return err
			}
			if !click || len(data) == 0 {
				return nil
			}
			var p domain.PushPayload
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}
			return w.NotificationClick(cmd.Context(), p)
		},
	}
	cmd.Flags().BoolVar(&click, "click", false, "click the notification after showing it")
	return cmd
}
