package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-events-sync/internal/domain"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		tabs     int
		duration time.Duration
		ff       filterFlags
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open tabs that stay in sync and print every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tabs < 1 {
				return fmt.Errorf("--tabs must be at least 1")
			}
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			out := &lockedWriter{w: cmd.OutOrStdout()}

			prof, err := a.openProfile(ctx, out)
			if err != nil {
				return err
			}
			defer prof.Close()

			pages := make([]*page, 0, tabs)
			defer func() {
				for _, pg := range pages {
					pg.Close()
				}
			}()
			for i := 0; i < tabs; i++ {
				pg, err := prof.openPage(ctx, true)
				if err != nil {
					return err
				}
				pages = append(pages, pg)

				label := fmt.Sprintf("tab %d", i+1)
				printNewNotifications(pg, label, out)
				pg.coord.OnChange(func(events []domain.Event) {
					fmt.Fprintf(out, "%s: %d events\n", label, len(events))
				})
				pg.push.OnStatus(func(up bool) {
					state := "offline"
					if up {
						state = "online"
					}
					fmt.Fprintf(out, "%s: %s\n", label, state)
				})
				if err := pg.coord.Load(ctx, ff.filter()); err != nil {
					fmt.Fprintf(out, "%s: load failed: %v\n", label, err)
				}
				pg.connect()
			}
			if err := printEvents(out, pages[0].coord.Events()); err != nil {
				return err
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().IntVar(&tabs, "tabs", 2, "number of tabs to open")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	ff.register(cmd)
	return cmd
}

// printNewNotifications prints every notification pg adds to its own log.
func printNewNotifications(pg *page, label string, out io.Writer) {
	var (
		mu   sync.Mutex
		last string
	)
	pg.notes.OnChange(func(list []domain.Notification) {
		mu.Lock()
		defer mu.Unlock()
		if len(list) == 0 || list[0].ID == last {
			return
		}
		last = list[0].ID
		fmt.Fprintf(out, "%s: notification: %s: %s\n", label, list[0].Title, list[0].Message)
	})
}
