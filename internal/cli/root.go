// Package cli is the eventsync command line: a terminal stand-in for one
// browser profile with any number of open pages.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-events-sync/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("EVENTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := config.LoadClient()
	rootCmd := &cobra.Command{
		Use:           "eventsync",
		Short:         "eventsync: offline-capable, multi-tab events client",
		Long:          "eventsync keeps a local event list in sync with the events server across simulated tabs, serves reads from a versioned cache when the network is down and records notifications in a persistent profile.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	f := rootCmd.PersistentFlags()
	f.String(flagServerURL, defaults.ServerURL, "events server base URL")
	f.String(flagProfile, defaults.ProfilePath, "sqlite file holding the cache and notifications")
	f.String(flagToken, "", "bearer token used for mutations")
	f.String(flagCacheVersion, defaults.CacheVersion, "name of the response cache")
	f.Duration(flagNetworkTimeout, defaults.NetworkTimeout, "network-first timeout for data requests")
	f.Duration(flagReconnectDelay, defaults.ReconnectDelay, "delay between push reconnect attempts")
	f.Bool(flagResync, defaults.ResyncOnReconnect, "reload the list when the push channel reconnects")
	f.Int(flagNotificationCap, defaults.NotificationCap, "notifications kept in the profile")
	f.String(flagSocketPath, "/api/socket", "push endpoint path on the server")
	f.Bool(flagVerbose, false, "log at debug level")
	_ = v.BindPFlags(f)

	a := &app{v: v}
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		level := slog.LevelWarn
		if v.GetBool(flagVerbose) {
			level = slog.LevelDebug
		}
		a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	}

	rootCmd.AddCommand(
		newWatchCmd(a),
		newEventsCmd(a),
		newNotificationsCmd(a),
		newPushCmd(a),
	)
	return rootCmd
}
