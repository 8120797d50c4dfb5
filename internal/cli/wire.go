package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-events-sync/internal/application/cacheworker"
	"github.com/go-events-sync/internal/application/coordinator"
	"github.com/go-events-sync/internal/application/notification"
	"github.com/go-events-sync/internal/config"
	"github.com/go-events-sync/internal/domain"
	"github.com/go-events-sync/internal/infrastructure/api"
	"github.com/go-events-sync/internal/infrastructure/broadcast"
	"github.com/go-events-sync/internal/infrastructure/push"
	"github.com/go-events-sync/internal/infrastructure/sqlite"
	"github.com/go-events-sync/internal/pkg/token"
	"github.com/spf13/viper"
)

const (
	flagServerURL       = "server-url"
	flagProfile         = "profile"
	flagToken           = "token"
	flagCacheVersion    = "cache-version"
	flagNetworkTimeout  = "network-timeout"
	flagReconnectDelay  = "reconnect-delay"
	flagResync          = "resync-on-reconnect"
	flagNotificationCap = "notification-cap"
	flagSocketPath      = "socket-path"
	flagVerbose         = "verbose"
)

type app struct {
	v      *viper.Viper
	logger *slog.Logger
}

type settings struct {
	config.ClientConfig
	Token      string
	SocketPath string
}

func (a *app) settings() settings {
	return settings{
		ClientConfig: config.ClientConfig{
			ServerURL:         a.v.GetString(flagServerURL),
			ProfilePath:       a.v.GetString(flagProfile),
			CacheVersion:      a.v.GetString(flagCacheVersion),
			NetworkTimeout:    a.v.GetDuration(flagNetworkTimeout),
			ReconnectDelay:    a.v.GetDuration(flagReconnectDelay),
			ResyncOnReconnect: a.v.GetBool(flagResync),
			NotificationCap:   a.v.GetInt(flagNotificationCap),
		},
		Token:      a.v.GetString(flagToken),
		SocketPath: a.v.GetString(flagSocketPath),
	}
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}

// profile is one browser profile: shared storage, the worker registration
// and the local channel bus.
type profile struct {
	cfg    settings
	store  *sqlite.Profile
	reg    *cacheworker.Registration
	worker *cacheworker.Worker
	bus    *broadcast.Bus
	log    *slog.Logger
}

// openProfile wires a profile. The worker takes over from its cache of an
// earlier run when there is one, otherwise it installs; a failed install
// leaves requests going straight to the network.
func (a *app) openProfile(ctx context.Context, out io.Writer) (*profile, error) {
	cfg := a.settings()
	logger := a.log()

	store, err := sqlite.Open(cfg.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}

	worker, err := newWorker(cfg, store, out, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	reg := cacheworker.NewRegistration(http.DefaultTransport, logger)
	resumed, err := reg.Resume(ctx, worker)
	if err != nil {
		logger.Warn("resume worker failed", "err", err)
	}
	if !resumed && err == nil {
		if err := reg.Register(ctx, worker); err != nil {
			logger.Warn("worker install failed, using network only", "err", err)
		}
	}

	return &profile{
		cfg:    cfg,
		store:  store,
		reg:    reg,
		worker: worker,
		bus:    broadcast.NewBus(logger),
		log:    logger,
	}, nil
}

func newWorker(cfg settings, store cacheworker.Storage, out io.Writer, logger *slog.Logger) (*cacheworker.Worker, error) {
	wcfg := cacheworker.DefaultConfig(cfg.ServerURL)
	wcfg.Version = cfg.CacheVersion
	wcfg.NetworkTimeout = cfg.NetworkTimeout
	return cacheworker.New(wcfg, store, http.DefaultTransport, cacheworker.Options{
		Logger:   logger,
		Notifier: terminalNotifier{out: out},
		Clients:  terminalClients{out: out},
	})
}

// openNotes opens only the profile storage and its notification log.
func (a *app) openNotes(ctx context.Context) (*sqlite.Profile, *notification.Log, error) {
	cfg := a.settings()
	store, err := sqlite.Open(cfg.ProfilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open profile: %w", err)
	}
	return store, notification.Open(ctx, store, notification.Options{Cap: cfg.NotificationCap, Logger: a.log()}), nil
}

func (p *profile) Close() error {
	p.worker.Settle()
	return p.store.Close()
}

// page is one open tab: its own id, API client, push socket, local channel
// handle, notification log and coordinator.
type page struct {
	id    string
	api   *api.Client
	coord *coordinator.Coordinator
	push  *push.Client
	local *broadcast.Channel
	notes *notification.Log

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// openPage creates a page. Only live pages get a push client.
func (p *profile) openPage(ctx context.Context, live bool) (*page, error) {
	id, err := token.NewClientID()
	if err != nil {
		return nil, err
	}
	client := api.NewClient(api.Options{
		BaseURL:   p.cfg.ServerURL,
		Token:     p.cfg.Token,
		Origin:    id,
		Transport: p.reg,
		Timeout:   p.cfg.NetworkTimeout + 10*time.Second,
	})
	logger := p.log.With("page", id)

	pg := &page{
		id:    id,
		api:   client,
		local: p.bus.Open(broadcast.EventsChannel),
		notes: notification.Open(ctx, p.store, notification.Options{Cap: p.cfg.NotificationCap, Logger: logger}),
	}
	deps := coordinator.Deps{Local: pg.local, Notifications: pg.notes, API: client}
	if live {
		socketURL, err := push.SocketURL(p.cfg.ServerURL, p.cfg.SocketPath)
		if err != nil {
			return nil, err
		}
		pg.push = push.NewClient(push.ClientOptions{
			URL:            socketURL,
			ReconnectDelay: p.cfg.ReconnectDelay,
			Logger:         logger,
		})
		deps.Push = pg.push
	}
	pg.coord = coordinator.New(coordinator.Options{
		Origin:            id,
		ResyncOnReconnect: p.cfg.ResyncOnReconnect,
		Logger:            logger,
	}, deps)

	pg.ctx, pg.cancel = context.WithCancel(ctx)
	pg.coord.Start(pg.ctx)
	return pg, nil
}

// connect starts the push socket. Callers register their status listeners
// and load the list first.
func (pg *page) connect() {
	if pg.push == nil {
		return
	}
	pg.wg.Add(1)
	go func() {
		defer pg.wg.Done()
		_ = pg.push.Run(pg.ctx)
	}()
}

func (pg *page) Close() {
	pg.coord.Stop()
	pg.cancel()
	pg.wg.Wait()
	pg.local.Close()
}

// terminalNotifier shows OS notifications as lines on out.
type terminalNotifier struct{ out io.Writer }

func (n terminalNotifier) Show(_ context.Context, p domain.PushPayload) error {
	_, err := fmt.Fprintf(n.out, "[push] %s: %s (%s)\n", p.Title, p.Body, p.URL)
	return err
}

// terminalClients has no windows of its own; opening one is reported on out.
type terminalClients struct{ out io.Writer }

func (terminalClients) Windows(context.Context) ([]cacheworker.Window, error) { return nil, nil }

func (c terminalClients) Focus(_ context.Context, id string) error {
	_, err := fmt.Fprintf(c.out, "focus %s\n", id)
	return err
}

func (c terminalClients) OpenWindow(_ context.Context, url string) error {
	_, err := fmt.Fprintf(c.out, "open %s\n", url)
	return err
}
