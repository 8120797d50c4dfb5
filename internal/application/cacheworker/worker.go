package cacheworker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-events-sync/internal/domain"
)

// State is the lifecycle position of a worker.
type State int

const (
	Parsed State = iota
	Installing
	Waiting
	Active
	Redundant
)

func (s State) String() string {
	switch s {
	case Parsed:
		return "parsed"
	case Installing:
		return "installing"
	case Waiting:
		return "waiting"
	case Active:
		return "active"
	case Redundant:
		return "redundant"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultPrecache is the app shell fetched at install time.
var DefaultPrecache = []string{"/", "/offline", "/api/events", "/favicon.ico"}

type Config struct {
	// Version names the cache this worker owns. Caches with any other name
	// are deleted on activation.
	Version    string
	Origin     string
	Precache   []string
	OfflineURL string
	DataPrefix string
	// ListURL is served for any filtered variant of itself (same path,
	// other query) when both the network and the exact cache entry miss.
	ListURL string
	// NetworkTimeout bounds network-first fetches. Zero disables it.
	NetworkTimeout time.Duration
}

// DefaultConfig returns the stock configuration for origin.
func DefaultConfig(origin string) Config {
	return Config{
		Version:        "events-app-v1",
		Origin:         origin,
		Precache:       DefaultPrecache,
		OfflineURL:     "/offline",
		DataPrefix:     "/api/",
		ListURL:        "/api/events",
		NetworkTimeout: 3 * time.Second,
	}
}

// Storage is the named response cache of a profile.
type Storage interface {
	Caches(ctx context.Context) ([]string, error)
	DeleteCache(ctx context.Context, name string) error
	Put(ctx context.Context, cacheName string, e *domain.CacheEntry) error
	Match(ctx context.Context, cacheName, method, url string) (*domain.CacheEntry, error)
}

type Options struct {
	Logger   *slog.Logger
	Notifier Notifier
	Clients  Clients
}

// Worker intercepts every request a page makes and answers from the network
// or the cache.
type Worker struct {
	cfg      Config
	origin   *url.URL
	store    Storage
	next     http.RoundTripper
	notifier Notifier
	clients  Clients
	log      *slog.Logger

	mu    sync.Mutex
	state State

	bg sync.WaitGroup
}

func New(cfg Config, store Storage, next http.RoundTripper, opts Options) (*Worker, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("worker origin %q: %w", cfg.Origin, domain.ErrBadRequest)
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("worker version required: %w", domain.ErrBadRequest)
	}
	if cfg.DataPrefix == "" {
		cfg.DataPrefix = "/api/"
	}
	if next == nil {
		next = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{
		cfg:      cfg,
		origin:   origin,
		store:    store,
		next:     next,
		notifier: opts.Notifier,
		clients:  opts.Clients,
		log:      opts.Logger.With("component", "cache-worker", "version", cfg.Version),
	}, nil
}

func (w *Worker) Version() string { return w.cfg.Version }

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) transition(from, to State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		return fmt.Errorf("worker is %s, want %s: %w", w.state, from, domain.ErrConflict)
	}
	w.state = to
	return nil
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Install stores the app shell in the versioned cache. Any failure makes the
// worker redundant.
func (w *Worker) Install(ctx context.Context) error {
	if err := w.transition(Parsed, Installing); err != nil {
		return err
	}
	for _, p := range w.cfg.Precache {
		if err := w.precache(ctx, p); err != nil {
			w.setState(Redundant)
			w.log.Error("install failed", "url", p, "err", err)
			return fmt.Errorf("install %s: %w", w.cfg.Version, err)
		}
	}
	w.setState(Waiting)
	w.log.Info("installed", "entries", len(w.cfg.Precache))
	return nil
}

func (w *Worker) precache(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.resolve(path), nil)
	if err != nil {
		return err
	}
	e, err := w.fetch(req, 0)
	if err != nil {
		return err
	}
	if !isOK(e.Status) {
		return fmt.Errorf("precache %s: status %d", path, e.Status)
	}
	return w.store.Put(ctx, w.cfg.Version, e)
}

// Activate deletes every cache that does not belong to this version.
func (w *Worker) Activate(ctx context.Context) error {
	if err := w.transition(Waiting, Active); err != nil {
		return err
	}
	names, err := w.store.Caches(ctx)
	if err != nil {
		w.setState(Redundant)
		return fmt.Errorf("activate %s: %w", w.cfg.Version, err)
	}
	for _, name := range names {
		if name == w.cfg.Version {
			continue
		}
		if err := w.store.DeleteCache(ctx, name); err != nil {
			w.log.Warn("failed to delete old cache", "cache", name, "err", err)
			continue
		}
		w.log.Info("deleted old cache", "cache", name)
	}
	return nil
}

// Settle waits for background revalidations to finish.
func (w *Worker) Settle() { w.bg.Wait() }

func (w *Worker) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return w.origin.ResolveReference(ref).String()
}
