package cacheworker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
)

// Registration tracks which worker controls the pages of a profile.
type Registration struct {
	next http.RoundTripper
	log  *slog.Logger

	mu         sync.Mutex
	controller *Worker
	listeners  map[int]func()
	nextID     int
}

func NewRegistration(network http.RoundTripper, logger *slog.Logger) *Registration {
	if network == nil {
		network = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registration{
		next:      network,
		log:       logger.With("component", "worker-registration"),
		listeners: make(map[int]func()),
	}
}

// Register installs and activates w, then makes it the controller of every
// page. A failed install leaves the current controller in place.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	if err := w.Activate(ctx); err != nil {
		return err
	}
	r.claim(w)
	return nil
}

// Resume makes w the controller without installing it, provided the store
// still holds its cache from an earlier run. It reports whether w took over.
func (r *Registration) Resume(ctx context.Context, w *Worker) (bool, error) {
	names, err := w.store.Caches(ctx)
	if err != nil {
		return false, fmt.Errorf("resume %s: %w", w.Version(), err)
	}
	if !slices.Contains(names, w.Version()) {
		return false, nil
	}
	if err := w.transition(Parsed, Waiting); err != nil {
		return false, err
	}
	if err := w.Activate(ctx); err != nil {
		return false, err
	}
	r.claim(w)
	return true, nil
}

func (r *Registration) claim(w *Worker) {
	r.mu.Lock()
	prev := r.controller
	r.controller = w
	fns := make([]func(), 0, len(r.listeners))
	for id := 0; id < r.nextID; id++ {
		if fn, ok := r.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	r.mu.Unlock()

	if prev != nil && prev != w {
		prev.setState(Redundant)
	}
	r.log.Info("controller changed", "version", w.Version())
	for _, fn := range fns {
		fn()
	}
}

// Controller returns the active worker, or nil.
func (r *Registration) Controller() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controller
}

// OnControllerChange registers fn to run whenever a new worker takes over.
func (r *Registration) OnControllerChange(fn func()) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// RoundTrip routes through the controller, or straight to the network when
// no worker is active.
func (r *Registration) RoundTrip(req *http.Request) (*http.Response, error) {
	if c := r.Controller(); c != nil && c.State() == Active {
		return c.RoundTrip(req)
	}
	return r.next.RoundTrip(req)
}

// ReloadOnce guards a reload so a burst of controller changes triggers it
// at most once.
func ReloadOnce(reload func()) func() {
	var once sync.Once
	return func() { once.Do(reload) }
}
