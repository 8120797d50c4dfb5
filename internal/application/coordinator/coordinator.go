package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-events-sync/internal/domain"
)

// LocalChannel is the same-profile channel shared by the pages.
type LocalChannel interface {
	Publish(msg domain.LocalMessage)
	Subscribe(h func(domain.LocalMessage)) func()
}

// PushChannel is the server push connection.
type PushChannel interface {
	Subscribe(fn func(domain.ChannelMessage)) func()
	OnStatus(fn func(connected bool)) func()
	Connected() bool
}

// Notifier records user-facing notifications.
type Notifier interface {
	Add(title, message string) domain.Notification
}

// EventsAPI is the server the coordinator reads from and mutates through.
type EventsAPI interface {
	GetEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error)
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	Create(ctx context.Context, in domain.EventInput) (*domain.Event, error)
	Update(ctx context.Context, id string, in domain.EventInput) (*domain.Event, error)
	Delete(ctx context.Context, id string) (*domain.Tombstone, error)
	Import(ctx context.Context, in []domain.EventInput) (*domain.ImportResult, error)
}

type Options struct {
	// Origin identifies this page in the messages it causes.
	Origin string
	// ResyncOnReconnect reloads the list whenever the push channel comes
	// back after a disconnect.
	ResyncOnReconnect bool
	Logger            *slog.Logger
}

type Deps struct {
	Local         LocalChannel
	Push          PushChannel
	Notifications Notifier
	API           EventsAPI
}

// Coordinator owns the event list of one page and keeps it consistent with
// the local channel, the push channel and the page's own mutations.
type Coordinator struct {
	opts Options
	deps Deps
	log  *slog.Logger

	mu        sync.Mutex
	ctx       context.Context
	events    []domain.Event
	revs      map[string]int64
	filter    domain.EventFilter
	listeners map[int]func([]domain.Event)
	nextID    int
	unsub     []func()
	wasUp     bool
}

func New(opts Options, deps Deps) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		opts:      opts,
		deps:      deps,
		log:       opts.Logger.With("component", "coordinator", "origin", opts.Origin),
		ctx:       context.Background(),
		revs:      make(map[string]int64),
		listeners: make(map[int]func([]domain.Event)),
	}
}

// Start subscribes to both channels. Either may be nil.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	var unsub []func()
	if c.deps.Local != nil {
		unsub = append(unsub, c.deps.Local.Subscribe(c.onLocal))
	}
	if c.deps.Push != nil {
		unsub = append(unsub, c.deps.Push.Subscribe(c.onPush), c.deps.Push.OnStatus(c.onStatus))
		c.mu.Lock()
		c.wasUp = c.deps.Push.Connected()
		c.mu.Unlock()
	}
	c.mu.Lock()
	c.unsub = append(c.unsub, unsub...)
	c.mu.Unlock()
}

// Stop drops every subscription made by Start.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	for _, fn := range unsub {
		fn()
	}
}

// Load replaces the list with a fresh server snapshot. Entities this page
// already holds at a newer revision keep the newer copy; tombstoned ones stay
// gone.
func (c *Coordinator) Load(ctx context.Context, f domain.EventFilter) error {
	fetched, err := c.deps.API.GetEvents(ctx, f)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	c.mu.Lock()
	c.filter = f
	current := make(map[string]domain.Event, len(c.events))
	for _, e := range c.events {
		current[e.EventID] = e
	}
	list := make([]domain.Event, 0, len(fetched))
	for _, e := range fetched {
		if held, ok := c.revs[e.EventID]; ok && held > e.Revision {
			if cur, ok := current[e.EventID]; ok {
				list = append(list, cur)
			}
			continue
		}
		c.revs[e.EventID] = e.Revision
		list = append(list, e)
	}
	c.events = list
	snap, fns := c.changedLocked()
	c.mu.Unlock()
	c.fire(fns, snap)
	return nil
}

// Events returns a snapshot of the list.
func (c *Coordinator) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.events...)
}

// Get returns the held copy of an event.
func (c *Coordinator) Get(id string) (domain.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.events[i], true
	}
	return domain.Event{}, false
}

// Connected reports the push channel status.
func (c *Coordinator) Connected() bool {
	return c.deps.Push != nil && c.deps.Push.Connected()
}

// OnChange registers fn to receive the list after every accepted change.
func (c *Coordinator) OnChange(fn func([]domain.Event)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) onLocal(lm domain.LocalMessage) {
	m, notice, err := lm.Decode()
	if err != nil {
		c.log.Warn("dropping local message", "type", lm.Type, "err", err)
		return
	}
	if notice != nil {
		c.onImport(*notice)
		return
	}
	c.receive(m)
}

func (c *Coordinator) onPush(m domain.ChannelMessage) { c.receive(m) }

func (c *Coordinator) onStatus(up bool) {
	c.mu.Lock()
	reconnect := up && !c.wasUp
	c.wasUp = up
	ctx, f := c.ctx, c.filter
	c.mu.Unlock()
	c.log.Info("push status", "connected", up)
	if !reconnect || !c.opts.ResyncOnReconnect {
		return
	}
	go func() {
		if err := c.Load(ctx, f); err != nil {
			c.log.Warn("resync failed", "err", err)
		}
	}()
}

func (c *Coordinator) onImport(n domain.ImportNotice) {
	c.mu.Lock()
	ctx, f := c.ctx, c.filter
	c.mu.Unlock()
	if err := c.Load(ctx, f); err != nil {
		c.log.Warn("reload after import failed", "err", err)
	}
	c.notify("Events imported", importMessage(n.Count))
}

// receive applies a message from either channel. Messages this page caused
// were already notified on the commit path.
func (c *Coordinator) receive(m domain.ChannelMessage) {
	label, ok := c.apply(m)
	if !ok {
		c.log.Debug("ignoring stale message", "kind", m.Kind(), "id", m.EntityID(), "revision", m.Rev())
		return
	}
	if m.Source() != "" && m.Source() == c.opts.Origin {
		return
	}
	c.notify(notification(m, label))
}

// apply mutates the list when m is newer than what the page holds. It
// returns the display label of the entity and whether m was accepted.
func (c *Coordinator) apply(m domain.ChannelMessage) (string, bool) {
	c.mu.Lock()
	id, rev := m.EntityID(), m.Rev()
	if rev <= 0 || rev <= c.revs[id] {
		c.mu.Unlock()
		return "", false
	}
	c.revs[id] = rev
	i := c.indexLocked(id)
	var label string
	switch v := m.(type) {
	case domain.Created:
		label = v.Event.DisplayTitle()
		if i >= 0 {
			c.events[i] = v.Event
		} else {
			c.events = append([]domain.Event{v.Event}, c.events...)
		}
	case domain.Updated:
		label = v.Event.DisplayTitle()
		if i >= 0 {
			c.events[i] = v.Event
		}
	case domain.Deleted:
		label = id
		if i >= 0 {
			label = c.events[i].DisplayTitle()
			c.events = append(c.events[:i:i], c.events[i+1:]...)
		}
	}
	snap, fns := c.changedLocked()
	c.mu.Unlock()
	c.fire(fns, snap)
	return label, true
}

func (c *Coordinator) indexLocked(id string) int {
	for i := range c.events {
		if c.events[i].EventID == id {
			return i
		}
	}
	return -1
}

func (c *Coordinator) changedLocked() ([]domain.Event, []func([]domain.Event)) {
	if len(c.listeners) == 0 {
		return nil, nil
	}
	fns := make([]func([]domain.Event), 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	return append([]domain.Event(nil), c.events...), fns
}

func (c *Coordinator) fire(fns []func([]domain.Event), snap []domain.Event) {
	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Coordinator) notify(title, message string) {
	if c.deps.Notifications == nil {
		return
	}
	c.deps.Notifications.Add(title, message)
}

func notification(m domain.ChannelMessage, label string) (string, string) {
	switch m.Kind() {
	case domain.KindCreated:
		return "New event", fmt.Sprintf("%q has been added to the events list.", label)
	case domain.KindUpdated:
		return "Event updated", fmt.Sprintf("%q was updated.", label)
	default:
		return "Event deleted", fmt.Sprintf("%q was removed.", label)
	}
}

func importMessage(n int) string {
	if n == 1 {
		return "1 event imported."
	}
	return fmt.Sprintf("%d events imported.", n)
}
