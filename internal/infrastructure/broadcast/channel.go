// Package broadcast is the same-origin, cross-page publish/subscribe fabric.
// A Bus stands for one browser profile; every page opens its own Channel
// handles on it by name. Messages never leave the process.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/go-events-sync/internal/domain"
)

// EventsChannel is the conventional channel name for event mutations.
const EventsChannel = "events-channel"

// Handler receives one message per delivery.
type Handler func(domain.LocalMessage)

// Bus routes published messages between channel handles of the same name.
// A nil *Bus models a platform without the primitive: handles opened on it
// never deliver anything and publishing is a no-op.
type Bus struct {
	mu       sync.RWMutex
	channels map[string]map[*Channel]struct{}
	log      *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{channels: make(map[string]map[*Channel]struct{}), log: logger}
}

// Open returns a new handle for the named channel. The handle attaches to the
// bus on first Subscribe.
func (b *Bus) Open(name string) *Channel {
	c := &Channel{bus: b, name: name}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (b *Bus) attach(c *Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.channels[c.name]
	if !ok {
		set = make(map[*Channel]struct{})
		b.channels[c.name] = set
	}
	set[c] = struct{}{}
}

func (b *Bus) detach(c *Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.channels[c.name]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(b.channels, c.name)
		}
	}
}

func (b *Bus) deliver(from *Channel, raw []byte) {
	b.mu.RLock()
	targets := make([]*Channel, 0, len(b.channels[from.name]))
	for c := range b.channels[from.name] {
		if c != from {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(raw)
	}
}

// Channel is one page's handle on a named channel.
type Channel struct {
	bus  *Bus
	name string

	mu       sync.Mutex
	cond     *sync.Cond
	queue    [][]byte
	handlers map[int]Handler
	nextID   int
	attached bool
	closed   bool
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Publish sends msg to every other handle of the same name. It never blocks
// on receivers and never delivers to c itself.
func (c *Channel) Publish(msg domain.LocalMessage) {
	if c.bus == nil {
		return
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	// Receivers decode their own copy.
	raw, err := json.Marshal(msg)
	if err != nil {
		c.bus.log.Warn("dropping unencodable broadcast", "channel", c.name, "err", err)
		return
	}
	c.bus.deliver(c, raw)
}

// Subscribe registers h. Messages are handed to h in publish order on the
// handle's delivery goroutine. The returned func removes h.
func (c *Channel) Subscribe(h func(domain.LocalMessage)) (unsubscribe func()) {
	if c.bus == nil {
		return func() {}
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	if c.handlers == nil {
		c.handlers = make(map[int]Handler)
	}
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	start := !c.attached
	c.attached = true
	c.mu.Unlock()

	if start {
		c.bus.attach(c)
		go c.run()
	}
	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

// Close detaches the handle and stops delivery. Queued messages are dropped.
func (c *Channel) Close() {
	if c.bus == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.queue = nil
	attached := c.attached
	c.cond.Broadcast()
	c.mu.Unlock()
	if attached {
		c.bus.detach(c)
	}
}

func (c *Channel) enqueue(raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.queue = append(c.queue, raw)
	c.cond.Signal()
}

func (c *Channel) run() {
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		raw := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		handlers := make([]Handler, 0, len(c.handlers))
		for i := 0; i < c.nextID; i++ {
			if h, ok := c.handlers[i]; ok {
				handlers = append(handlers, h)
			}
		}
		c.mu.Unlock()

		for _, h := range handlers {
			var msg domain.LocalMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				c.bus.log.Warn("dropping undecodable broadcast", "channel", c.name, "err", err)
				continue
			}
			h(msg)
		}
	}
}
