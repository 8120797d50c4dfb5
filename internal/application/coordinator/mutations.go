package coordinator

import (
	"context"
	"fmt"

	"github.com/go-events-sync/internal/domain"
)

func (c *Coordinator) Create(ctx context.Context, in domain.EventInput) (*domain.Event, error) {
	ev, err := c.deps.API.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	c.commit(domain.NewCreated(*ev, c.opts.Origin), ev.DisplayTitle())
	return ev, nil
}

func (c *Coordinator) Update(ctx context.Context, id string, in domain.EventInput) (*domain.Event, error) {
	ev, err := c.deps.API.Update(ctx, id, in)
	if err != nil {
		return nil, fmt.Errorf("update event %s: %w", id, err)
	}
	c.commit(domain.NewUpdated(*ev, c.opts.Origin), ev.DisplayTitle())
	return ev, nil
}

func (c *Coordinator) Delete(ctx context.Context, id string) error {
	label := id
	if ev, ok := c.Get(id); ok {
		label = ev.DisplayTitle()
	}
	ts, err := c.deps.API.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	c.commit(domain.NewDeleted(ts.EventID, ts.Revision, c.opts.Origin), label)
	return nil
}

// Import sends a batch to the server, reloads the list and tells the other
// pages to do the same.
func (c *Coordinator) Import(ctx context.Context, in []domain.EventInput) (*domain.ImportResult, error) {
	res, err := c.deps.API.Import(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("import events: %w", err)
	}
	c.mu.Lock()
	f := c.filter
	c.mu.Unlock()
	if err := c.Load(ctx, f); err != nil {
		c.log.Warn("reload after import failed", "err", err)
	}
	if c.deps.Local != nil {
		c.deps.Local.Publish(domain.ImportToLocal(domain.ImportNotice{Count: res.InsertedCount, Origin: c.opts.Origin}))
	}
	c.notify("Events imported", importMessage(res.InsertedCount))
	return res, nil
}

// commit applies an acknowledged mutation, shares it with the other pages
// and records exactly one notification for it. The push echo that follows
// is dropped by the revision check.
func (c *Coordinator) commit(m domain.ChannelMessage, label string) {
	c.apply(m)
	if c.deps.Local != nil {
		c.deps.Local.Publish(domain.ToLocal(m))
	}
	c.notify(notification(m, label))
}
