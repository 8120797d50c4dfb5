package cacheworker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-events-sync/internal/domain"
)

// Notifier shows an OS-level notification.
type Notifier interface {
	Show(ctx context.Context, p domain.PushPayload) error
}

// Window is an open page of the app.
type Window struct {
	ID  string
	URL string
}

// Clients gives the worker access to the open pages.
type Clients interface {
	Windows(ctx context.Context) ([]Window, error)
	Focus(ctx context.Context, id string) error
	OpenWindow(ctx context.Context, url string) error
}

// Push shows the notification carried by a push message. Empty messages are
// ignored.
func (w *Worker) Push(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var p domain.PushPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode push payload: %w", domain.ErrBadRequest)
	}
	p = p.WithDefaults()
	if w.notifier == nil {
		w.log.Debug("no notifier, dropping push", "title", p.Title)
		return nil
	}
	return w.notifier.Show(ctx, p)
}

// NotificationClick focuses the page already showing the notification's URL
// or opens a new one.
func (w *Worker) NotificationClick(ctx context.Context, p domain.PushPayload) error {
	if w.clients == nil {
		return nil
	}
	target := w.resolve(p.WithDefaults().URL)
	wins, err := w.clients.Windows(ctx)
	if err != nil {
		return fmt.Errorf("list windows: %w", err)
	}
	for _, win := range wins {
		if w.resolve(win.URL) == target {
			return w.clients.Focus(ctx, win.ID)
		}
	}
	return w.clients.OpenWindow(ctx, target)
}
