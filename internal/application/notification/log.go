package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/go-events-sync/internal/domain"
	"github.com/google/uuid"
)

// StorageKey is the durable key the whole log is written under.
const StorageKey = "notifications"

// DefaultCap is the retention count.
const DefaultCap = 50

// KeyValue is the durable per-profile storage the log persists to.
type KeyValue interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
}

// Options tunes a Log. Zero values select the defaults.
type Options struct {
	Cap    int
	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

// Log is a bounded, persisted, newest-first list of notifications.
// Each page holds its own Log over the shared storage. Every mutation
// rewrites the full list, so the last page to write wins.
type Log struct {
	mu        sync.Mutex
	kv        KeyValue
	items     []domain.Notification
	cap       int
	now       func() time.Time
	newID     func() string
	log       *slog.Logger
	listeners map[int]func([]domain.Notification)
	nextID    int
}

// Open hydrates a Log from kv. Stored data that does not decode is dropped
// and the log starts empty.
func Open(ctx context.Context, kv KeyValue, opts Options) *Log {
	l := &Log{
		kv:        kv,
		cap:       opts.Cap,
		now:       opts.Now,
		newID:     opts.NewID,
		log:       opts.Logger,
		listeners: make(map[int]func([]domain.Notification)),
	}
	if l.cap <= 0 {
		l.cap = DefaultCap
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	if l.log == nil {
		l.log = slog.Default()
	}

	raw, ok, err := kv.GetItem(ctx, StorageKey)
	if err != nil {
		l.log.Warn("could not load notifications", "err", err)
		return l
	}
	if !ok {
		return l
	}
	var stored []domain.Notification
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		l.log.Warn("discarding malformed notifications", "err", err)
		return l
	}
	if len(stored) > l.cap {
		stored = stored[:l.cap]
	}
	l.items = stored
	return l
}

// Add records a new unread notification at the head of the log.
func (l *Log) Add(title, message string) domain.Notification {
	n := domain.Notification{
		ID:        l.newID(),
		Title:     title,
		Message:   message,
		Timestamp: l.now().UnixMilli(),
	}
	l.mu.Lock()
	items := make([]domain.Notification, 0, len(l.items)+1)
	items = append(items, n)
	items = append(items, l.items...)
	if len(items) > l.cap {
		items = items[:l.cap]
	}
	l.items = items
	l.persistLocked()
	return n
}

// MarkRead flips the read flag of id. It reports whether id was found.
func (l *Log) MarkRead(id string) bool {
	l.mu.Lock()
	found := false
	for i := range l.items {
		if l.items[i].ID == id {
			l.items[i].Read = true
			found = true
			break
		}
	}
	if !found {
		l.mu.Unlock()
		return false
	}
	l.persistLocked()
	return true
}

// ClearAll empties the log.
func (l *Log) ClearAll() {
	l.mu.Lock()
	l.items = nil
	l.persistLocked()
}

// List returns a copy of the log, newest first.
func (l *Log) List() []domain.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// UnreadCount returns how many entries are unread.
func (l *Log) UnreadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, it := range l.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// OnChange registers fn to be called with a snapshot after every mutation.
// The returned func removes it.
func (l *Log) OnChange(fn func([]domain.Notification)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

func (l *Log) snapshotLocked() []domain.Notification {
	out := make([]domain.Notification, len(l.items))
	copy(out, l.items)
	return out
}

// persistLocked writes the list, releases l.mu and notifies listeners.
// The write happens under the lock so a page's own writes land in order.
func (l *Log) persistLocked() {
	snap := l.snapshotLocked()
	b, err := json.Marshal(snap)
	if err == nil {
		err = l.kv.SetItem(context.Background(), StorageKey, string(b))
	}
	listeners := make([]func([]domain.Notification), 0, len(l.listeners))
	for id := 0; id < l.nextID; id++ {
		if fn, ok := l.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	l.mu.Unlock()

	if err != nil {
		l.log.Warn("could not persist notifications", "err", err)
	}
	for _, fn := range listeners {
		fn(snap)
	}
}
