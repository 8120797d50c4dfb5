package event

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-events-sync/internal/domain"
	"github.com/go-events-sync/internal/pkg/id"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldLocation    = "location"
	fieldStartDate   = "start_date"
	fieldEndDate     = "end_date"
	fieldCategory    = "category"
	fieldImage       = "image"
	fieldCapacity    = "capacity"
	fieldUpdatedAt   = "updated_at"
)

// Service is the events use-case layer. origin is the id of the client page
// that caused a mutation and is stamped on the fan-out.
type Service interface {
	List(ctx context.Context, f domain.EventFilter) ([]domain.Event, error)
	Get(ctx context.Context, eventID string) (*domain.Event, error)
	Create(ctx context.Context, input domain.EventInput, origin string) (*domain.Event, error)
	Update(ctx context.Context, eventID string, input domain.EventInput, origin string) (*domain.Event, error)
	Delete(ctx context.Context, eventID, origin string) (*domain.Tombstone, error)
	Import(ctx context.Context, inputs []domain.EventInput, origin string) (*domain.ImportResult, error)
}

type eventStore interface {
	Put(ctx context.Context, e *domain.Event) error
	BatchPut(ctx context.Context, events []domain.Event) error
	Get(ctx context.Context, eventID string) (*domain.Event, error)
	Scan(ctx context.Context) ([]domain.Event, error)
	QueryByCategory(ctx context.Context, category string) ([]domain.Event, error)
	Update(ctx context.Context, eventID string, updates map[string]interface{}) (*domain.Event, error)
	SoftDelete(ctx context.Context, eventID string) (*domain.Tombstone, error)
}

// Emitter pushes a mutation to every connected client.
type Emitter interface {
	Emit(m domain.ChannelMessage) error
}

// PushPublisher sends an OS-level notification fan-out.
type PushPublisher interface {
	Publish(ctx context.Context, p domain.PushPayload) error
}

type service struct {
	repo eventStore
	hub  Emitter
	push PushPublisher
	now  func() time.Time
	log  *slog.Logger
}

// NewService wires the events service. hub and push may be nil.
func NewService(repo eventStore, hub Emitter, push PushPublisher, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{repo: repo, hub: hub, push: push, now: time.Now, log: logger.With("component", "events")}
}

func (s *service) List(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	var (
		events []domain.Event
		err    error
	)
	if f.Category != "" {
		events, err = s.repo.QueryByCategory(ctx, f.Category)
	} else {
		events, err = s.repo.Scan(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return applyFilter(events, f, s.now()), nil
}

// applyFilter narrows and orders a result set: upcoming lists soonest first,
// everything else newest first.
func applyFilter(events []domain.Event, f domain.EventFilter, now time.Time) []domain.Event {
	out := make([]domain.Event, 0, len(events))
	q := strings.TrimSpace(f.Query)
	for _, e := range events {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Upcoming && e.StartDate.Before(now) {
			continue
		}
		if q != "" && !e.Title.Contains(q) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.Upcoming {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].StartDate.After(out[j].StartDate)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (s *service) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	return s.repo.Get(ctx, eventID)
}

func (s *service) Create(ctx context.Context, input domain.EventInput, origin string) (*domain.Event, error) {
	e := s.newEvent(input, s.now().UTC())
	if err := s.repo.Put(ctx, &e); err != nil {
		return nil, err
	}
	s.fanout(ctx, domain.NewCreated(e, origin), domain.PushPayload{
		Title: "New event", Body: e.DisplayTitle(), URL: "/events/" + e.EventID,
	})
	return &e, nil
}

func (s *service) Update(ctx context.Context, eventID string, input domain.EventInput, origin string) (*domain.Event, error) {
	e, err := s.repo.Update(ctx, eventID, map[string]interface{}{
		fieldTitle:       input.Title,
		fieldDescription: input.Description,
		fieldLocation:    input.Location,
		fieldStartDate:   input.StartDate.UTC(),
		fieldEndDate:     input.EndDate.UTC(),
		fieldCategory:    input.Category,
		fieldImage:       input.Image,
		fieldCapacity:    input.Capacity,
		fieldUpdatedAt:   s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.fanout(ctx, domain.NewUpdated(*e, origin), domain.PushPayload{
		Title: "Event updated", Body: e.DisplayTitle(), URL: "/events/" + e.EventID,
	})
	return e, nil
}

func (s *service) Delete(ctx context.Context, eventID, origin string) (*domain.Tombstone, error) {
	ts, err := s.repo.SoftDelete(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.fanout(ctx, domain.NewDeleted(ts.EventID, ts.Revision, origin), domain.PushPayload{
		Title: "Event deleted", Body: ts.EventID,
	})
	return ts, nil
}

// Import stores a batch. Nothing goes out on the hub: the importing page
// tells the other pages of its profile to reload, and the OS fan-out gets a
// single summary.
func (s *service) Import(ctx context.Context, inputs []domain.EventInput, origin string) (*domain.ImportResult, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("nothing to import: %w", domain.ErrBadRequest)
	}
	now := s.now().UTC()
	events := make([]domain.Event, len(inputs))
	for i, in := range inputs {
		events[i] = s.newEvent(in, now)
	}
	if err := s.repo.BatchPut(ctx, events); err != nil {
		return nil, fmt.Errorf("import events: %w", err)
	}
	s.log.Info("events imported", "count", len(events), "origin", origin)
	s.publish(ctx, domain.PushPayload{
		Title: "Events imported", Body: fmt.Sprintf("%d events imported", len(events)),
	})
	return &domain.ImportResult{InsertedCount: len(events), Events: events}, nil
}

func (s *service) newEvent(in domain.EventInput, now time.Time) domain.Event {
	return domain.Event{
		EventID:     id.NewAt(now),
		Revision:    1,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		StartDate:   in.StartDate.UTC(),
		EndDate:     in.EndDate.UTC(),
		Category:    in.Category,
		Image:       in.Image,
		Capacity:    in.Capacity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// fanout is best-effort: the mutation is already committed.
func (s *service) fanout(ctx context.Context, m domain.ChannelMessage, p domain.PushPayload) {
	s.emit(m)
	s.publish(ctx, p)
}

func (s *service) emit(m domain.ChannelMessage) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Emit(m); err != nil {
		s.log.Warn("push emit failed", "kind", m.Kind(), "id", m.EntityID(), "err", err)
	}
}

func (s *service) publish(ctx context.Context, p domain.PushPayload) {
	if s.push == nil {
		return
	}
	if err := s.push.Publish(ctx, p); err != nil {
		s.log.Warn("os push publish failed", "title", p.Title, "err", err)
	}
}
