package broadcast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-events-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []domain.LocalMessage
}

func (r *recorder) handle(m domain.LocalMessage) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) got() []domain.LocalMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LocalMessage(nil), r.msgs...)
}

func waitLen(t *testing.T, r *recorder, n int) []domain.LocalMessage {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.got()) >= n }, time.Second, 5*time.Millisecond)
	return r.got()
}

func deleted(id string) domain.LocalMessage {
	return domain.LocalMessage{Type: domain.LocalEventDeleted, EventID: id, Revision: 1}
}

func TestPublish_FIFOToEverySubscriber(t *testing.T) {
	bus := NewBus(nil)
	pub := bus.Open(EventsChannel)
	var b, c recorder
	bus.Open(EventsChannel).Subscribe(b.handle)
	bus.Open(EventsChannel).Subscribe(c.handle)

	for i := 0; i < 100; i++ {
		pub.Publish(deleted(fmt.Sprintf("e%d", i)))
	}

	for _, r := range []*recorder{&b, &c} {
		msgs := waitLen(t, r, 100)
		for i, m := range msgs {
			assert.Equal(t, fmt.Sprintf("e%d", i), m.EventID)
		}
	}
}

func TestPublish_NeverReachesPublisher(t *testing.T) {
	bus := NewBus(nil)
	self := bus.Open(EventsChannel)
	other := bus.Open(EventsChannel)
	var mine, theirs recorder
	self.Subscribe(mine.handle)
	other.Subscribe(theirs.handle)

	self.Publish(deleted("e1"))
	waitLen(t, &theirs, 1)

	other.Publish(deleted("e2"))
	msgs := waitLen(t, &mine, 1)
	assert.Equal(t, "e2", msgs[0].EventID)
	assert.Len(t, theirs.got(), 1)
}

func TestPublish_ScopedByName(t *testing.T) {
	bus := NewBus(nil)
	var r recorder
	bus.Open("other-channel").Subscribe(r.handle)
	var sentinel recorder
	bus.Open(EventsChannel).Subscribe(sentinel.handle)

	bus.Open(EventsChannel).Publish(deleted("e1"))
	waitLen(t, &sentinel, 1)
	assert.Empty(t, r.got())
}

func TestReceiversGetIndependentCopies(t *testing.T) {
	bus := NewBus(nil)
	var a, b recorder
	bus.Open(EventsChannel).Subscribe(func(m domain.LocalMessage) {
		m.Event.Title.EN = "mutated"
		a.handle(m)
	})
	bus.Open(EventsChannel).Subscribe(b.handle)

	ev := domain.Event{EventID: "e1", Title: domain.LocalizedText{EN: "Talk"}}
	bus.Open(EventsChannel).Publish(domain.LocalMessage{Type: domain.LocalEventCreated, Event: &ev, Revision: 1})

	waitLen(t, &a, 1)
	got := waitLen(t, &b, 1)
	assert.Equal(t, "Talk", got[0].Event.Title.EN)
	assert.Equal(t, "Talk", ev.Title.EN)
}

func TestNilBus_DegradesSilently(t *testing.T) {
	var bus *Bus
	c := bus.Open(EventsChannel)
	called := false
	unsubscribe := c.Subscribe(func(domain.LocalMessage) { called = true })
	c.Publish(deleted("e1"))
	unsubscribe()
	c.Close()
	assert.False(t, called)
}

func TestClose_StopsDelivery(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Open(EventsChannel)
	var r, sentinel recorder
	sub.Subscribe(r.handle)
	bus.Open(EventsChannel).Subscribe(sentinel.handle)
	sub.Close()

	bus.Open(EventsChannel).Publish(deleted("e1"))
	waitLen(t, &sentinel, 1)
	assert.Empty(t, r.got())
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Open(EventsChannel)
	var kept, dropped recorder
	sub.Subscribe(kept.handle)
	unsubscribe := sub.Subscribe(dropped.handle)
	unsubscribe()

	bus.Open(EventsChannel).Publish(deleted("e1"))
	waitLen(t, &kept, 1)
	assert.Empty(t, dropped.got())
}
