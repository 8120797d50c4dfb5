package domain

import (
	"encoding/json"
	"fmt"
)

// MessageKind discriminates ChannelMessage variants.
type MessageKind int

const (
	KindCreated MessageKind = iota + 1
	KindUpdated
	KindDeleted
)

func (k MessageKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindUpdated:
		return "updated"
	case KindDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ChannelMessage is a mutation delivered over the local or the push channel.
// The only implementations are Created, Updated and Deleted.
type ChannelMessage interface {
	Kind() MessageKind
	EntityID() string
	Rev() int64
	// Source is the id of the page that caused the mutation, empty if unknown.
	Source() string
	isChannelMessage()
}

// MessageMeta carries the fields every variant has.
type MessageMeta struct {
	ID       string
	Revision int64
	Origin   string
}

func (m MessageMeta) EntityID() string { return m.ID }
func (m MessageMeta) Rev() int64       { return m.Revision }
func (m MessageMeta) Source() string   { return m.Origin }

type Created struct {
	MessageMeta
	Event Event
}

type Updated struct {
	MessageMeta
	Event Event
}

type Deleted struct {
	MessageMeta
}

func (Created) Kind() MessageKind { return KindCreated }
func (Updated) Kind() MessageKind { return KindUpdated }
func (Deleted) Kind() MessageKind { return KindDeleted }

func (Created) isChannelMessage() {}
func (Updated) isChannelMessage() {}
func (Deleted) isChannelMessage() {}

// NewCreated builds a Created message from the acknowledged entity.
func NewCreated(e Event, origin string) Created {
	return Created{MessageMeta: MessageMeta{ID: e.EventID, Revision: e.Revision, Origin: origin}, Event: e}
}

// NewUpdated builds an Updated message from the acknowledged entity.
func NewUpdated(e Event, origin string) Updated {
	return Updated{MessageMeta: MessageMeta{ID: e.EventID, Revision: e.Revision, Origin: origin}, Event: e}
}

// NewDeleted builds a Deleted message. revision is the tombstone revision.
func NewDeleted(id string, revision int64, origin string) Deleted {
	return Deleted{MessageMeta: MessageMeta{ID: id, Revision: revision, Origin: origin}}
}

// ImportNotice tells other pages a bulk import happened and they should
// reload. It is only ever sent on the local channel.
type ImportNotice struct {
	Count  int
	Origin string
}

// Local channel message types.
const (
	LocalEventCreated  = "event-created"
	LocalEventUpdated  = "event-updated"
	LocalEventDeleted  = "event-deleted"
	LocalEventsImports = "events-imported"
)

// LocalMessage is the local channel wire shape.
type LocalMessage struct {
	Type     string `json:"type"`
	Event    *Event `json:"event,omitempty"`
	EventID  string `json:"eventId,omitempty"`
	Count    int    `json:"count,omitempty"`
	Revision int64  `json:"revision,omitempty"`
	Origin   string `json:"origin,omitempty"`
}

// ToLocal encodes a mutation for the local channel.
func ToLocal(m ChannelMessage) LocalMessage {
	lm := LocalMessage{EventID: m.EntityID(), Revision: m.Rev(), Origin: m.Source()}
	switch v := m.(type) {
	case Created:
		lm.Type = LocalEventCreated
		ev := v.Event
		lm.Event = &ev
	case Updated:
		lm.Type = LocalEventUpdated
		ev := v.Event
		lm.Event = &ev
	case Deleted:
		lm.Type = LocalEventDeleted
	}
	return lm
}

// ImportToLocal encodes an import notice for the local channel.
func ImportToLocal(n ImportNotice) LocalMessage {
	return LocalMessage{Type: LocalEventsImports, Count: n.Count, Origin: n.Origin}
}

// Decode turns a local wire message into either a ChannelMessage or an
// ImportNotice. Exactly one of the results is non-nil on success.
func (lm LocalMessage) Decode() (ChannelMessage, *ImportNotice, error) {
	switch lm.Type {
	case LocalEventsImports:
		return nil, &ImportNotice{Count: lm.Count, Origin: lm.Origin}, nil
	case LocalEventCreated, LocalEventUpdated:
		if lm.Event == nil {
			return nil, nil, fmt.Errorf("%s without event: %w", lm.Type, ErrBadRequest)
		}
		ev := *lm.Event
		if ev.Revision == 0 {
			ev.Revision = lm.Revision
		}
		if ev.EventID == "" {
			ev.EventID = lm.EventID
		}
		if ev.EventID == "" {
			return nil, nil, fmt.Errorf("%s without id: %w", lm.Type, ErrBadRequest)
		}
		if lm.Type == LocalEventCreated {
			return NewCreated(ev, lm.Origin), nil, nil
		}
		return NewUpdated(ev, lm.Origin), nil, nil
	case LocalEventDeleted:
		if lm.EventID == "" {
			return nil, nil, fmt.Errorf("%s without id: %w", lm.Type, ErrBadRequest)
		}
		return NewDeleted(lm.EventID, lm.Revision, lm.Origin), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown local message type %q: %w", lm.Type, ErrBadRequest)
	}
}

// Push channel event names.
const (
	PushEventCreated = "event:created"
	PushEventUpdated = "event:updated"
	PushEventDeleted = "event:deleted"
	PushEventCreate  = "event:create"
	PushEventUpdate  = "event:update"
	PushEventDelete  = "event:delete"
	PushJoinPrefix   = "join:"
)

// PushData is the data object of a push mutation frame.
type PushData struct {
	Event    *Event `json:"event,omitempty"`
	EventID  string `json:"eventId"`
	Revision int64  `json:"revision"`
	Origin   string `json:"origin,omitempty"`
}

// PushEventName maps a variant to its push event name.
func PushEventName(m ChannelMessage) string {
	switch m.Kind() {
	case KindCreated:
		return PushEventCreated
	case KindUpdated:
		return PushEventUpdated
	default:
		return PushEventDeleted
	}
}

// ToPushData encodes the data part of a push frame.
func ToPushData(m ChannelMessage) PushData {
	d := PushData{EventID: m.EntityID(), Revision: m.Rev(), Origin: m.Source()}
	switch v := m.(type) {
	case Created:
		ev := v.Event
		d.Event = &ev
	case Updated:
		ev := v.Event
		d.Event = &ev
	}
	return d
}

// DecodePush decodes a push mutation frame.
func DecodePush(name string, raw json.RawMessage) (ChannelMessage, error) {
	var d PushData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	lm := LocalMessage{EventID: d.EventID, Revision: d.Revision, Origin: d.Origin, Event: d.Event}
	switch name {
	case PushEventCreated:
		lm.Type = LocalEventCreated
	case PushEventUpdated:
		lm.Type = LocalEventUpdated
	case PushEventDeleted:
		lm.Type = LocalEventDeleted
	default:
		return nil, fmt.Errorf("unknown push event %q: %w", name, ErrBadRequest)
	}
	m, _, err := lm.Decode()
	return m, err
}
