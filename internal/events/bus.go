package events

import (
	"sync"
	"time"
)

const (
	JobAdded        = "job.added"
	JobUpdated      = "job.updated"
	JobRemoved      = "job.removed"
	CandidateStatus = "candidate.status"
	DataLoading     = "data.loading"
	DataLoaded      = "data.loaded"
	DataFailed      = "data.failed"
	StoreReset      = "store.reset"
)

type Event struct {
	Seq        uint64       `json:"seq"`
	TS         string       `json:"ts" format:"date-time"`
	Type       string       `json:"type"`
	EntityKind string       `json:"entity_kind,omitempty"`
	EntityID   int64        `json:"entity_id,omitempty"`
	Payload    EventPayload `json:"payload"`
}

type EventPayload map[string]any

// Bus fans events out to subscribers in publish order.
type Bus struct {
	Now func() time.Time

	mu   sync.Mutex
	seq  uint64
	next int
	subs map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{Now: time.Now, subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a func that removes it.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]func(Event))
	}
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Bus) Publish(evtType, entityKind string, entityID int64, payload EventPayload) {
	if b == nil {
		return
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	b.mu.Lock()
	b.seq++
	evt := Event{
		Seq:        b.seq,
		TS:         now().UTC().Format(time.RFC3339),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		Payload:    payload,
	}
	subs := make([]func(Event), 0, len(b.subs))
	for i := 0; i < b.next; i++ {
		if fn, ok := b.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	b.mu.Unlock()
	for _, fn := range subs {
		fn(evt)
	}
}
