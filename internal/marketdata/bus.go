package marketdata

import (
	"sync"
)

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Subscription receives matching events on C until unsubscribed. The channel
// is closed by Unsubscribe.
type Subscription struct {
	C     chan Event
	types map[string]struct{}
}

func (s *Subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Bus fans events out to in-process subscribers. Publish never blocks; slow
// subscribers drop events.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber. With no types given every event is
// delivered, otherwise only events of the named types.
func (b *Bus) Subscribe(types ...string) *Subscription {
	sub := &Subscription{C: make(chan Event, 100)}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.C)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	for sub := range b.subs {
		if !sub.wants(evt.Type) {
			continue
		}
		select {
		case sub.C <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}
