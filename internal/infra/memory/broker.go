package memory

import (
	"context"
	"sync"

	"livequiz-service/internal/domain"
)

// Broker is an in-process EventBus. Each session id has its own set of
// subscriber channels; a slow subscriber loses its oldest buffered
// event rather than blocking the publisher.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan domain.Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan domain.Event]struct{})}
}

func (b *Broker) Publish(_ context.Context, event domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[event.SessionID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, 16)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan domain.Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[sessionID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, sessionID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel, nil
}
