package service

import (
	"sync"
	"time"

	"github.com/dbferry/dbferry/internal/core/domain"
)

// eventBroker fans lifecycle events out to subscribers. Delivery is
// best-effort: a subscriber that stops draining its channel loses
// events rather than blocking a running job.
type eventBroker struct {
	mu          sync.Mutex
	subscribers map[int]chan domain.Event
	nextID      int
}

func newEventBroker() *eventBroker {
	return &eventBroker{subscribers: map[int]chan domain.Event{}}
}

// Subscribe returns a channel of lifecycle events and a cancel
// function that closes it.
func (b *eventBroker) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.Event, 64)
	b.subscribers[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
}

func (b *eventBroker) emit(event domain.Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
