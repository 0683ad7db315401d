package service

import (
	"sync"

	"github.com/bnema/transcriber/internal/domain"
)

// Event announces that a job record changed. Subscribers treat it as a hint
// and re-read the store for the authoritative state.
type Event struct {
	JobID   string
	State   domain.JobState
	Message string
}

type EventPublisher interface {
	Publish(jobID string, event Event)
}

// EventBus fans job events out to in-process subscribers. Each subscriber
// holds at most one pending event: a newer event replaces an unread one,
// so publishing never blocks on a slow reader.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe registers for events of jobID. The returned func unregisters
// and closes the channel; calling it again is a no-op.
func (eb *EventBus) Subscribe(jobID string) (<-chan Event, func()) {
	ch := make(chan Event, 1)

	eb.mu.Lock()
	if eb.subscribers[jobID] == nil {
		eb.subscribers[jobID] = make(map[chan Event]struct{})
	}
	eb.subscribers[jobID][ch] = struct{}{}
	eb.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { eb.unsubscribe(jobID, ch) })
	}
}

func (eb *EventBus) unsubscribe(jobID string, ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[jobID]
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(eb.subscribers, jobID)
	}
}

func (eb *EventBus) Publish(jobID string, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for ch := range eb.subscribers[jobID] {
		select {
		case ch <- event:
			continue
		default:
		}
		// Full: swap the stale pending event for this one.
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

func (eb *EventBus) SubscriberCount(jobID string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[jobID])
}

var _ EventPublisher = (*EventBus)(nil)
