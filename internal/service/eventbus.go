package service

import (
	"sync"

	"github.com/bnema/orator/internal/domain"
)

// Event types. A deleted event is the last one a job's subscribers receive.
const (
	EventProgress = "progress"
	EventDeleted  = "deleted"
)

type Event struct {
	Type     string
	Progress domain.Progress
}

type EventPublisher interface {
	Publish(jobID int64, event Event)
}

// EventBus fans progress events out to live subscribers of a job.
type EventBus struct {
	subscribers map[int64][]chan Event
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[int64][]chan Event),
	}
}

func (eb *EventBus) Subscribe(jobID int64) chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, 16)
	eb.subscribers[jobID] = append(eb.subscribers[jobID], ch)
	return ch
}

func (eb *EventBus) Unsubscribe(jobID int64, ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[jobID]
	for i, sub := range subs {
		if sub == ch {
			eb.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}

	if len(eb.subscribers[jobID]) == 0 {
		delete(eb.subscribers, jobID)
	}
}

func (eb *EventBus) Publish(jobID int64, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[jobID] {
		select {
		case ch <- event:
		default:
			// slow subscriber; polling still sees the latest state
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(int64, Event) {}
