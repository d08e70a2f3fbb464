package internal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/pubsub/v2"
)

// EventKind names what changed in a project
type EventKind string

const (
	EventProjectUpdated  EventKind = "project.updated"
	EventProjectDeleted  EventKind = "project.deleted"
	EventVideoCreated    EventKind = "video.created"
	EventVideoUpdated    EventKind = "video.updated"
	EventVideoDeleted    EventKind = "video.deleted"
	EventAgentCreated    EventKind = "agent.created"
	EventAgentUpdated    EventKind = "agent.updated"
	EventAgentDeleted    EventKind = "agent.deleted"
	EventCanvasUpdated   EventKind = "canvas.updated"
	EventCanvasRejected  EventKind = "canvas.save_failed"
	EventProfileUpdated  EventKind = "profile.updated"
	EventTranscriptDone  EventKind = "transcription.completed"
	EventTranscriptError EventKind = "transcription.failed"
)

// Event is pushed to subscribers whenever a project's data changes
type Event struct {
	Kind      EventKind `json:"kind"`
	ProjectID string    `json:"projectId"`
	EntityID  string    `json:"entityId,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

const subscriberBuffer = 32

// Hub fans project change events out to subscribers, one topic per project.
// Publish never blocks; a subscriber whose buffer is full misses the event.
type Hub struct {
	hub     *pubsub.SimpleHub
	dropped atomic.Int64

	mu     sync.Mutex
	subs   map[chan Event]*subscription
	counts map[string]int
	onDrop func(Event)
}

type subscription struct {
	projectID string
	unsub     func()

	// handlers may still run after unsub returns, so sends are guarded
	mu     sync.Mutex
	closed bool
	ch     chan Event
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		hub:    pubsub.NewSimpleHub(nil),
		subs:   make(map[chan Event]*subscription),
		counts: make(map[string]int),
	}
}

// OnDrop registers a callback run for every event a slow subscriber missed
func (h *Hub) OnDrop(fn func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = fn
}

// Subscribe returns a channel receiving events for projectID
func (h *Hub) Subscribe(projectID string) chan Event {
	sub := &subscription{projectID: projectID, ch: make(chan Event, subscriberBuffer)}
	sub.unsub = h.hub.Subscribe(projectID, func(topic string, data interface{}) {
		ev, ok := data.(Event)
		if !ok {
			return
		}
		h.deliver(sub, ev)
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub.ch] = sub
	h.counts[projectID]++
	return sub.ch
}

func (h *Hub) deliver(sub *subscription, ev Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}

	select {
	case sub.ch <- ev:
	default:
		h.dropped.Add(1)
		h.mu.Lock()
		onDrop := h.onDrop
		h.mu.Unlock()
		if onDrop != nil {
			onDrop(ev)
		}
	}
}

// Unsubscribe removes and closes a subscription channel
func (h *Hub) Unsubscribe(projectID string, ch chan Event) {
	h.mu.Lock()
	sub, ok := h.subs[ch]
	if !ok || sub.projectID != projectID {
		h.mu.Unlock()
		return
	}
	delete(h.subs, ch)
	if h.counts[projectID]--; h.counts[projectID] <= 0 {
		delete(h.counts, projectID)
	}
	h.mu.Unlock()

	sub.unsub()
	sub.mu.Lock()
	sub.closed = true
	close(sub.ch)
	sub.mu.Unlock()
}

// Publish queues an event for every subscriber of its project. Delivery is
// asynchronous and in publish order per subscriber.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.hub.Publish(ev.ProjectID, ev)
}

// Subscribers returns the number of subscriptions for a project
func (h *Hub) Subscribers(projectID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[projectID]
}

// Dropped returns how many events were not delivered to slow subscribers
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
