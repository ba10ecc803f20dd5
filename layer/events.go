package layer

import "sync"

// Topic identifies one class of tree mutation event.
type Topic string

const (
	TopicCreated    Topic = "created"
	TopicDeleted    Topic = "deleted"
	TopicMoved      Topic = "moved"
	TopicModified   Topic = "modified"
	TopicSelected   Topic = "selected"
	TopicVisibility Topic = "visibility"
	TopicLocked     Topic = "locked"
)

// Event is one tree mutation notification.
type Event struct {
	Topic   Topic          `json:"topic"`
	LayerID string         `json:"layer_id"`
	Data    map[string]any `json:"data,omitempty"`
}

type subscription struct {
	id     int
	topics map[Topic]bool // nil means all topics
	fn     func(Event)
}

// Bus is a topic-keyed subscriber list. Delivery is synchronous in the
// publishing goroutine, in subscription order, immediately after the tree
// mutation that produced the event. No buffering, no reordering: compound
// operations publish their events in post-order themselves.
type Bus struct {
	mu   sync.Mutex
	subs []*subscription
	next int
}

func NewBus() *Bus { return &Bus{} }

// Subscribe registers fn for the given topics (all topics when none are
// given) and returns the matching unsubscribe function. Unsubscribing twice
// is a no-op.
func (b *Bus) Subscribe(fn func(Event), topics ...Topic) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{id: b.next, fn: fn}
	b.next++
	if len(topics) > 0 {
		sub.topics = make(map[Topic]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}
	b.subs = append(b.subs, sub)

	id := sub.id
	return func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every subscriber matching its topic. The subscriber
// list is snapshotted first, so a callback may subscribe or unsubscribe
// without deadlocking delivery.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, s := range b.subs {
		if s.topics == nil || s.topics[ev.Topic] {
			fns = append(fns, s.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
