package event

import (
	"sort"

	"go.uber.org/zap"
)

// Observer is invoked for every publish, before routing. Observers must
// not be able to block or fail the publish: panics are swallowed and
// return values are not consulted. A session recorder and a display
// component are typical observers.
type Observer func(Event)

// Delivery pairs a pending event with the hat whose subscription
// matched it.
type Delivery struct {
	Hat   string
	Event Event
}

// Bus routes published events into per-hat pending queues. The loop is
// the only writer; the bus itself does no locking because all access
// happens on the single loop goroutine.
type Bus struct {
	subs      map[string][]string // hat id -> subscription patterns
	order     []string            // registration order, fallback kept last for selection
	fallback  string
	pending   map[string][]Event
	observers []Observer
	logger    *zap.Logger
}

// NewBus creates an empty bus. The fallback hat id is considered last
// when selecting the next hat with pending events, even though its "*"
// subscription matches every topic.
func NewBus(fallback string, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:     make(map[string][]string),
		fallback: fallback,
		pending:  make(map[string][]Event),
		logger:   logger,
	}
}

// Register adds a hat's subscription patterns. Re-registering an id
// replaces its patterns but keeps its queue and position.
func (b *Bus) Register(id string, subscriptions []string) {
	if _, ok := b.subs[id]; !ok {
		b.order = append(b.order, id)
	}
	patterns := make([]string, len(subscriptions))
	copy(patterns, subscriptions)
	b.subs[id] = patterns
}

// AddObserver registers a publish observer.
func (b *Bus) AddObserver(fn Observer) {
	b.observers = append(b.observers, fn)
}

// Publish delivers a clone of the event to every hat whose subscription
// matches the topic, and returns the recipient ids. A targeted event is
// delivered only to its target hat. Zero recipients is not an error;
// the caller is expected to log it.
func (b *Bus) Publish(ev Event) []string {
	b.notifyObservers(ev)

	if ev.Target != "" {
		if _, ok := b.subs[ev.Target]; !ok {
			return nil
		}
		b.pending[ev.Target] = append(b.pending[ev.Target], ev)
		return []string{ev.Target}
	}

	var recipients []string
	for _, id := range b.order {
		if bestMatch(b.subs[id], ev.Topic) >= 0 {
			b.pending[id] = append(b.pending[id], ev)
			recipients = append(recipients, id)
		}
	}
	return recipients
}

// NotifyObservers invokes observers without routing. Used for the
// termination event, which no hat may receive.
func (b *Bus) NotifyObservers(ev Event) {
	b.notifyObservers(ev)
}

func (b *Bus) notifyObservers(ev Event) {
	for _, fn := range b.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Warn("event observer panicked", zap.Any("panic", r), zap.String("topic", ev.Topic))
				}
			}()
			fn(ev)
		}()
	}
}

// NextHatWithPending returns the first hat, in registration order, that
// has pending events. The fallback hat is considered only when no other
// hat has anything queued.
func (b *Bus) NextHatWithPending() (string, bool) {
	for _, id := range b.order {
		if id == b.fallback {
			continue
		}
		if len(b.pending[id]) > 0 {
			return id, true
		}
	}
	if len(b.pending[b.fallback]) > 0 {
		return b.fallback, true
	}
	return "", false
}

// HasPending reports whether any hat has queued events.
func (b *Bus) HasPending() bool {
	for _, q := range b.pending {
		if len(q) > 0 {
			return true
		}
	}
	return false
}

// TakePending removes and returns a hat's queued events in FIFO order.
func (b *Bus) TakePending(id string) []Event {
	events := b.pending[id]
	delete(b.pending, id)
	return events
}

// PeekPending returns a copy of a hat's queue without consuming it.
func (b *Bus) PeekPending(id string) []Event {
	q := b.pending[id]
	out := make([]Event, len(q))
	copy(out, q)
	return out
}

// TakeAll drains every hat's queue, preserving per-hat FIFO order, with
// non-fallback hats first in registration order.
func (b *Bus) TakeAll() []Delivery {
	var out []Delivery
	for _, id := range b.order {
		if id == b.fallback {
			continue
		}
		for _, ev := range b.TakePending(id) {
			out = append(out, Delivery{Hat: id, Event: ev})
		}
	}
	for _, ev := range b.TakePending(b.fallback) {
		out = append(out, Delivery{Hat: b.fallback, Event: ev})
	}
	return out
}

// DropPending discards a hat's queue, returning how many events were
// dropped. Used when a hat has exhausted its activation budget.
func (b *Bus) DropPending(id string) int {
	n := len(b.pending[id])
	delete(b.pending, id)
	return n
}

// bestMatch returns the specificity of the best matching pattern, or -1
// when none match.
func bestMatch(patterns []string, topic string) int {
	best := -1
	for _, p := range patterns {
		if !MatchTopic(p, topic) {
			continue
		}
		if s := matchSpecificity(p, topic); s > best {
			best = s
		}
	}
	return best
}

// Subscribers returns the registered hat ids sorted for deterministic
// diagnostics output.
func (b *Bus) Subscribers() []string {
	ids := make([]string, len(b.order))
	copy(ids, b.order)
	sort.Strings(ids)
	return ids
}
