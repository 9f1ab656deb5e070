package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Subscription receives the events of one user.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	userID string
	broker *Broker
	once   sync.Once
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.broker.unsubscribe(s) })
}

// Broker fans events out to per-user subscriptions and to global hooks.
// Dispatch never blocks: a subscriber whose buffer is full misses the event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	hooks  []func(Event)
	buffer int
	log    *zap.Logger
}

// NewBroker creates a Broker with the given per-subscription buffer size.
func NewBroker(buffer int, log *zap.Logger) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// Hook registers fn to run for every dispatched event, before subscribers
// are notified. Hooks must not block.
func (b *Broker) Hook(fn func(Event)) {
	b.mu.Lock()
	b.hooks = append(b.hooks, fn)
	b.mu.Unlock()
}

// Subscribe registers a subscription for userID.
func (b *Broker) Subscribe(userID string) *Subscription {
	ch := make(chan Event, b.buffer)
	s := &Subscription{C: ch, ch: ch, userID: userID, broker: b}

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*Subscription]struct{})
	}
	b.subs[userID][s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Broker) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.userID)
		}
	}
	close(s.ch)
}

// Dispatch delivers e to hooks and to the subscriptions of e.UserID.
// Resync events go to every subscription.
func (b *Broker) Dispatch(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.hooks {
		h(e)
	}

	if e.Op == OpResync {
		for _, set := range b.subs {
			b.deliver(set, e)
		}
		return
	}
	b.deliver(b.subs[e.UserID], e)
}

func (b *Broker) deliver(set map[*Subscription]struct{}, e Event) {
	for s := range set {
		select {
		case s.ch <- e:
		default:
			b.log.Warn("dropping event for slow subscriber",
				zap.String("user", s.userID), zap.String("table", e.Table))
		}
	}
}

// Subscribers reports how many subscriptions userID holds.
func (b *Broker) Subscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}
