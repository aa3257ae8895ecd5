// Package broadcast fans events out from the stream scheduler to any
// number of observers. Delivery is fire-and-forget per observer: a full
// subscriber buffer drops the event for that subscriber only, so a slow
// or stuck client never stalls the producer or its peers.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wingzero/mt5bridge/internal/domain"
)

var log = logrus.WithField("component", "broadcast")

// Event names pushed over the stream.
const (
	EventMarketData      = "market_data"
	EventPositionsUpdate = "positions_update"
	EventAccountUpdate   = "account_update"
	EventConnected       = "connected"
)

// Event is one named payload on the stream.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"data"`
}

// Subscriber is one observer's buffered view of the stream. Read from C
// until it is closed by Unsubscribe.
type Subscriber struct {
	id      string
	ch      chan Event
	symbols map[string]struct{} // nil means every symbol
}

func (s *Subscriber) ID() string      { return s.id }
func (s *Subscriber) C() <-chan Event { return s.ch }

func (s *Subscriber) wants(symbol string) bool {
	if s.symbols == nil {
		return true
	}
	_, ok := s.symbols[symbol]
	return ok
}

// Caster is the fan-out sink. It also keeps the last market_data event
// per symbol so a fresh subscriber does not wait a full sampling
// interval for its first quote.
type Caster struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
	last map[string]Event
}

func New() *Caster {
	return &Caster{
		subs: make(map[string]*Subscriber),
		last: make(map[string]Event),
	}
}

// Subscribe registers an observer with the given buffer size. With no
// symbols the observer sees every market_data event; otherwise only the
// listed ones. Account and position updates are always delivered.
func (c *Caster) Subscribe(buffer int, symbols ...string) *Subscriber {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscriber{
		id: uuid.NewString(),
		ch: make(chan Event, buffer),
	}
	if len(symbols) > 0 {
		sub.symbols = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			sub.symbols[s] = struct{}{}
		}
	}
	c.mu.Lock()
	c.subs[sub.id] = sub
	c.mu.Unlock()
	log.Debugf("subscriber %s registered (%d total)", sub.id, c.Len())
	return sub
}

// Unsubscribe drops the observer and closes its channel. Unknown ids
// are a no-op.
func (c *Caster) Unsubscribe(id string) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	if ok {
		delete(c.subs, id)
		close(sub.ch)
	}
	c.mu.Unlock()
}

// Len returns the current subscriber count.
func (c *Caster) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Publish delivers the event to every current subscriber without ever
// blocking. Publishing with zero subscribers is valid and cheap.
func (c *Caster) Publish(name string, payload any) {
	ev := Event{Name: name, Payload: payload}

	tick, isTick := payload.(domain.MarketTick)

	c.mu.Lock()
	if isTick && name == EventMarketData {
		c.last[tick.Symbol] = ev
	}
	c.mu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, sub := range c.subs {
		if isTick && name == EventMarketData && !sub.wants(tick.Symbol) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Slow consumer: drop this event for this subscriber only.
			log.Debugf("subscriber %s buffer full, dropped %s", sub.id, name)
		}
	}
}

// Send enqueues an event for a single subscriber, used for greetings
// and last-value replay. Returns false when the subscriber is gone or
// its buffer is full.
func (c *Caster) Send(id string, ev Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.subs[id]
	if !ok {
		return false
	}
	select {
	case sub.ch <- ev:
		return true
	default:
		return false
	}
}

// Replay pushes the last known market_data event for symbol to one
// subscriber. Returns false when nothing has been published for the
// symbol yet.
func (c *Caster) Replay(id, symbol string) bool {
	c.mu.RLock()
	ev, ok := c.last[symbol]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return c.Send(id, ev)
}

// Prime seeds the last-value cache without delivering anything, used to
// restore last-known quotes from persistence on startup.
func (c *Caster) Prime(tick domain.MarketTick) {
	c.mu.Lock()
	c.last[tick.Symbol] = Event{Name: EventMarketData, Payload: tick}
	c.mu.Unlock()
}
