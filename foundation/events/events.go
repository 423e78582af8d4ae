// Package events fans typed node events out to subscribers. Every subscriber
// chooses the kinds of events it wants to receive.
package events

import (
	"fmt"
	"strings"
	"sync"
)

// Kind identifies what happened on the node.
type Kind string

// Set of event kinds the node publishes.
const (
	KindLog        Kind = "log"
	KindBlockMined Kind = "block_mined"
	KindPeerBlock  Kind = "peer_block"
	KindTxAdmitted Kind = "tx_admitted"
)

var kinds = map[Kind]bool{
	KindLog:        true,
	KindBlockMined: true,
	KindPeerBlock:  true,
	KindTxAdmitted: true,
}

// ParseKinds reads a comma separated list of kinds. An empty list selects
// every kind.
func ParseKinds(list string) ([]Kind, error) {
	var out []Kind
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		k := Kind(name)
		if !kinds[k] {
			return nil, fmt.Errorf("unknown event kind %q", name)
		}
		out = append(out, k)
	}

	return out, nil
}

// Event is what a subscriber receives. Only the fields that make sense for
// the kind are set.
type Event struct {
	Kind    Kind   `json:"kind"`
	Height  uint64 `json:"height,omitempty"`
	Hash    string `json:"hash,omitempty"`
	TxCount uint32 `json:"tx_count,omitempty"`
	TxID    string `json:"tx_id,omitempty"`
	Fee     uint64 `json:"fee,omitempty"`
	Message string `json:"message,omitempty"`
}

// =============================================================================

type subscriber struct {
	ch    chan Event
	kinds map[Kind]bool
}

// wants reports whether the subscriber asked for the kind. A subscriber
// without kinds takes everything.
func (s subscriber) wants(k Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Events maintains a mapping of unique id and subscribers so goroutines
// can register and receive events.
type Events struct {
	mu   sync.RWMutex
	subs map[string]subscriber
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		subs: make(map[string]subscriber),
	}
}

// Shutdown closes and removes every subscriber.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, sub := range evt.subs {
		delete(evt.subs, id)
		close(sub.ch)
	}
}

// Subscribe takes a unique id and the kinds of events wanted, and returns
// a channel that receives them. Subscribing an existing id returns its
// channel with the kinds replaced.
func (evt *Events) Subscribe(id string, want ...Kind) <-chan Event {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	set := make(map[Kind]bool, len(want))
	for _, k := range want {
		set[k] = true
	}

	if sub, exists := evt.subs[id]; exists {
		sub.kinds = set
		evt.subs[id] = sub
		return sub.ch
	}

	// An event is dropped when the subscriber is not ready, the buffer
	// covers a slow websocket write.
	const eventBuffer = 100

	sub := subscriber{
		ch:    make(chan Event, eventBuffer),
		kinds: set,
	}
	evt.subs[id] = sub

	return sub.ch
}

// Unsubscribe closes and removes the subscriber.
func (evt *Events) Unsubscribe(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	sub, exists := evt.subs[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.subs, id)
	close(sub.ch)
	return nil
}

// Publish delivers the event to every subscriber that wants its kind.
// Publish will not block waiting for a receiver on any given channel.
func (evt *Events) Publish(e Event) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, sub := range evt.subs {
		if !sub.wants(e.Kind) {
			continue
		}

		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Handler wraps an event handler so every formatted message is also
// published as a log event.
func (evt *Events) Handler(next func(v string, args ...any)) func(v string, args ...any) {
	return func(v string, args ...any) {
		if next != nil {
			next(v, args...)
		}
		evt.Publish(Event{Kind: KindLog, Message: fmt.Sprintf(v, args...)})
	}
}
