// events.go - Public notifications emitted by ledger operations.
//
// Events carry the account identity only, never a magnitude or outcome.
// Staked and Withdrawn fire on every accepted call, including the
// insufficiency branch: the public event count must not depend on the
// confidential result.

package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// EventTypeGranted is emitted when an account claims its one-time grant.
	EventTypeGranted = "ledger.granted"
	// EventTypeStaked is emitted on every accepted stake call.
	EventTypeStaked = "ledger.staked"
	// EventTypeWithdrawn is emitted on every accepted withdraw call.
	EventTypeWithdrawn = "ledger.withdrawn"
)

// Event is a public notification.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func newAccountEvent(typ string, id common.Address) *Event {
	return &Event{
		Type:       typ,
		Attributes: map[string]string{"account": id.Hex()},
	}
}

// Emitter receives events fire-and-forget.
type Emitter interface {
	Emit(ev *Event)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(*Event) {}

// Collector is an Emitter buffering events in memory.
type Collector struct {
	mu     sync.Mutex
	events []*Event
}

func (c *Collector) Emit(ev *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a copy of all collected events in emission order.
func (c *Collector) Events() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Event, len(c.events))
	copy(out, c.events)
	return out
}
