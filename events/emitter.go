package events

import (
	"log"
	"sync"
)

// EventType labels what happened.
type EventType string

const (
	EventParcelRegistered EventType = "parcel_registered"
	EventParcelApproved   EventType = "parcel_approved"
	EventParcelRejected   EventType = "parcel_rejected"
	EventTokenMinted      EventType = "token_minted"
	EventTokenTransfer    EventType = "token_transfer"
	EventListingCreated   EventType = "listing_created"
	EventTxInitiated      EventType = "transaction_initiated"
	EventTxApproved       EventType = "transaction_approved"
	EventTxRejected       EventType = "transaction_rejected"
	EventTxCancelled      EventType = "transaction_cancelled"
	EventFeesUpdated      EventType = "fees_updated"
	EventAdminChanged     EventType = "admin_changed"
)

// AllTypes lists every event the ledger emits, for subscribers that want
// the full stream (the audit feed does).
var AllTypes = []EventType{
	EventParcelRegistered,
	EventParcelApproved,
	EventParcelRejected,
	EventTokenMinted,
	EventTokenTransfer,
	EventListingCreated,
	EventTxInitiated,
	EventTxApproved,
	EventTxRejected,
	EventTxCancelled,
	EventFeesUpdated,
	EventAdminChanged,
}

// Event carries a typed payload emitted after a successful state change.
type Event struct {
	Type  EventType      `json:"type"`
	CmdID string         `json:"cmd_id"`
	Data  map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt command execution.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[events] handler panicked for %s: %v", ev.Type, r)
				}
			}()
			h(ev)
		}()
	}
}
