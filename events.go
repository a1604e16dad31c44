package swap

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names an engine event on the wire
type EventType string

const (
	EventTypeSwap          EventType = "swap"
	EventTypeCancel        EventType = "cancel"
	EventTypeAuthorization EventType = "authorization"
	EventTypeRevocation    EventType = "revocation"
)

// Event is published after a call commits
type Event interface {
	Type() EventType
}

// SwapEvent carries the full settled order and the identities involved
type SwapEvent struct {
	Order  Order          `json:"order"`
	Signer common.Address `json:"signer"`
	Sender common.Address `json:"sender"`
}

func (SwapEvent) Type() EventType { return EventTypeSwap }

// CancelEvent is emitted once per canceled id
type CancelEvent struct {
	Maker common.Address `json:"maker"`
	ID    *big.Int       `json:"id"`
}

func (CancelEvent) Type() EventType { return EventTypeCancel }

type AuthorizationEvent struct {
	Approver common.Address `json:"approver"`
	Delegate common.Address `json:"delegate"`
	Expiry   uint64         `json:"expiry"`
}

func (AuthorizationEvent) Type() EventType { return EventTypeAuthorization }

type RevocationEvent struct {
	Approver common.Address `json:"approver"`
	Delegate common.Address `json:"delegate"`
}

func (RevocationEvent) Type() EventType { return EventTypeRevocation }

// EventEnvelope is the JSON form of an event
type EventEnvelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalEvent wraps e in an envelope tagged with its type
func MarshalEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(EventEnvelope{Type: e.Type(), Data: data})
}

// UnmarshalEvent decodes an envelope produced by MarshalEvent
func UnmarshalEvent(raw []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	var e Event
	switch env.Type {
	case EventTypeSwap:
		var v SwapEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		e = v
	case EventTypeCancel:
		var v CancelEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		e = v
	case EventTypeAuthorization:
		var v AuthorizationEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		e = v
	case EventTypeRevocation:
		var v RevocationEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		e = v
	default:
		return nil, &InvalidParamError{Message: "unknown event type: " + string(env.Type)}
	}
	return e, nil
}

// EventSink receives committed events in emission order
type EventSink interface {
	Publish(ctx context.Context, e Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(ctx context.Context, e Event)

func (f EventSinkFunc) Publish(ctx context.Context, e Event) { f(ctx, e) }

// EventLog records every published event
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *EventLog) Publish(_ context.Context, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

// Events returns a copy of the recorded events
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *EventLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
