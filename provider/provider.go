// Package provider holds what the per-namespace façades share: the transport
// contract, the connection state machine and the event listener registry.
package provider

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/newwallet-io/wallet-sdk/bridge"
	"github.com/newwallet-io/wallet-sdk/wire"
)

// Transport is the slice of the bridge a façade needs. Façades never touch
// the popup session or the pending table directly.
type Transport interface {
	Connect(ctx context.Context, req wire.ConnectRequest) (*wire.ConnectionResult, error)
	Call(ctx context.Context, typ wire.Type, ns wire.Namespace, payload any) (json.RawMessage, error)
	Notify(ctx context.Context, typ wire.Type, ns wire.Namespace, payload any) error
	Ready() bool
	OnEvent(fn bridge.EventHandler)
	OnSessionClosed(fn func())
}

// State is a façade's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ListenerID identifies one registered listener.
type ListenerID uint64

// Listener receives the event's data payload.
type Listener func(data json.RawMessage)

// Emitter is a per-façade event listener registry. Multiple listeners per
// event are allowed; removal is a no-op when the id is unknown.
type Emitter struct {
	mu        sync.Mutex
	next      ListenerID
	listeners map[string]map[ListenerID]Listener
}

// On registers fn for event and returns the id to remove it with.
func (e *Emitter) On(event string, fn Listener) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = map[string]map[ListenerID]Listener{}
	}
	e.next++
	id := e.next
	if e.listeners[event] == nil {
		e.listeners[event] = map[ListenerID]Listener{}
	}
	e.listeners[event][id] = fn
	return id
}

// Off removes a listener. Removing an unknown id is not an error.
func (e *Emitter) Off(event string, id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners[event], id)
}

// Emit invokes every listener registered for event.
func (e *Emitter) Emit(event string, data json.RawMessage) {
	e.mu.Lock()
	fns := make([]Listener, 0, len(e.listeners[event]))
	for _, fn := range e.listeners[event] {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}
