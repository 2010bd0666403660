package inmemory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
	"github.com/next-trace/scg-port-bus/contract/port"
	"github.com/next-trace/scg-port-bus/event"
)

// Port is one side of an in-memory port pair.
type Port struct {
	hub    *Hub
	owner  *Endpoint
	peer   *Port
	name   string
	sender *port.Sender
	closed atomic.Bool

	open   func()
	opened atomic.Bool

	onMessage    event.Event[any]
	onDisconnect event.Event[port.Disconnect]
}

var _ port.Port = (*Port)(nil)

func (p *Port) Name() string                                { return p.name }
func (p *Port) Sender() *port.Sender                        { return p.sender }
func (p *Port) OnMessage() *event.Event[any]                { return &p.onMessage }
func (p *Port) OnDisconnect() *event.Event[port.Disconnect] { return &p.onDisconnect }

// Closed reports whether the port has been disconnected from either side.
func (p *Port) Closed() bool { return p.closed.Load() }

// PostMessage queues a clone of v for delivery to the peer. The peer receives
// v as it decodes from JSON (maps, slices, float64, string, bool, nil), never
// the sender's value itself. Values that cannot be JSON-encoded are rejected.
func (p *Port) PostMessage(v any) error {
	if p.closed.Load() {
		return fmt.Errorf("post %s: %w", p.name, berr.ErrPortClosed)
	}

	clone, err := structuredClone(v)
	if err != nil {
		return fmt.Errorf("post %s serialize: %w", p.name, errors.Join(berr.ErrSerializationFailed, err))
	}

	p.start()

	peer := p.peer
	if peer == nil {
		return nil
	}

	ok := p.hub.post(func() {
		if peer.closed.Load() {
			return
		}

		peer.onMessage.Emit(clone)
	})
	if !ok {
		return fmt.Errorf("post %s: hub closed: %w", p.name, berr.ErrPortClosed)
	}

	return nil
}

func structuredClone(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Disconnect closes the port. The peer observes a normal disconnect.
func (p *Port) Disconnect() { p.disconnect(nil) }

// Fail closes the port and reports cause to the peer as the host's last error.
func (p *Port) Fail(cause error) { p.disconnect(cause) }

func (p *Port) disconnect(cause error) {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.owner.forget(p)

	// Never announced: the far side does not know about this port.
	if p.open != nil && p.opened.CompareAndSwap(false, true) {
		return
	}

	peer := p.peer
	if peer == nil {
		return
	}

	p.hub.post(func() { peer.receiveDisconnect(cause) })
}

func (p *Port) start() {
	if p.open != nil && p.opened.CompareAndSwap(false, true) {
		p.open()
	}
}

// receiveDisconnect runs on the event loop.
func (p *Port) receiveDisconnect(cause error) {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.owner.forget(p)
	p.onDisconnect.Emit(port.Disconnect{Port: p, Err: cause})
}

func noReceiver(name string) error {
	return fmt.Errorf("could not establish connection for %q: receiving end does not exist: %w", name, berr.ErrNoReceiver)
}
