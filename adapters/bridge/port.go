package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
	"github.com/next-trace/scg-port-bus/contract/port"
	"github.com/next-trace/scg-port-bus/event"
)

// Port is one end of a port carried by a broker. Messages arrive as
// json.RawMessage values.
type Port struct {
	host   *Host
	id     string
	name   string
	opener bool
	remote string
	sender *port.Sender

	opened atomic.Bool
	closed atomic.Bool

	onMessage    event.Event[any]
	onDisconnect event.Event[port.Disconnect]
}

var _ port.Port = (*Port)(nil)

func (p *Port) Name() string                                { return p.name }
func (p *Port) Sender() *port.Sender                        { return p.sender }
func (p *Port) OnMessage() *event.Event[any]                { return &p.onMessage }
func (p *Port) OnDisconnect() *event.Event[port.Disconnect] { return &p.onDisconnect }

// ID returns the port id shared by both ends.
func (p *Port) ID() string { return p.id }

func (p *Port) PostMessage(v any) error {
	if p.closed.Load() {
		return fmt.Errorf("post %s: %w", p.name, berr.ErrPortClosed)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("post %s serialize: %w", p.name, errors.Join(berr.ErrSerializationFailed, err))
	}

	if err := p.start(); err != nil {
		return err
	}

	return p.host.publish(p.remote, frame{Kind: kindMsg, Port: p.id, FromOpener: p.opener, Data: data})
}

// start publishes the open frame once, on the opener side only.
func (p *Port) start() error {
	if !p.opener || !p.opened.CompareAndSwap(false, true) {
		return nil
	}

	h := p.host

	return h.publish(p.remote, frame{
		Kind:       kindOpen,
		Port:       p.id,
		FromOpener: true,
		Name:       p.name,
		ReplyTo:    h.Inbox(),
		Sender:     &port.Sender{ID: h.cfg.Endpoint, Target: h.cfg.Endpoint, URL: h.cfg.URL},
	})
}

func (p *Port) Disconnect() { p.close(nil) }

// fail disconnects and reports cause to the peer as an abnormal disconnect.
func (p *Port) fail(cause error) { p.close(cause) }

func (p *Port) close(cause error) {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.host.forget(p)

	// The peer never heard of an unopened port.
	if p.opener && p.opened.CompareAndSwap(false, true) {
		return
	}

	f := frame{Kind: kindClose, Port: p.id, FromOpener: p.opener}
	if cause != nil {
		f.Error = cause.Error()
		f.Code = codeOf(cause)
	}

	if err := p.host.publish(p.remote, f); err != nil {
		p.host.logger.Warn("close frame not delivered", "port", p.name, "err", err)
	}
}

func (p *Port) receiveMessage(data json.RawMessage) {
	if p.closed.Load() {
		return
	}

	if len(data) == 0 || string(data) == "null" {
		p.onMessage.Emit(nil)
		return
	}

	p.onMessage.Emit(data)
}

func (p *Port) receiveDisconnect(cause error) {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.host.forget(p)
	p.onDisconnect.Emit(port.Disconnect{Port: p, Err: cause})
}
