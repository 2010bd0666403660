package messages

import (
	"context"

	"github.com/next-trace/scg-port-bus/contract/port"
)

// Handler computes the response for a payload received on a port.
// A returned error is logged by the responder and no reply is sent.
type Handler[P, R any] func(ctx context.Context, payload P, sender *port.Sender) (R, error)

// Request is what an initiator sends. Type doubles as the port name.
type Request[P, R any] struct {
	Type    string
	Payload P

	hasPayload bool
}

// HasPayload reports whether the request was created with a payload.
func (r Request[P, R]) HasPayload() bool { return r.hasPayload }

// ToAction returns the responder-side view of the request. The handler is nil.
func (r Request[P, R]) ToAction() Action[P, R] {
	return Action[P, R]{Type: r.Type, Payload: r.Payload}
}

func (r Request[P, R]) payload() any {
	if !r.hasPayload {
		return nil
	}

	return r.Payload
}

// Action binds a request type to the handler that answers it.
type Action[P, R any] struct {
	Type    string
	Payload P
	Handler Handler[P, R]
}

// RequestCreator produces requests of a single type.
type RequestCreator[P, R any] struct{ typ string }

// CreateRequest returns a creator for requests of the given type.
func CreateRequest[P, R any](typ string) RequestCreator[P, R] {
	return RequestCreator[P, R]{typ: typ}
}

// Create builds a request. The payload is optional; only the first value is used.
func (c RequestCreator[P, R]) Create(payload ...P) Request[P, R] {
	r := Request[P, R]{Type: c.typ}
	if len(payload) > 0 {
		r.Payload = payload[0]
		r.hasPayload = true
	}

	return r
}

func (c RequestCreator[P, R]) Type() string   { return c.typ }
func (c RequestCreator[P, R]) String() string { return c.typ }

// ActionCreator produces actions of a single type bound to one handler.
// It satisfies Binding, so it can be registered directly.
type ActionCreator[P, R any] struct {
	typ     string
	handler Handler[P, R]
}

var _ Binding = ActionCreator[struct{}, struct{}]{}

// CreateAction returns a creator for actions of the given type.
func CreateAction[P, R any](typ string, handler Handler[P, R]) ActionCreator[P, R] {
	return ActionCreator[P, R]{typ: typ, handler: handler}
}

// CreateFromRequest returns an action creator sharing the request creator's type.
func CreateFromRequest[P, R any](rc RequestCreator[P, R], handler Handler[P, R]) ActionCreator[P, R] {
	return ActionCreator[P, R]{typ: rc.Type(), handler: handler}
}

// Create builds an action. The payload is optional; only the first value is used.
func (c ActionCreator[P, R]) Create(payload ...P) Action[P, R] {
	a := Action[P, R]{Type: c.typ, Handler: c.handler}
	if len(payload) > 0 {
		a.Payload = payload[0]
	}

	return a
}

func (c ActionCreator[P, R]) Type() string   { return c.typ }
func (c ActionCreator[P, R]) String() string { return c.typ }

// Invoke instantiates the action and runs its handler on a decoded payload.
func (c ActionCreator[P, R]) Invoke(ctx context.Context, payload any, sender *port.Sender) (any, error) {
	a := c.Create()
	if a.Handler == nil {
		return nil, errNoHandler(a.Type)
	}

	p, err := decodeAs[P](payload)
	if err != nil {
		return nil, decodeError("payload", a.Type, err)
	}

	return a.Handler(ctx, p, sender)
}
