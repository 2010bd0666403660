package port

import "context"

// HeaderPropagator copies request-scoped values, such as trace context, into
// the headers of frames a host sends across a process boundary.
// Implementations must be safe for concurrent use.
type HeaderPropagator interface {
	Inject(ctx context.Context, headers map[string]string)
}

// PropagatorFunc adapts a plain function to HeaderPropagator.
type PropagatorFunc func(ctx context.Context, headers map[string]string)

func (f PropagatorFunc) Inject(ctx context.Context, headers map[string]string) { f(ctx, headers) }

// NopHeaderPropagator leaves headers untouched.
type NopHeaderPropagator struct{}

func (NopHeaderPropagator) Inject(context.Context, map[string]string) {}
