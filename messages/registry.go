package messages

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
	"github.com/next-trace/scg-port-bus/contract/port"
	"github.com/next-trace/scg-port-bus/event"
)

// Binding is anything a Registry can serve: a port name and the function
// that answers the first message received on it.
type Binding interface {
	Type() string
	Invoke(ctx context.Context, payload any, sender *port.Sender) (any, error)
}

type bindingFunc struct {
	typ string
	fn  func(ctx context.Context, payload any, sender *port.Sender) (any, error)
}

func (b bindingFunc) Type() string { return b.typ }

func (b bindingFunc) Invoke(ctx context.Context, payload any, sender *port.Sender) (any, error) {
	return b.fn(ctx, payload, sender)
}

// BindingOf builds an untyped Binding. The payload is passed as received from the host.
func BindingOf(typ string, fn func(ctx context.Context, payload any, sender *port.Sender) (any, error)) Binding {
	return bindingFunc{typ: typ, fn: fn}
}

// Listener is the handle returned by Register; pass it to Unregister.
type Listener struct {
	typ string
	sub *event.Subscription[port.Port]
}

// Type returns the port name the listener serves.
func (l *Listener) Type() string { return l.typ }

// Registry owns the responder's registrations on a host's connect event.
// Registrations stay active until Unregister or Close. Two registrations for
// the same type coexist and both see matching ports.
type Registry struct {
	host     port.Host
	logger   *slog.Logger
	settings settings

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listeners map[*Listener]struct{}
}

// NewRegistry constructs a Registry over host. A nil logger disables logging.
func NewRegistry(host port.Host, logger *slog.Logger, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		host:      host,
		logger:    orDiscard(logger),
		settings:  applyOptions(opts),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[*Listener]struct{}),
	}
}

// Register starts serving ports named b.Type().
func (r *Registry) Register(b Binding) (*Listener, error) {
	if r.host == nil {
		return nil, fmt.Errorf("register %s: %w", b.Type(), berr.ErrHostNotConfigured)
	}

	if err := r.ctx.Err(); err != nil {
		return nil, fmt.Errorf("register %s: %w", b.Type(), err)
	}

	l := &Listener{typ: b.Type()}
	l.sub = r.host.OnConnect().Subscribe(func(p port.Port) { r.onConnect(b, p) })

	r.mu.Lock()
	r.listeners[l] = struct{}{}
	r.mu.Unlock()

	r.logger.Debug("listening", "type", l.typ)

	return l, nil
}

// Unregister stops a registration. Ports already accepted are still served.
// It reports whether l was registered.
func (r *Registry) Unregister(l *Listener) bool {
	if l == nil {
		return false
	}

	r.mu.Lock()
	_, ok := r.listeners[l]
	delete(r.listeners, l)
	r.mu.Unlock()

	l.sub.Unsubscribe()
	r.logger.Debug("removing listener", "type", l.typ)

	return ok
}

// Len reports the number of active registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.listeners)
}

// Close removes every registration and cancels in-flight handler contexts.
func (r *Registry) Close() error {
	r.mu.Lock()
	all := make([]*Listener, 0, len(r.listeners))

	for l := range r.listeners {
		all = append(all, l)
	}
	r.mu.Unlock()

	for _, l := range all {
		r.Unregister(l)
	}

	r.cancel()

	return nil
}

// Listen registers an action creator; it is Register with the typed creator.
func Listen[P, R any](r *Registry, ac ActionCreator[P, R]) (*Listener, error) {
	return r.Register(ac)
}

// StopListening is Unregister.
func StopListening(r *Registry, l *Listener) bool {
	return r.Unregister(l)
}

func (r *Registry) onConnect(b Binding, p port.Port) {
	if p.Name() != b.Type() {
		return
	}

	ctx, cancel := context.WithCancel(r.ctx)
	s := &session{r: r, b: b, p: p, ctx: ctx, cancel: cancel}

	s.mu.Lock()
	s.msg = p.OnMessage().Once(s.onMessage)
	s.disc = p.OnDisconnect().Once(s.onDisconnect)
	s.mu.Unlock()

	r.logger.Debug("adding listener for port", "port", p.Name())
}

// session serves exactly one message on one accepted port.
type session struct {
	r      *Registry
	b      Binding
	p      port.Port
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	msg  *event.Subscription[any]
	disc *event.Subscription[port.Disconnect]
}

func (s *session) onMessage(payload any) {
	go s.serve(payload)
}

// onDisconnect handles an initiator that went away before being served.
func (s *session) onDisconnect(d port.Disconnect) {
	s.r.logger.Debug("disconnect detected, removing listeners", "port", s.p.Name(), "err", d.Err)
	s.cancel()

	s.mu.Lock()
	msg := s.msg
	s.mu.Unlock()
	msg.Unsubscribe()
}

func (s *session) serve(payload any) {
	defer s.finish()

	resp, err := s.invoke(payload)
	if err != nil {
		s.r.logger.Error("handler failed", "type", s.b.Type(), "err", err)
		return
	}

	if s.r.settings.suppressEmptyReply && isEmpty(resp) {
		s.r.logger.Debug("no response owed", "type", s.b.Type())
		return
	}

	if err := s.p.PostMessage(resp); err != nil {
		s.r.logger.Error("error posting response", "type", s.b.Type(), "err", err)
		return
	}

	s.r.logger.Debug("listener completed", "port", s.p.Name())
}

func (s *session) invoke(payload any) (resp any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler %s panic: %v: %w", s.b.Type(), rec, berr.ErrHandlerFailed)
		}
	}()

	return s.b.Invoke(s.ctx, payload, s.p.Sender())
}

func (s *session) finish() {
	s.r.logger.Debug("disconnecting port and removing listener", "port", s.p.Name())
	s.p.Disconnect()

	s.mu.Lock()
	msg, disc := s.msg, s.disc
	s.mu.Unlock()

	msg.Unsubscribe()
	disc.Unsubscribe()
	s.cancel()
}
