package inmemory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/next-trace/scg-port-bus/contract/port"
	"github.com/next-trace/scg-port-bus/event"
)

// DefaultTarget is the endpoint Connect addresses when no other default is configured.
const DefaultTarget = "background"

// Hub is an in-process host shared by several execution contexts.
// Hub is concurrency-safe and contains no global state.
type Hub struct {
	loop *loop

	mu        sync.Mutex
	endpoints map[string]*Endpoint

	defaultTarget string
	logger        *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithDefaultTarget sets the endpoint that Connect opens ports to.
func WithDefaultTarget(id string) Option {
	return func(h *Hub) { h.defaultTarget = id }
}

// WithLogger sets the hub logger. A nil logger disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub starts a hub and its event loop. Call Close to stop it.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		loop:          newLoop(),
		endpoints:     make(map[string]*Endpoint),
		defaultTarget: DefaultTarget,
	}

	for _, o := range opts {
		o(h)
	}

	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}

	return h
}

// Endpoint returns the execution context registered under id, creating it on first use.
func (h *Hub) Endpoint(id string) *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ep, ok := h.endpoints[id]; ok && !ep.isClosed() {
		return ep
	}

	ep := &Endpoint{hub: h, id: id, ports: make(map[*Port]struct{})}
	h.endpoints[id] = ep

	return ep
}

func (h *Hub) lookup(id string) *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	ep, ok := h.endpoints[id]
	if !ok || ep.isClosed() {
		return nil
	}

	return ep
}

// Sync blocks until every event queued before the call has been delivered.
// Events queued while those are delivered, such as a disconnect raised from a
// connect listener, may still be pending when Sync returns.
func (h *Hub) Sync() {
	done := make(chan struct{})
	if !h.loop.post(func() { close(done) }) {
		return
	}

	<-done
}

// Close drains pending events and stops the event loop.
func (h *Hub) Close() {
	h.loop.close()
}

// post reports false when the hub is closed and fn was dropped.
func (h *Hub) post(fn func()) bool {
	if !h.loop.post(fn) {
		h.logger.Debug("hub closed, dropping event")
		return false
	}

	return true
}

// Endpoint is one execution context attached to a Hub.
type Endpoint struct {
	hub *Hub
	id  string
	url string

	onConnect event.Event[port.Port]

	mu     sync.Mutex
	ports  map[*Port]struct{}
	closed bool
}

var _ port.Host = (*Endpoint)(nil)

// ID returns the endpoint identifier, usable as a ConnectTo target.
func (e *Endpoint) ID() string { return e.id }

// SetURL sets the URL reported in the Sender of ports opened from this endpoint.
func (e *Endpoint) SetURL(u string) { e.url = u }

// OnConnect fires for every port opened towards this endpoint.
func (e *Endpoint) OnConnect() *event.Event[port.Port] { return &e.onConnect }

// Connect opens a port to the hub's default target.
func (e *Endpoint) Connect(ctx context.Context, name string) (port.Port, error) {
	return e.ConnectTo(ctx, e.hub.defaultTarget, name)
}

// ConnectTo opens a port to the endpoint registered under target. The
// connection is announced to the target by the first PostMessage, so
// observers attached before posting see every event. When the target does
// not exist or nobody listens there, the port is then disconnected with
// ErrNoReceiver as the cause.
func (e *Endpoint) ConnectTo(ctx context.Context, target, name string) (port.Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	local := &Port{hub: e.hub, owner: e, name: name}
	e.track(local)

	dest := e.hub.lookup(target)
	if dest == nil {
		local.open = func() {
			e.hub.post(func() { local.receiveDisconnect(noReceiver(name)) })
		}

		return local, nil
	}

	remote := &Port{
		hub:    e.hub,
		owner:  dest,
		name:   name,
		sender: &port.Sender{ID: e.id, Target: e.id, URL: e.url},
	}

	local.peer = remote
	remote.peer = local

	local.open = func() {
		dest.track(remote)

		e.hub.post(func() {
			if remote.closed.Load() {
				return
			}

			if dest.onConnect.Emit(remote) == 0 {
				remote.closed.Store(true)
				dest.forget(remote)
				local.receiveDisconnect(noReceiver(name))
			}
		})
	}

	return local, nil
}

// Close unloads the endpoint: connect listeners are dropped and the peers
// of every open port observe a normal disconnect.
func (e *Endpoint) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	e.closed = true
	open := make([]*Port, 0, len(e.ports))

	for p := range e.ports {
		open = append(open, p)
	}
	e.mu.Unlock()

	e.onConnect.Clear()

	for _, p := range open {
		p.Disconnect()
	}
}

// OpenPorts reports how many ports owned by this endpoint are still connected.
func (e *Endpoint) OpenPorts() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.ports)
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.closed
}

func (e *Endpoint) track(p *Port) {
	e.mu.Lock()
	e.ports[p] = struct{}{}
	e.mu.Unlock()
}

func (e *Endpoint) forget(p *Port) {
	e.mu.Lock()
	delete(e.ports, p)
	e.mu.Unlock()
}
