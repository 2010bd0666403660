package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nuid"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
	"github.com/next-trace/scg-port-bus/contract/port"
	"github.com/next-trace/scg-port-bus/event"
)

const (
	DefaultPrefix = "portbus"

	headerKind = "portbus-kind"
	headerPort = "portbus-port"
)

// Broker is the transport a Host runs on. Subscribe must deliver messages
// for one subject sequentially and in publish order.
type Broker interface {
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error
	Subscribe(subject string, fn func(data []byte, headers map[string]string)) (unsubscribe func() error, err error)
}

// Config names this endpoint and the endpoint Connect addresses.
type Config struct {
	Endpoint      string
	DefaultTarget string
	Prefix        string
	URL           string
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger. A nil logger disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithPropagator injects tracing context into every frame's headers.
func WithPropagator(p port.HeaderPropagator) Option {
	return func(h *Host) { h.propagator = p }
}

// Host is a port.Host whose ports travel over a Broker.
type Host struct {
	broker     Broker
	cfg        Config
	logger     *slog.Logger
	propagator port.HeaderPropagator

	onConnect event.Event[port.Port]

	// dispatch serializes inbound frames, the way a single event loop would.
	dispatch sync.Mutex

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	unsub  func() error
	ports  map[string]*Port
	closed bool
}

var _ port.Host = (*Host)(nil)

// New validates cfg and returns an unstarted host.
func New(b Broker, cfg Config, opts ...Option) (*Host, error) {
	if b == nil {
		return nil, fmt.Errorf("bridge: broker required: %w", berr.ErrHostNotConfigured)
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("bridge: endpoint required: %w", berr.ErrHostNotConfigured)
	}

	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}

	h := &Host{
		broker:     b,
		cfg:        cfg,
		propagator: port.NopHeaderPropagator{},
		ports:      make(map[string]*Port),
		ctx:        context.Background(),
	}

	for _, o := range opts {
		o(h)
	}

	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}

	return h, nil
}

// Inbox returns the subject the endpoint receives frames on.
func (h *Host) Inbox() string { return h.inbox(h.cfg.Endpoint) }

func (h *Host) inbox(endpoint string) string { return h.cfg.Prefix + "." + endpoint }

// Start subscribes the endpoint inbox. Frames are handled until Close or
// until ctx is done.
func (h *Host) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("bridge start: %w", berr.ErrPortClosed)
	}

	if h.unsub != nil {
		return nil
	}

	unsub, err := h.broker.Subscribe(h.Inbox(), h.receive)
	if err != nil {
		return fmt.Errorf("bridge subscribe %s: %w", h.Inbox(), errors.Join(berr.ErrConnectFailed, err))
	}

	h.ctx, h.cancel = context.WithCancel(context.WithoutCancel(ctx))
	h.unsub = unsub

	go func() {
		select {
		case <-ctx.Done():
			_ = h.Close()
		case <-h.ctx.Done():
		}
	}()

	h.logger.Debug("bridge started", "inbox", h.Inbox())

	return nil
}

// Close unsubscribes the inbox and disconnects every open port.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}

	h.closed = true
	unsub, cancel := h.unsub, h.cancel

	open := make([]*Port, 0, len(h.ports))
	for _, p := range h.ports {
		open = append(open, p)
	}
	h.mu.Unlock()

	h.onConnect.Clear()

	for _, p := range open {
		p.Disconnect()
	}

	var err error
	if unsub != nil {
		err = unsub()
	}

	if cancel != nil {
		cancel()
	}

	return err
}

// OpenPorts reports how many ports are still routed through this host.
func (h *Host) OpenPorts() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.ports)
}

func (h *Host) OnConnect() *event.Event[port.Port] { return &h.onConnect }

func (h *Host) Connect(ctx context.Context, name string) (port.Port, error) {
	if h.cfg.DefaultTarget == "" {
		return nil, fmt.Errorf("bridge connect %s: no default target: %w", name, berr.ErrConnectFailed)
	}

	return h.ConnectTo(ctx, h.cfg.DefaultTarget, name)
}

// ConnectTo opens a port to endpoint target. The open frame is published
// with the first PostMessage.
func (h *Host) ConnectTo(ctx context.Context, target, name string) (port.Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("bridge connect %s: %w", name, berr.ErrPortClosed)
	}

	if h.unsub == nil {
		return nil, fmt.Errorf("bridge connect %s: host not started: %w", name, berr.ErrConnectFailed)
	}

	p := &Port{
		host:   h,
		id:     nuid.Next(),
		name:   name,
		opener: true,
		remote: h.inbox(target),
	}
	h.ports[openerKey(p.id)] = p

	return p, nil
}

func (h *Host) receive(data []byte, _ map[string]string) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		h.logger.Warn("dropping malformed frame", "inbox", h.Inbox(), "err", err)
		return
	}

	h.dispatch.Lock()
	defer h.dispatch.Unlock()

	switch f.Kind {
	case kindOpen:
		h.accept(f)
	case kindMsg:
		if p := h.lookup(f.route()); p != nil {
			p.receiveMessage(f.Data)
		}
	case kindClose:
		if p := h.lookup(f.route()); p != nil {
			p.receiveDisconnect(f.cause())
		}
	default:
		h.logger.Warn("dropping frame of unknown kind", "kind", f.Kind)
	}
}

func (h *Host) accept(f frame) {
	p := &Port{
		host:   h,
		id:     f.Port,
		name:   f.Name,
		remote: f.ReplyTo,
		sender: f.Sender,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}

	h.ports[responderKey(p.id)] = p
	h.mu.Unlock()

	if h.onConnect.Emit(p) > 0 {
		return
	}

	h.logger.Debug("no receiver for port", "port", f.Name, "from", f.ReplyTo)
	p.fail(fmt.Errorf("could not establish connection for %q: receiving end does not exist: %w", f.Name, berr.ErrNoReceiver))
}

func (h *Host) lookup(key string) *Port {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.ports[key]
}

func (h *Host) forget(p *Port) {
	key := responderKey(p.id)
	if p.opener {
		key = openerKey(p.id)
	}

	h.mu.Lock()
	delete(h.ports, key)
	h.mu.Unlock()
}

func (h *Host) context() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.ctx
}

func (h *Host) publish(subject string, f frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("bridge %s serialize: %w", f.Kind, errors.Join(berr.ErrSerializationFailed, err))
	}

	ctx := h.context()
	headers := map[string]string{headerKind: string(f.Kind), headerPort: f.Port}
	h.propagator.Inject(ctx, headers)

	if err := h.broker.Publish(ctx, subject, body, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("bridge %s publish %s: %w", f.Kind, subject, errors.Join(berr.ErrTransmissionFailed, err))
	}

	return nil
}
