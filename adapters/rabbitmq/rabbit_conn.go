package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

// Concrete AMQP connection-backed constructor with auto-reconnect.

type Config struct {
	URL         string
	ConnTimeout time.Duration
	Logger      *slog.Logger
}

type reconnectingConn struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	subs   map[*subscription]struct{}
	closed chan struct{}
	ready  chan struct{} // closed when a channel is ready
}

type subscription struct {
	queue string
	fn    func(body []byte, headers map[string]string)
	ch    *amqp.Channel
}

func newReconnectingConn(cfg Config) (*reconnectingConn, func()) {
	rc := &reconnectingConn{
		cfg:    cfg,
		logger: cfg.Logger,
		subs:   make(map[*subscription]struct{}),
		closed: make(chan struct{}),
		ready:  make(chan struct{}),
	}
	if rc.logger == nil {
		rc.logger = slog.New(slog.DiscardHandler)
	}

	go rc.run()

	return rc, rc.close
}

func (rc *reconnectingConn) waitChannel(ctx context.Context) (*amqp.Channel, error) {
	rc.mu.RLock()
	ch, ready := rc.ch, rc.ready
	rc.mu.RUnlock()

	if ch != nil {
		return ch, nil
	}

	select {
	case <-ready:
	case <-rc.closed:
		return nil, fmt.Errorf("%w: rabbitmq connection closed", berr.ErrTransmissionFailed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	rc.mu.RLock()
	ch = rc.ch
	rc.mu.RUnlock()

	if ch == nil {
		return nil, fmt.Errorf("%w: rabbitmq not connected", berr.ErrTransmissionFailed)
	}

	return ch, nil
}

func (rc *reconnectingConn) Publish(ctx context.Context, m PubMsg) error {
	ch, err := rc.waitChannel(ctx)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			Headers:     toTable(m.Headers),
			ContentType: "application/json",
			Body:        m.Body,
		},
	)
}

// Consume registers a subscription that survives reconnects. If the
// connection is up the queue is declared immediately.
func (rc *reconnectingConn) Consume(queue string, fn func([]byte, map[string]string)) (func() error, error) {
	s := &subscription{queue: queue, fn: fn}

	rc.mu.Lock()
	rc.subs[s] = struct{}{}
	conn := rc.conn
	rc.mu.Unlock()

	if conn != nil {
		if err := rc.start(conn, s); err != nil {
			rc.mu.Lock()
			delete(rc.subs, s)
			rc.mu.Unlock()

			return nil, err
		}
	}

	var once sync.Once

	return func() error {
		var err error

		once.Do(func() {
			rc.mu.Lock()
			delete(rc.subs, s)
			ch := s.ch
			s.ch = nil
			rc.mu.Unlock()

			if ch != nil {
				err = ch.Close()
			}
		})

		return err
	}, nil
}

func (rc *reconnectingConn) start(conn *amqp.Connection, s *subscription) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(s.queue, false, true, true, false, nil); err != nil {
		_ = ch.Close()
		return err
	}

	deliveries, err := ch.Consume(s.queue, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return err
	}

	rc.mu.Lock()
	s.ch = ch
	rc.mu.Unlock()

	go func() {
		for d := range deliveries {
			s.fn(d.Body, fromTable(d.Headers))
		}
	}()

	return nil
}

func (rc *reconnectingConn) run() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // non-crypto RNG is acceptable for backoff jitter

	reconnect := func() (*amqp.Connection, *amqp.Channel, error) {
		conn, err := amqp.DialConfig(rc.cfg.URL, amqp.Config{
			Locale:     "en_US",
			Properties: amqp.Table{"product": "scg-port-bus"},
			Dial:       amqp.DefaultDial(rc.cfg.ConnTimeout),
		})
		if err != nil {
			return nil, nil, err
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}

		return conn, ch, nil
	}

	for {
		select {
		case <-rc.closed:
			return
		default:
		}

		conn, ch, err := reconnect()
		if err != nil {
			rc.logger.Warn("rabbitmq connect failed", "err", err, "backoff", backoff)
			// exponential backoff with jitter
			jitter := time.Duration(rng.Int63n(int64(backoff / 2)))
			sleep := min(backoff+jitter/2, maxBackoff)

			t := time.NewTimer(sleep)
			select {
			case <-rc.closed:
				t.Stop()
				return
			case <-t.C:
			}

			backoff = min(backoff*2, maxBackoff)

			continue
		}

		backoff = time.Second

		rc.mu.Lock()
		rc.conn = conn
		rc.ch = ch
		close(rc.ready)

		subs := make([]*subscription, 0, len(rc.subs))
		for s := range rc.subs {
			subs = append(subs, s)
		}
		rc.mu.Unlock()

		for _, s := range subs {
			if err := rc.start(conn, s); err != nil {
				rc.logger.Error("rabbitmq resubscribe failed", "queue", s.queue, "err", err)
			}
		}

		// Block on connection close notifications to trigger reconnect
		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-rc.closed:
			return
		case <-notify:
			rc.mu.Lock()
			rc.conn, rc.ch = nil, nil
			rc.ready = make(chan struct{})
			rc.mu.Unlock()

			_ = ch.Close()
			_ = conn.Close()
		}
	}
}

func (rc *reconnectingConn) close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	select {
	case <-rc.closed:
		return
	default:
		close(rc.closed)
	}

	if rc.ch != nil {
		_ = rc.ch.Close()
		rc.ch = nil
	}

	if rc.conn != nil {
		_ = rc.conn.Close()
		rc.conn = nil
	}
}

// NewWithAMQPConn dials RabbitMQ with auto-reconnect and returns an Adapter and cleanup.
func NewWithAMQPConn(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrConnectFailed)
	}

	rc, cleanup := newReconnectingConn(cfg)

	return New(rc, rc), cleanup, nil
}
