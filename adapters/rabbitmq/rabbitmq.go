package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"maps"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-port-bus/adapters/bridge"
	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

type PubMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Consumer delivers the bodies published to queue until the returned
// function is called.
type Consumer interface {
	Consume(queue string, fn func(body []byte, headers map[string]string)) (cancel func() error, err error)
}

type Adapter struct {
	Publisher Publisher
	Consumer  Consumer
}

var _ bridge.Broker = (*Adapter)(nil)

func New(p Publisher, c Consumer) *Adapter { return &Adapter{Publisher: p, Consumer: c} }

func (a *Adapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return fmt.Errorf("rabbitmq publish: %w", berr.ErrHostNotConfigured)
	}

	// copy headers to avoid mutating caller-provided map
	msg := PubMsg{
		Exchange:   "",
		RoutingKey: subject,
		Body:       data,
		Headers:    maps.Clone(headers),
	}

	if err := a.Publisher.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq publish %s: %w", subject, errors.Join(berr.ErrTransmissionFailed, err))
	}

	return nil
}

func (a *Adapter) Subscribe(subject string, fn func(data []byte, headers map[string]string)) (func() error, error) {
	if a.Consumer == nil {
		return nil, fmt.Errorf("rabbitmq subscribe: %w", berr.ErrHostNotConfigured)
	}

	cancel, err := a.Consumer.Consume(subject, fn)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq subscribe %s: %w", subject, errors.Join(berr.ErrConnectFailed, err))
	}

	return cancel, nil
}

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}

	h := amqp.Table{}
	for k, v := range headers {
		h[k] = v
	}

	return h
}

func fromTable(t amqp.Table) map[string]string {
	if len(t) == 0 {
		return nil
	}

	out := make(map[string]string, len(t))
	for k, v := range t {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}

	return out
}

type amqpChannelPublisher struct{ ch *amqp.Channel }

func (p amqpChannelPublisher) Publish(ctx context.Context, m PubMsg) error {
	return p.ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			Headers:     toTable(m.Headers),
			Body:        m.Body,
			ContentType: "application/json",
		},
	)
}

// NewWithAMQPChannel builds an Adapter on a channel the caller manages.
// Only publishing is available; use NewWithAMQPConn to subscribe.
func NewWithAMQPChannel(ch *amqp.Channel) *Adapter {
	return &Adapter{Publisher: amqpChannelPublisher{ch: ch}}
}
