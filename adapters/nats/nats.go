package nats

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/next-trace/scg-port-bus/adapters/bridge"
	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

// Client is a minimal NATS-like interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
	// Subscribe delivers messages for subject to fn, one at a time.
	Subscribe(subject string, fn func(data []byte, headers map[string]string)) (unsubscribe func() error, err error)
}

// Adapter carries bridge frames over an injected NATS-like Client.
type Adapter struct {
	Client Client
}

var _ bridge.Broker = (*Adapter)(nil)

// New creates a new NATS adapter instance with the provided client.
func New(c Client) *Adapter { return &Adapter{Client: c} }

func (a *Adapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	if err := a.ready(ctx, "publish"); err != nil {
		return err
	}

	if err := a.Client.Publish(subject, data, maps.Clone(headers)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats publish %s: %w", subject, errors.Join(berr.ErrTransmissionFailed, err))
	}

	return nil
}

func (a *Adapter) Subscribe(subject string, fn func(data []byte, headers map[string]string)) (func() error, error) {
	if a.Client == nil {
		return nil, fmt.Errorf("nats subscribe: %w", berr.ErrHostNotConfigured)
	}

	unsub, err := a.Client.Subscribe(subject, fn)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, errors.Join(berr.ErrConnectFailed, err))
	}

	return unsub, nil
}

func (a *Adapter) ready(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("nats %s: %w", label, berr.ErrHostNotConfigured)
	}

	return nil
}
