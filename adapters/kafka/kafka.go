package kafka

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/next-trace/scg-port-bus/adapters/bridge"
	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

// Writer is a minimal Kafka-like writer interface.
// Users can adapt segmentio/kafka-go or any other client to this.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Reader consumes new records of one topic until the returned function is called.
// Records must be handed to fn in partition order.
type Reader interface {
	Read(topic string, fn func(value []byte, headers map[string]string)) (stop func() error, err error)
}

// Adapter carries bridge frames as Kafka records: one topic per subject,
// keyed by subject so a subject's frames stay on one partition.
type Adapter struct {
	Writer Writer
	Reader Reader
}

var _ bridge.Broker = (*Adapter)(nil)

// New creates a new Kafka adapter instance with the provided writer and reader.
func New(w Writer, r Reader) *Adapter { return &Adapter{Writer: w, Reader: r} }

func (a *Adapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return fmt.Errorf("kafka publish: %w", berr.ErrHostNotConfigured)
	}

	if err := a.Writer.Write(ctx, subject, []byte(subject), data, maps.Clone(headers)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// separate return from preceding multi-line block (wsl)
		return fmt.Errorf("kafka publish write: %w", errors.Join(berr.ErrTransmissionFailed, err))
	}

	return nil
}

func (a *Adapter) Subscribe(subject string, fn func(data []byte, headers map[string]string)) (func() error, error) {
	if a.Reader == nil {
		return nil, fmt.Errorf("kafka subscribe: %w", berr.ErrHostNotConfigured)
	}

	stop, err := a.Reader.Read(subject, fn)
	if err != nil {
		return nil, fmt.Errorf("kafka subscribe %s: %w", subject, errors.Join(berr.ErrConnectFailed, err))
	}

	return stop, nil
}
