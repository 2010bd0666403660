//go:build franz

package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

// Concrete franz-go based constructor, writer and reader.

type SASLConfig struct {
	Mechanism string // not implemented yet; placeholder
	Username  string
	Password  string
}

type Config struct {
	Brokers     []string
	TLS         *tls.Config
	SASL        *SASLConfig
	Acks        kgo.Acks
	Idempotent  bool
	ClientID    string
	Compression kgo.CompressionType
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	if err := w.cl.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return wrapProduceErr(topic, err)
	}

	return nil
}

// kgoReader starts one consuming client per topic, positioned at the end:
// an inbox only cares about frames published after it subscribed.
type kgoReader struct{ base []kgo.Opt }

func (r kgoReader) Read(topic string, fn func([]byte, map[string]string)) (func() error, error) {
	opts := append(append([]kgo.Opt(nil), r.base...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			fetches := cl.PollFetches(ctx)
			if fetches.IsClientClosed() || ctx.Err() != nil {
				return
			}

			fetches.EachRecord(func(rec *kgo.Record) {
				var h map[string]string
				if len(rec.Headers) > 0 {
					h = make(map[string]string, len(rec.Headers))
					for _, rh := range rec.Headers {
						h[rh.Key] = string(rh.Value)
					}
				}

				fn(rec.Value, h)
			})
		}
	}()

	var once sync.Once

	return func() error {
		once.Do(func() {
			cancel()
			<-done
			cl.Close()
		})

		return nil
	}, nil
}

// NewWithKgo builds a franz-go client based Adapter. The returned cleanup should be called to close the client.
func NewWithKgo(cfg Config) (*Adapter, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", berr.ErrConnectFailed)
	}

	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...)}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	// Minimal SASL validation hook
	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		return nil, nil, fmt.Errorf("%w: SASL mechanism not configured in adapter", berr.ErrConnectFailed)
	}

	produce := append([]kgo.Opt(nil), opts...)
	produce = append(produce, kgo.AllowAutoTopicCreation())

	if cfg.Idempotent {
		if cfg.Compression != 0 {
			produce = append(produce, kgo.ProducerBatchCompression(cfg.Compression))
		}
	} else {
		produce = append(produce, kgo.DisableIdempotentWrite())
	}

	if cfg.Acks != (kgo.Acks{}) {
		produce = append(produce, kgo.RequiredAcks(cfg.Acks))
	}

	cl, err := kgo.NewClient(produce...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrConnectFailed, err)
	}

	ad := New(kgoWriter{cl: cl}, kgoReader{base: opts})
	cleanup := func() { cl.Close() }

	return ad, cleanup, nil
}

// wrapProduceErr keeps context errors bare, as the adapter does.
func wrapProduceErr(topic string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%w: kafka produce to %q: %w", berr.ErrTransmissionFailed, topic, err)
}
