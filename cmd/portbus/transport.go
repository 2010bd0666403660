package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/next-trace/scg-port-bus/adapters/bridge"
	"github.com/next-trace/scg-port-bus/adapters/nats"
	"github.com/next-trace/scg-port-bus/adapters/rabbitmq"
	"github.com/next-trace/scg-port-bus/internal/config"
)

const dialTimeout = 5 * time.Second

// dialer connects the broker for one transport.
type dialer func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (bridge.Broker, func(), error)

// dialers is extended by build-tagged files.
var dialers = map[string]dialer{
	config.TransportInMemory: dialLoopback,
	config.TransportNATS:     dialNATS,
	config.TransportRabbitMQ: dialRabbitMQ,
}

// loopback is shared by every host in the process.
var loopback = bridge.NewLoopback()

func dialLoopback(context.Context, *config.Config, *slog.Logger) (bridge.Broker, func(), error) {
	return loopback, func() {}, nil
}

func dialNATS(_ context.Context, cfg *config.Config, _ *slog.Logger) (bridge.Broker, func(), error) {
	return nats.NewWithNATS(nats.Config{
		URL:         cfg.NATS.URL,
		Name:        cfg.NATS.Name,
		ConnTimeout: dialTimeout,
	})
}

func dialRabbitMQ(_ context.Context, cfg *config.Config, logger *slog.Logger) (bridge.Broker, func(), error) {
	return rabbitmq.NewWithAMQPConn(rabbitmq.Config{
		URL:         cfg.RabbitMQ.URL,
		ConnTimeout: dialTimeout,
		Logger:      logger,
	})
}

// openHost dials the configured broker and starts a host for endpoint.
func openHost(ctx context.Context, cfg *config.Config, endpoint string, logger *slog.Logger) (*bridge.Host, func(), error) {
	dial, ok := dialers[cfg.Transport]
	if !ok {
		return nil, nil, fmt.Errorf("transport %q is not available in this build", cfg.Transport)
	}

	b, cleanup, err := dial(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	h, err := bridge.New(b, bridge.Config{
		Endpoint:      endpoint,
		DefaultTarget: cfg.Target,
		Prefix:        cfg.Bridge.Prefix,
	}, bridge.WithLogger(logger))
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if err := h.Start(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	logger.Debug("host started", "transport", cfg.Transport, "inbox", h.Inbox())

	return h, func() {
		_ = h.Close()
		cleanup()
	}, nil
}
