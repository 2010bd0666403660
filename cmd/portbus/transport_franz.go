//go:build franz

package main

import (
	"context"
	"log/slog"

	"github.com/next-trace/scg-port-bus/adapters/bridge"
	"github.com/next-trace/scg-port-bus/adapters/kafka"
	"github.com/next-trace/scg-port-bus/internal/config"
)

func init() {
	dialers[config.TransportKafka] = dialKafka
}

func dialKafka(_ context.Context, cfg *config.Config, _ *slog.Logger) (bridge.Broker, func(), error) {
	return kafka.NewWithKgo(kafka.Config{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: "portbus-" + cfg.Endpoint,
	})
}
