// Package memory wires the messages facade to an in-process hub.
package memory

import (
	"log/slog"

	"github.com/next-trace/scg-port-bus/adapters/inmemory"
	"github.com/next-trace/scg-port-bus/messages"
)

// New returns a Messages facade for endpoint id on hub and a cleanup that
// drops its listeners and unloads the endpoint.
func New(hub *inmemory.Hub, id string, logger *slog.Logger, opts ...messages.Option) (*messages.Messages, func()) {
	ep := hub.Endpoint(id)
	m := messages.New(ep, logger, opts...)

	cleanup := func() {
		_ = m.Registry.Close()
		ep.Close()
	}

	return m, cleanup
}
