package messages

import (
	"log/slog"

	"github.com/next-trace/scg-port-bus/contract/port"
)

// Messages is a thin facade that sends and serves requests over one host.
type Messages struct {
	*Messenger
	*Registry
}

// New constructs a Messages facade over host. A nil logger disables logging.
func New(host port.Host, logger *slog.Logger, opts ...Option) *Messages {
	return &Messages{
		Messenger: NewMessenger(host, logger),
		Registry:  NewRegistry(host, logger, opts...),
	}
}
