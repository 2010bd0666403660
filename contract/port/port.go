package port

import (
	"context"

	"github.com/next-trace/scg-port-bus/event"
)

// Sender identifies the execution context on the far side of a port.
type Sender struct {
	ID     string `json:"id"`
	Target string `json:"target,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Disconnect is delivered by Port.OnDisconnect. Err carries the host's
// last-error signal for this disconnect and is nil when the peer closed normally.
type Disconnect struct {
	Port Port
	Err  error
}

// Port is a named, bidirectional pipe between two execution contexts.
// Calling Disconnect on one side fires OnDisconnect on the other side only.
// Implementations must be safe for concurrent use.
type Port interface {
	Name() string
	// Sender is nil on the side that opened the port.
	Sender() *Sender
	// PostMessage transmits v to the peer. Values the host cannot serialize
	// are rejected with an error; PostMessage never panics.
	PostMessage(v any) error
	Disconnect()
	OnMessage() *event.Event[any]
	OnDisconnect() *event.Event[Disconnect]
}

// Host opens ports and announces ports opened by other contexts.
type Host interface {
	// Connect opens a port named name to the host's default destination.
	Connect(ctx context.Context, name string) (Port, error)
	// ConnectTo opens a port named name to a specific execution context.
	ConnectTo(ctx context.Context, target, name string) (Port, error)
	// OnConnect fires for every port opened towards this context.
	OnConnect() *event.Event[Port]
}
