package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
	"github.com/next-trace/scg-port-bus/contract/port"
)

// Messenger is the initiator side: it opens one port per request and waits
// for a single reply. Messenger holds no per-request state and is safe for
// concurrent use.
type Messenger struct {
	host   port.Host
	logger *slog.Logger
}

// NewMessenger constructs a Messenger over host. A nil logger disables logging.
func NewMessenger(host port.Host, logger *slog.Logger) *Messenger {
	return &Messenger{host: host, logger: orDiscard(logger)}
}

// Request sends payload on a new port named typ to the host's default
// destination and returns the first value received on it.
//
// The wait ends on the first reply, on a disconnect (ErrAbnormalDisconnect
// or ErrNoResponse) or when ctx is done. A failed post surfaces as
// ErrTransmissionFailed.
func (m *Messenger) Request(ctx context.Context, typ string, payload any) (any, error) {
	return m.request(ctx, "", typ, payload)
}

// RequestTo is Request addressed at a specific execution context.
func (m *Messenger) RequestTo(ctx context.Context, target, typ string, payload any) (any, error) {
	if target == "" {
		return nil, fmt.Errorf("request %s: empty target: %w", typ, berr.ErrConnectFailed)
	}

	return m.request(ctx, target, typ, payload)
}

func (m *Messenger) request(ctx context.Context, target, typ string, payload any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.host == nil {
		return nil, fmt.Errorf("request %s: %w", typ, berr.ErrHostNotConfigured)
	}

	var (
		p   port.Port
		err error
	)

	if target == "" {
		p, err = m.host.Connect(ctx, typ)
	} else {
		p, err = m.host.ConnectTo(ctx, target, typ)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("request %s connect: %w", typ, errors.Join(berr.ErrConnectFailed, err))
	}

	return newCall(typ, p, m.logger).run(ctx, payload)
}

// Send is the typed form of Messenger.Request.
func Send[P, R any](ctx context.Context, m *Messenger, req Request[P, R]) (Reply[R], error) {
	v, err := m.Request(ctx, req.Type, req.payload())
	if err != nil {
		return Reply[R]{}, err
	}

	return decodeReply[R](req.Type, v)
}

// SendTo is the typed form of Messenger.RequestTo.
func SendTo[P, R any](ctx context.Context, m *Messenger, target string, req Request[P, R]) (Reply[R], error) {
	v, err := m.RequestTo(ctx, target, req.Type, req.payload())
	if err != nil {
		return Reply[R]{}, err
	}

	return decodeReply[R](req.Type, v)
}
