package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
	"github.com/next-trace/scg-port-bus/contract/port"
	"github.com/next-trace/scg-port-bus/event"
)

type callState int32

const (
	stateOpen callState = iota
	stateAwaitingReply
	stateSettled
)

func (s callState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateAwaitingReply:
		return "awaiting_reply"
	case stateSettled:
		return "settled"
	default:
		return fmt.Sprintf("callState(%d)", int32(s))
	}
}

// call is one request/response exchange over a single port.
// The first message settles it; a disconnect after that is a no-op.
type call struct {
	typ    string
	p      port.Port
	logger *slog.Logger

	state atomic.Int32
	done  chan struct{}
	value any
	err   error

	mu   sync.Mutex
	msg  *event.Subscription[any]
	disc *event.Subscription[port.Disconnect]
}

func newCall(typ string, p port.Port, logger *slog.Logger) *call {
	return &call{typ: typ, p: p, logger: logger, done: make(chan struct{})}
}

func (c *call) current() callState { return callState(c.state.Load()) }

// run attaches both observers before anything is posted, so a fast reply or
// disconnect cannot be missed.
func (c *call) run(ctx context.Context, payload any) (any, error) {
	c.mu.Lock()
	c.disc = c.p.OnDisconnect().Once(c.onDisconnect)
	c.msg = c.p.OnMessage().Once(c.onMessage)
	c.mu.Unlock()

	c.state.CompareAndSwap(int32(stateOpen), int32(stateAwaitingReply))

	if err := c.p.PostMessage(payload); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.settle(nil, err)
		} else {
			c.settle(nil, fmt.Errorf("request %s post: %w", c.typ, errors.Join(berr.ErrTransmissionFailed, err)))
		}

		c.release()
		c.p.Disconnect()
	}

	select {
	case <-c.done:
	case <-ctx.Done():
		if c.settle(nil, ctx.Err()) {
			c.logger.Debug("request abandoned, disconnecting port", "type", c.typ, "err", ctx.Err())
			c.p.Disconnect()
		}

		<-c.done
	}

	c.release()

	return c.value, c.err
}

// settle moves the call to Settled exactly once and publishes the outcome.
func (c *call) settle(v any, err error) bool {
	for {
		cur := c.state.Load()
		if callState(cur) == stateSettled {
			return false
		}

		if c.state.CompareAndSwap(cur, int32(stateSettled)) {
			break
		}
	}

	c.value, c.err = v, err
	close(c.done)

	return true
}

func (c *call) onMessage(v any) {
	c.logger.Debug("removing onMessage listener", "type", c.typ)

	if !c.settle(v, nil) {
		c.logger.Debug("reply after settle ignored", "type", c.typ, "state", c.current())
	}
}

func (c *call) onDisconnect(d port.Disconnect) {
	c.logger.Debug("removing onDisconnect listener", "type", c.typ)

	var err error
	if d.Err != nil {
		err = fmt.Errorf("request %s: %w", c.typ, errors.Join(berr.ErrAbnormalDisconnect, d.Err))
	} else {
		err = fmt.Errorf("request %s: port closed before reply: %w", c.typ, berr.ErrNoResponse)
	}

	c.settle(nil, err)

	c.mu.Lock()
	msg := c.msg
	c.mu.Unlock()
	msg.Unsubscribe()
}

func (c *call) release() {
	c.mu.Lock()
	msg, disc := c.msg, c.disc
	c.mu.Unlock()

	msg.Unsubscribe()
	disc.Unsubscribe()
}
