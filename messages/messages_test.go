package messages_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/next-trace/scg-port-bus/adapters/inmemory"
	berr "github.com/next-trace/scg-port-bus/contract/errors"
	"github.com/next-trace/scg-port-bus/contract/port"
	"github.com/next-trace/scg-port-bus/messages"
)

type fixture struct {
	hub        *inmemory.Hub
	content    *inmemory.Endpoint
	background *inmemory.Endpoint
	messenger  *messages.Messenger
	registry   *messages.Registry
}

func newFixture(t *testing.T, opts ...messages.Option) *fixture {
	t.Helper()

	hub := inmemory.NewHub()
	f := &fixture{
		hub:        hub,
		content:    hub.Endpoint("content"),
		background: hub.Endpoint(inmemory.DefaultTarget),
	}

	f.messenger = messages.NewMessenger(f.content, nil)
	f.registry = messages.NewRegistry(f.background, nil, opts...)

	t.Cleanup(func() {
		_ = f.registry.Close()
		hub.Close()
	})

	return f
}

// accepted records every port the background endpoint receives.
func (f *fixture) accepted() func() []*inmemory.Port {
	var (
		mu    sync.Mutex
		ports []*inmemory.Port
	)

	f.background.OnConnect().Subscribe(func(p port.Port) {
		mu.Lock()
		ports = append(ports, p.(*inmemory.Port))
		mu.Unlock()
	})

	return func() []*inmemory.Port {
		mu.Lock()
		defer mu.Unlock()

		return append([]*inmemory.Port(nil), ports...)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func bump(_ context.Context, p ping, _ *port.Sender) (pong, error) {
	return pong{N: p.N + 1}, nil
}

func TestRoundTrip_ReplyAndTeardown(t *testing.T) {
	f := newFixture(t)
	ports := f.accepted()

	if _, err := messages.Listen(f.registry, messages.CreateAction("ping", bump)); err != nil {
		t.Fatalf("listen: %v", err)
	}

	rc := messages.CreateRequest[ping, pong]("ping")

	reply, err := messages.Send(t.Context(), f.messenger, rc.Create(ping{N: 1}))
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if reply.Value.N != 2 || reply.Failed() {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	waitFor(t, "both sides closed", func() bool {
		return f.content.OpenPorts() == 0 && f.background.OpenPorts() == 0
	})

	accepted := ports()
	if len(accepted) != 1 {
		t.Fatalf("want 1 accepted port, got %d", len(accepted))
	}

	remote := accepted[0]
	if !remote.Closed() {
		t.Fatalf("responder port still open")
	}

	waitFor(t, "responder observers detached", func() bool {
		return remote.OnMessage().Len() == 0 && remote.OnDisconnect().Len() == 0
	})
}

func TestRequest_InitiatorObserversDetached(t *testing.T) {
	f := newFixture(t)

	if _, err := f.registry.Register(messages.CreateAction("ping", bump)); err != nil {
		t.Fatalf("register: %v", err)
	}

	var opened []port.Port

	host := &recordingHost{Host: f.content, opened: &opened}
	m := messages.NewMessenger(host, nil)

	if _, err := m.Request(t.Context(), "ping", ping{N: 1}); err != nil {
		t.Fatalf("request: %v", err)
	}

	if len(opened) != 1 {
		t.Fatalf("want one port, got %d", len(opened))
	}

	p := opened[0]
	if p.OnMessage().Len() != 0 || p.OnDisconnect().Len() != 0 {
		t.Fatalf("initiator observers left: msg=%d disc=%d", p.OnMessage().Len(), p.OnDisconnect().Len())
	}
}

type recordingHost struct {
	port.Host
	opened *[]port.Port
}

func (h *recordingHost) Connect(ctx context.Context, name string) (port.Port, error) {
	p, err := h.Host.Connect(ctx, name)
	if err == nil {
		*h.opened = append(*h.opened, p)
	}

	return p, err
}

func TestHandlerFailure_NeverResolvesValue(t *testing.T) {
	f := newFixture(t)

	boom := messages.CreateAction("ping", func(context.Context, ping, *port.Sender) (pong, error) {
		return pong{N: 99}, errors.New("boom")
	})

	if _, err := f.registry.Register(boom); err != nil {
		t.Fatalf("register: %v", err)
	}

	v, err := f.messenger.Request(t.Context(), "ping", ping{N: 1})
	if v != nil {
		t.Fatalf("failure resolved a value: %#v", v)
	}

	if !errors.Is(err, berr.ErrNoResponse) {
		t.Fatalf("want ErrNoResponse, got %v", err)
	}
}

func TestHandlerPanic_Recovered(t *testing.T) {
	f := newFixture(t)

	panicky := messages.BindingOf("ping", func(context.Context, any, *port.Sender) (any, error) {
		panic("kaboom")
	})

	if _, err := f.registry.Register(panicky); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := f.messenger.Request(t.Context(), "ping", nil)
	if !errors.Is(err, berr.ErrNoResponse) {
		t.Fatalf("want ErrNoResponse, got %v", err)
	}
}

func TestConcurrentRequests_DoNotInterfere(t *testing.T) {
	f := newFixture(t)

	slow := messages.CreateAction("a", func(ctx context.Context, p ping, _ *port.Sender) (pong, error) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return pong{}, ctx.Err()
		}

		return pong{N: p.N * 10}, nil
	})
	fast := messages.CreateAction("b", func(_ context.Context, p ping, _ *port.Sender) (pong, error) {
		return pong{N: p.N * 100}, nil
	})

	for _, b := range []messages.Binding{slow, fast} {
		if _, err := f.registry.Register(b); err != nil {
			t.Fatalf("register %s: %v", b.Type(), err)
		}
	}

	var (
		wg     sync.WaitGroup
		ra, rb messages.Reply[pong]
		ea, eb error
		order  []string
		mu     sync.Mutex
	)

	wg.Add(2)

	go func() {
		defer wg.Done()

		ra, ea = messages.Send(t.Context(), f.messenger, messages.CreateRequest[ping, pong]("a").Create(ping{N: 1}))

		mu.Lock()
		order = append(order, "a")
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()

		rb, eb = messages.Send(t.Context(), f.messenger, messages.CreateRequest[ping, pong]("b").Create(ping{N: 2}))

		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
	}()

	wg.Wait()

	if ea != nil || eb != nil {
		t.Fatalf("errors: a=%v b=%v", ea, eb)
	}

	if ra.Value.N != 10 || rb.Value.N != 200 {
		t.Fatalf("crossed replies: a=%d b=%d", ra.Value.N, rb.Value.N)
	}

	if len(order) != 2 || order[0] != "b" {
		t.Fatalf("b should settle first, order=%v", order)
	}
}

func TestResponder_IgnoresOtherPortNames(t *testing.T) {
	f := newFixture(t)

	var calls atomic.Int32

	x := messages.BindingOf("x", func(context.Context, any, *port.Sender) (any, error) {
		calls.Add(1)
		return "x", nil
	})

	if _, err := f.registry.Register(x); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := f.messenger.Request(ctx, "y", "hello")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}

	f.hub.Sync()

	if calls.Load() != 0 {
		t.Fatalf("x handler invoked for y: %d", calls.Load())
	}
}

func TestResponder_OnlyFirstMessageHandled(t *testing.T) {
	f := newFixture(t)

	var calls atomic.Int32

	release := make(chan struct{})
	counting := messages.BindingOf("ping", func(context.Context, any, *port.Sender) (any, error) {
		calls.Add(1)
		<-release

		return "ok", nil
	})

	if _, err := f.registry.Register(counting); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := f.content.Connect(t.Context(), "ping")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	for range 3 {
		if err := p.PostMessage("again"); err != nil {
			t.Fatalf("post: %v", err)
		}
	}

	f.hub.Sync()
	close(release)

	waitFor(t, "responder teardown", func() bool { return f.background.OpenPorts() == 0 })

	if calls.Load() != 1 {
		t.Fatalf("want 1 invocation, got %d", calls.Load())
	}
}

func TestSuppressEmptyReply(t *testing.T) {
	empty := messages.CreateAction("noop", func(context.Context, ping, *port.Sender) (pong, error) {
		return pong{}, nil
	})

	t.Run("suppressed", func(t *testing.T) {
		f := newFixture(t, messages.WithSuppressEmptyReply(true))
		if _, err := f.registry.Register(empty); err != nil {
			t.Fatalf("register: %v", err)
		}

		_, err := messages.Send(t.Context(), f.messenger, messages.CreateRequest[ping, pong]("noop").Create())
		if !errors.Is(err, berr.ErrNoResponse) {
			t.Fatalf("want ErrNoResponse, got %v", err)
		}
	})

	t.Run("posted", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.registry.Register(empty); err != nil {
			t.Fatalf("register: %v", err)
		}

		reply, err := messages.Send(t.Context(), f.messenger, messages.CreateRequest[ping, pong]("noop").Create())
		if err != nil {
			t.Fatalf("send: %v", err)
		}

		if reply.Value != (pong{}) {
			t.Fatalf("want zero value, got %+v", reply.Value)
		}
	})
}

func TestUnserializablePayload_TransmissionFailed(t *testing.T) {
	f := newFixture(t)

	var calls atomic.Int32

	if _, err := f.registry.Register(messages.BindingOf("ping", func(context.Context, any, *port.Sender) (any, error) {
		calls.Add(1)
		return nil, nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := f.messenger.Request(t.Context(), "ping", func() {})
	if !errors.Is(err, berr.ErrTransmissionFailed) || !errors.Is(err, berr.ErrSerializationFailed) {
		t.Fatalf("want transmission+serialization failure, got %v", err)
	}

	waitFor(t, "ports released", func() bool {
		return f.content.OpenPorts() == 0 && f.background.OpenPorts() == 0
	})

	if calls.Load() != 0 {
		t.Fatalf("handler invoked for unsent payload")
	}
}

func TestApplicationErrorShape(t *testing.T) {
	f := newFixture(t)

	if _, err := f.registry.Register(messages.BindingOf("ping", func(context.Context, any, *port.Sender) (any, error) {
		return messages.ErrorResponse{Error: "not allowed"}, nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	reply, err := messages.Send(t.Context(), f.messenger, messages.CreateRequest[ping, pong]("ping").Create(ping{N: 1}))
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if !reply.Failed() || reply.Err != "not allowed" {
		t.Fatalf("error shape lost: %+v", reply)
	}

	if !errors.Is(reply.AsError(), berr.ErrApplicationError) {
		t.Fatalf("AsError should wrap ErrApplicationError: %v", reply.AsError())
	}
}

func TestContextCancel_DisconnectsAndCancelsHandler(t *testing.T) {
	f := newFixture(t)

	handlerDone := make(chan error, 1)

	if _, err := f.registry.Register(messages.BindingOf("wait", func(ctx context.Context, _ any, _ *port.Sender) (any, error) {
		<-ctx.Done()
		handlerDone <- ctx.Err()

		return nil, ctx.Err()
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	_, err := f.messenger.Request(ctx, "wait", "hi")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}

	select {
	case herr := <-handlerDone:
		if !errors.Is(herr, context.Canceled) {
			t.Fatalf("handler ctx err=%v", herr)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler context was never cancelled")
	}
}

func TestAbnormalDisconnect(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("extension context invalidated")

	f.background.OnConnect().Subscribe(func(p port.Port) {
		p.(*inmemory.Port).Fail(cause)
	})

	_, err := f.messenger.Request(t.Context(), "ping", "hi")
	if !errors.Is(err, berr.ErrAbnormalDisconnect) || !errors.Is(err, cause) {
		t.Fatalf("want abnormal disconnect with cause, got %v", err)
	}
}

func TestNoReceiver(t *testing.T) {
	f := newFixture(t)

	_, err := f.messenger.RequestTo(t.Context(), "nowhere", "ping", "hi")
	if !errors.Is(err, berr.ErrAbnormalDisconnect) || !errors.Is(err, berr.ErrNoReceiver) {
		t.Fatalf("want no receiver, got %v", err)
	}

	_, err = f.messenger.Request(t.Context(), "ping", "hi")
	if !errors.Is(err, berr.ErrNoReceiver) {
		t.Fatalf("background without listeners: want no receiver, got %v", err)
	}
}

func TestSenderIsReported(t *testing.T) {
	f := newFixture(t)
	f.content.SetURL("https://example.test/page")

	got := make(chan port.Sender, 1)

	if _, err := f.registry.Register(messages.BindingOf("who", func(_ context.Context, _ any, s *port.Sender) (any, error) {
		got <- *s
		return s.ID, nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	v, err := f.messenger.Request(t.Context(), "who", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	s := <-got
	if v != "content" || s.ID != "content" || s.URL != "https://example.test/page" {
		t.Fatalf("sender=%+v reply=%v", s, v)
	}
}

func TestRegistry_UnregisterAndClose(t *testing.T) {
	f := newFixture(t)

	l, err := f.registry.Register(messages.CreateAction("ping", bump))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if f.registry.Len() != 1 || l.Type() != "ping" {
		t.Fatalf("len=%d type=%q", f.registry.Len(), l.Type())
	}

	if !messages.StopListening(f.registry, l) {
		t.Fatalf("first unregister should report removal")
	}

	if f.registry.Unregister(l) {
		t.Fatalf("second unregister must be a no-op")
	}

	_, err = f.messenger.Request(t.Context(), "ping", ping{N: 1})
	if !errors.Is(err, berr.ErrNoReceiver) {
		t.Fatalf("after unregister: want no receiver, got %v", err)
	}

	if err := f.registry.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := f.registry.Register(messages.CreateAction("ping", bump)); err == nil {
		t.Fatalf("register after close should fail")
	}
}

func TestNilHost(t *testing.T) {
	m := messages.NewMessenger(nil, nil)

	if _, err := m.Request(t.Context(), "ping", nil); !errors.Is(err, berr.ErrHostNotConfigured) {
		t.Fatalf("want ErrHostNotConfigured, got %v", err)
	}

	if _, err := m.RequestTo(t.Context(), "", "ping", nil); !errors.Is(err, berr.ErrConnectFailed) {
		t.Fatalf("want ErrConnectFailed for empty target, got %v", err)
	}

	r := messages.NewRegistry(nil, nil)
	if _, err := r.Register(messages.CreateAction("ping", bump)); !errors.Is(err, berr.ErrHostNotConfigured) {
		t.Fatalf("want ErrHostNotConfigured, got %v", err)
	}
}

func TestFacade(t *testing.T) {
	hub := inmemory.NewHub()
	t.Cleanup(hub.Close)

	bg := messages.New(hub.Endpoint(inmemory.DefaultTarget), nil)
	page := messages.New(hub.Endpoint("page"), nil)

	t.Cleanup(func() { _ = bg.Close() })

	if _, err := bg.Register(messages.CreateAction("ping", bump)); err != nil {
		t.Fatalf("register: %v", err)
	}

	reply, err := messages.Send(t.Context(), page.Messenger, messages.CreateRequest[ping, pong]("ping").Create(ping{N: 41}))
	if err != nil || reply.Value.N != 42 {
		t.Fatalf("reply=%+v err=%v", reply, err)
	}
}

func TestPayloadIsNotSharedWithResponder(t *testing.T) {
	f := newFixture(t)

	if _, err := f.registry.Register(messages.BindingOf("mut", func(_ context.Context, p any, _ *port.Sender) (any, error) {
		p.(map[string]any)["n"] = 999
		return p, nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	payload := map[string]any{"n": 1}

	v, err := f.messenger.Request(t.Context(), "mut", payload)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if payload["n"] != 1 {
		t.Fatalf("responder mutated the initiator's payload: %v", payload)
	}

	if v.(map[string]any)["n"] != float64(999) {
		t.Fatalf("reply=%v", v)
	}
}
