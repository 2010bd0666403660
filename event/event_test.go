package event_test

import (
	"sync"
	"testing"

	"github.com/next-trace/scg-port-bus/event"
)

func TestSubscribe_ReceivesUntilUnsubscribed(t *testing.T) {
	var ev event.Event[int]

	var got []int

	sub := ev.Subscribe(func(v int) { got = append(got, v) })

	ev.Emit(1)
	ev.Emit(2)

	if !sub.Unsubscribe() {
		t.Fatalf("first unsubscribe should report removal")
	}

	if sub.Unsubscribe() {
		t.Fatalf("second unsubscribe must be a no-op")
	}

	ev.Emit(3)

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got=%v", got)
	}

	if ev.Len() != 0 {
		t.Fatalf("listeners left: %d", ev.Len())
	}
}

func TestOnce_FiresOnceAndDetaches(t *testing.T) {
	var ev event.Event[string]

	calls := 0
	sub := ev.Once(func(string) { calls++ })

	if n := ev.Emit("a"); n != 1 {
		t.Fatalf("want 1 invoked, got %d", n)
	}

	ev.Emit("b")

	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}

	if sub.Active() {
		t.Fatalf("once subscription still active")
	}

	if sub.Unsubscribe() {
		t.Fatalf("unsubscribe after fire must be a no-op")
	}
}

func TestOnce_DetachedBeforeCallback(t *testing.T) {
	var ev event.Event[int]

	var lenInside int

	ev.Once(func(int) { lenInside = ev.Len() })
	ev.Emit(0)

	if lenInside != 0 {
		t.Fatalf("listener still attached during callback: %d", lenInside)
	}
}

func TestEmit_RegistrationOrderAndSnapshot(t *testing.T) {
	var ev event.Event[int]

	var order []string

	ev.Subscribe(func(int) {
		order = append(order, "first")
		// added during emit: must not see the current value
		ev.Subscribe(func(int) { order = append(order, "late") })
	})
	ev.Subscribe(func(int) { order = append(order, "second") })

	ev.Emit(1)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order=%v", order)
	}
}

func TestUnsubscribeDuringEmit_SkipsLaterListener(t *testing.T) {
	var ev event.Event[int]

	var second *event.Subscription[int]

	called := false

	ev.Subscribe(func(int) { second.Unsubscribe() })
	second = ev.Subscribe(func(int) { called = true })

	ev.Emit(1)

	if called {
		t.Fatalf("listener removed mid-emit was invoked")
	}
}

func TestClear(t *testing.T) {
	var ev event.Event[int]

	a := ev.Subscribe(func(int) {})
	ev.Once(func(int) {})
	ev.Clear()

	if ev.Len() != 0 || a.Active() {
		t.Fatalf("clear left listeners attached")
	}

	if ev.Emit(1) != 0 {
		t.Fatalf("emit after clear invoked listeners")
	}
}

func TestOnce_ConcurrentEmitFiresOnce(t *testing.T) {
	var ev event.Event[int]

	var (
		mu    sync.Mutex
		calls int
	)

	ev.Once(func(int) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)

		go func(v int) {
			defer wg.Done()

			ev.Emit(v)
		}(i)
	}

	wg.Wait()

	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}
