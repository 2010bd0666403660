package inmemory

import "sync"

// loop is a single-goroutine task queue. Tasks posted from inside a task run
// after it returns, never nested.
type loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

func newLoop() *loop {
	l := &loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)

	go l.run()

	return l
}

func (l *loop) post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}

	l.tasks = append(l.tasks, fn)
	l.cond.Signal()

	return true
}

func (l *loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.tasks) == 0 && !l.closed {
			l.cond.Wait()
		}

		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}

		fn := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		fn()
	}
}

// close stops accepting tasks and waits for queued ones to drain.
func (l *loop) close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()

	<-l.done
}
