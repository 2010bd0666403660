package bridge

import (
	"context"
	"maps"
	"sync"
)

// Loopback is an in-process Broker. Each subscription gets its own goroutine,
// so delivery is sequential per subscriber and never reentrant.
type Loopback struct {
	mu   sync.RWMutex
	subs map[string]map[*loopSub]struct{}
}

var _ Broker = (*Loopback)(nil)

type loopMsg struct {
	data    []byte
	headers map[string]string
}

type loopSub struct {
	ch   chan loopMsg
	done chan struct{}
	once sync.Once
}

// NewLoopback returns an empty in-process broker.
func NewLoopback() *Loopback {
	return &Loopback{subs: make(map[string]map[*loopSub]struct{})}
}

func (l *Loopback) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	l.mu.RLock()
	targets := make([]*loopSub, 0, len(l.subs[subject]))
	for s := range l.subs[subject] {
		targets = append(targets, s)
	}
	l.mu.RUnlock()

	msg := loopMsg{data: append([]byte(nil), data...), headers: maps.Clone(headers)}

	for _, s := range targets {
		select {
		case s.ch <- msg:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (l *Loopback) Subscribe(subject string, fn func(data []byte, headers map[string]string)) (func() error, error) {
	s := &loopSub{ch: make(chan loopMsg, 256), done: make(chan struct{})}

	l.mu.Lock()
	if l.subs[subject] == nil {
		l.subs[subject] = make(map[*loopSub]struct{})
	}

	l.subs[subject][s] = struct{}{}
	l.mu.Unlock()

	go func() {
		for {
			select {
			case <-s.done:
				return
			case m := <-s.ch:
				fn(m.data, m.headers)
			}
		}
	}()

	return func() error {
		s.once.Do(func() {
			l.mu.Lock()
			delete(l.subs[subject], s)
			l.mu.Unlock()
			close(s.done)
		})

		return nil
	}, nil
}
