package inmemory

import (
	"context"
	"slices"
	"sync"

	"github.com/next-trace/scg-port-bus/dynamicui"
)

// Feed is a manually driven node tree. Mutations are delivered synchronously
// to matching observers.
type Feed struct {
	mu        sync.Mutex
	parent    map[string]string
	observers map[*feedObserver]struct{}
}

var _ dynamicui.Feed = (*Feed)(nil)

type feedObserver struct {
	target dynamicui.Node
	opts   dynamicui.WatchOptions
	fn     func([]dynamicui.Mutation)
}

// NewFeed returns an empty tree.
func NewFeed() *Feed {
	return &Feed{
		parent:    make(map[string]string),
		observers: make(map[*feedObserver]struct{}),
	}
}

func (f *Feed) Observe(ctx context.Context, target dynamicui.Node, opts dynamicui.WatchOptions, fn func([]dynamicui.Mutation)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o := &feedObserver{target: target, opts: opts, fn: fn}

	f.mu.Lock()
	f.observers[o] = struct{}{}
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.observers, o)
		f.mu.Unlock()
	}, nil
}

// Observers reports how many observers are attached.
func (f *Feed) Observers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.observers)
}

// Append adds child under parent.
func (f *Feed) Append(parent, child dynamicui.Node) {
	f.mu.Lock()
	f.parent[child.ID] = parent.ID
	f.mu.Unlock()

	f.emit(dynamicui.Mutation{Type: dynamicui.ChildList, Target: parent, Added: []dynamicui.Node{child}})
}

// Remove detaches child from parent.
func (f *Feed) Remove(parent, child dynamicui.Node) {
	f.mu.Lock()
	delete(f.parent, child.ID)
	f.mu.Unlock()

	f.emit(dynamicui.Mutation{Type: dynamicui.ChildList, Target: parent, Removed: []dynamicui.Node{child}})
}

// SetAttribute records an attribute change on node.
func (f *Feed) SetAttribute(node dynamicui.Node, name, old string) {
	f.emit(dynamicui.Mutation{Type: dynamicui.Attributes, Target: node, AttributeName: name, OldValue: old})
}

func (f *Feed) emit(m dynamicui.Mutation) {
	f.mu.Lock()

	var matched []*feedObserver

	for o := range f.observers {
		if f.wants(o, m) {
			matched = append(matched, o)
		}
	}
	f.mu.Unlock()

	for _, o := range matched {
		o.fn([]dynamicui.Mutation{m})
	}
}

// wants must be called with f.mu held.
func (f *Feed) wants(o *feedObserver, m dynamicui.Mutation) bool {
	switch m.Type {
	case dynamicui.ChildList:
		if !o.opts.ChildList {
			return false
		}
	case dynamicui.Attributes:
		if !o.opts.Attributes {
			return false
		}

		if len(o.opts.AttributeFilter) > 0 && !slices.Contains(o.opts.AttributeFilter, m.AttributeName) {
			return false
		}
	case dynamicui.CharacterData:
		if !o.opts.CharacterData {
			return false
		}
	}

	if m.Target.ID == o.target.ID {
		return true
	}

	if !o.opts.Subtree {
		return false
	}

	for id, seen := m.Target.ID, 0; seen < len(f.parent); seen++ {
		p, ok := f.parent[id]
		if !ok {
			return false
		}

		if p == o.target.ID {
			return true
		}

		id = p
	}

	return false
}
