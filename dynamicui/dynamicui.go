// Package dynamicui reacts to nodes being added to or removed from a page.
package dynamicui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

// MutationType mirrors the DOM MutationRecord type.
type MutationType string

const (
	ChildList     MutationType = "childList"
	Attributes    MutationType = "attributes"
	CharacterData MutationType = "characterData"
)

// Node identifies a DOM node.
type Node struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Mutation is one change observed on Target.
type Mutation struct {
	Type          MutationType
	Target        Node
	Added         []Node
	Removed       []Node
	AttributeName string
	OldValue      string
}

// WatchOptions selects what is observed. Only childList mutations drive
// OnAdd and OnRemove; the other flags are passed to the feed unchanged.
type WatchOptions struct {
	Subtree               bool
	ChildList             bool
	Attributes            bool
	AttributeFilter       []string
	AttributeOldValue     bool
	CharacterData         bool
	CharacterDataOldValue bool

	OnAdd    func(node Node)
	OnRemove func(target, node Node)
}

// Feed delivers batches of mutations for a target until stop is called.
type Feed interface {
	Observe(ctx context.Context, target Node, opts WatchOptions, fn func([]Mutation)) (stop func(), err error)
}

// DynamicUI sets up watchers on a Feed.
type DynamicUI struct {
	feed   Feed
	logger *slog.Logger
}

// New constructs a DynamicUI. A nil logger disables logging.
func New(feed Feed, logger *slog.Logger) *DynamicUI {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &DynamicUI{feed: feed, logger: logger}
}

// Watch starts observing target and returns the observer. Call Disconnect to stop.
func (d *DynamicUI) Watch(ctx context.Context, target Node, opts WatchOptions) (*Observer, error) {
	if d.feed == nil {
		return nil, fmt.Errorf("watch %s: %w", target.ID, berr.ErrHostNotConfigured)
	}

	o := &Observer{opts: opts, logger: d.logger}

	stop, err := d.feed.Observe(ctx, target, opts, o.deliver)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("watch %s: %w", target.ID, errors.Join(berr.ErrQueryFailed, err))
	}

	o.mu.Lock()
	o.stop = stop
	o.mu.Unlock()

	return o, nil
}

// Observer is a running watch.
type Observer struct {
	opts   WatchOptions
	logger *slog.Logger

	mu      sync.Mutex
	stop    func()
	stopped bool
}

// Disconnect stops delivery. It is safe to call more than once.
func (o *Observer) Disconnect() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}

	o.stopped = true
	stop := o.stop
	o.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (o *Observer) deliver(ms []Mutation) {
	o.mu.Lock()
	stopped := o.stopped
	o.mu.Unlock()

	if stopped {
		return
	}

	for _, m := range ms {
		if m.Type != ChildList {
			continue
		}

		for _, n := range m.Added {
			if o.opts.OnAdd != nil {
				o.opts.OnAdd(n)
			}
		}

		for _, n := range m.Removed {
			if o.opts.OnRemove != nil {
				o.opts.OnRemove(m.Target, n)
			}
		}
	}
}
