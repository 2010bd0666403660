// Package chrome backs the tabs, injection and dynamicui helpers with a
// browser reached over the Chrome DevTools Protocol.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

const targetTypePage = "page"

// Config selects the browser. An empty URL launches a headless browser.
type Config struct {
	URL      string
	Headless bool
	Logger   *slog.Logger
}

// Browser owns the allocator and browser contexts and one context per attached tab.
type Browser struct {
	browserCtx context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger

	mu   sync.Mutex
	tabs map[target.ID]tabEntry
}

type tabEntry struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Connect attaches to the browser at cfg.URL, or launches one.
func Connect(ctx context.Context, cfg Config) (*Browser, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)

	if cfg.URL != "" {
		logger.Debug("connecting to chrome", "url", cfg.URL)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), cfg.URL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", cfg.Headless))
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()

		return nil, fmt.Errorf("chrome connect: %w", errors.Join(berr.ErrConnectFailed, err))
	}

	return &Browser{
		browserCtx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		logger: logger,
		tabs:   make(map[target.ID]tabEntry),
	}, nil
}

// Close detaches from every tab and releases the browser.
func (b *Browser) Close() {
	b.mu.Lock()
	for id, t := range b.tabs {
		t.cancel()
		delete(b.tabs, id)
	}
	b.mu.Unlock()

	b.cancel()
}

// Tabs returns a tabs.Querier over the browser's page targets.
func (b *Browser) Tabs() *Tabs { return &Tabs{b: b} }

// Evaluator returns an injection.Evaluator bound to tab id.
func (b *Browser) Evaluator(id string) *Evaluator { return &Evaluator{b: b, id: target.ID(id)} }

// MutationFeed returns a dynamicui.Feed bound to tab id.
func (b *Browser) MutationFeed(id string) *MutationFeed {
	return &MutationFeed{b: b, id: target.ID(id)}
}

// tab returns the chromedp context attached to id, attaching on first use.
func (b *Browser) tab(id target.ID) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.tabs[id]; ok && t.ctx.Err() == nil {
		return t.ctx, nil
	}

	ctx, cancel := chromedp.NewContext(b.browserCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("tab %s not found: %w", id, err)
	}

	b.tabs[id] = tabEntry{ctx: ctx, cancel: cancel}

	return ctx, nil
}

// run executes actions on tabCtx and aborts when ctx is done.
func run(ctx, tabCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	return err
}
