package chrome

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/next-trace/scg-port-bus/dynamicui"
)

// documentTarget observes the document node itself.
const documentTarget = "document"

// MutationFeed streams DOM domain events of one tab. The observed node's ID
// is a CSS selector, or "document". Other nodes are named by CDP node id.
type MutationFeed struct {
	b  *Browser
	id target.ID
}

var _ dynamicui.Feed = (*MutationFeed)(nil)

func (f *MutationFeed) Observe(ctx context.Context, node dynamicui.Node, opts dynamicui.WatchOptions, fn func([]dynamicui.Mutation)) (func(), error) {
	tabCtx, err := f.b.tab(f.id)
	if err != nil {
		return nil, err
	}

	var (
		doc  *cdp.Node
		root cdp.NodeID
	)

	err = run(ctx, tabCtx, dom.Enable(), chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		if doc, err = dom.GetDocument().WithDepth(-1).Do(ctx); err != nil {
			return err
		}

		root = doc.NodeID
		if node.ID != "" && node.ID != documentTarget {
			if root, err = dom.QuerySelector(doc.NodeID, node.ID).Do(ctx); err != nil {
				return err
			}

			if root == 0 {
				return fmt.Errorf("no node matches %q", node.ID)
			}
		}

		return dom.RequestChildNodes(root).WithDepth(-1).Do(ctx)
	}))
	if err != nil {
		return nil, err
	}

	t := newTree(root, node, opts)
	t.index(doc, 0)

	listenCtx, cancel := context.WithCancel(tabCtx)

	var (
		mu      sync.Mutex
		stopped bool
	)

	chromedp.ListenTarget(listenCtx, func(ev any) {
		mu.Lock()
		if stopped {
			mu.Unlock()
			return
		}

		m, ok := t.translate(ev)
		mu.Unlock()

		// Inserted subtrees arrive shallow; ask for the rest off the event loop.
		if ins, isInsert := ev.(*dom.EventChildNodeInserted); isInsert && opts.Subtree && ins.Node != nil {
			go expand(listenCtx, f.b.logger, f.id, ins.Node.NodeID, requestChildNodes)
		}

		if ok {
			fn([]dynamicui.Mutation{m})
		}
	})

	f.b.logger.Debug("observing tab", "tab", f.id, "target", node.ID)

	return func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
		cancel()
	}, nil
}

func requestChildNodes(ctx context.Context, id cdp.NodeID) error {
	return run(ctx, ctx, dom.RequestChildNodes(id).WithDepth(-1))
}

// expand fetches the subtree under an inserted node. A failure leaves that
// subtree unobserved, so it is logged.
func expand(ctx context.Context, logger *slog.Logger, tab target.ID, id cdp.NodeID, fetch func(context.Context, cdp.NodeID) error) {
	if err := fetch(ctx, id); err != nil {
		logger.Debug("requesting inserted subtree failed", "tab", tab, "node", id, "err", err)
	}
}
