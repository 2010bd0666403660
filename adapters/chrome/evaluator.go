package chrome

import (
	"context"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/next-trace/scg-port-bus/injection"
)

// Evaluator runs expressions in one tab.
type Evaluator struct {
	b  *Browser
	id target.ID
}

var _ injection.Evaluator = (*Evaluator)(nil)

func (e *Evaluator) Evaluate(ctx context.Context, expression string, out any) error {
	tabCtx, err := e.b.tab(e.id)
	if err != nil {
		return err
	}

	return run(ctx, tabCtx, chromedp.Evaluate(expression, out))
}
