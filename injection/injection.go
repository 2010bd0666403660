// Package injection adds script and iframe elements to a page.
package injection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

// Evaluator runs a JavaScript expression in a page and decodes its result into out.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, out any) error
}

const scriptTmpl = `(() => {
  const parent = document.getElementsByTagName(%s)[0];
  if (!parent) return false;
  const el = document.createElement('script');
  el.setAttribute('type', 'text/javascript');
  el.setAttribute('src', %s);
  parent.appendChild(el);
  return true;
})()`

const iframeTmpl = `(() => {
  const parent = document.querySelector(%s);
  if (!parent) return false;
  const el = document.createElement('iframe');
  el.id = %s;
  el.src = %s;
  el.style = 'width: 0px;height: 0px';
  parent.appendChild(el);
  return true;
})()`

// ScriptExpression returns the expression InjectScript evaluates.
func ScriptExpression(file, node string) string {
	return fmt.Sprintf(scriptTmpl, quote(node), quote(file))
}

// IframeExpression returns the expression InjectIframe evaluates.
func IframeExpression(id, src, selector string) string {
	return fmt.Sprintf(iframeTmpl, quote(selector), quote(id), quote(src))
}

// InjectScript appends a <script> loading file to the first element named node.
func InjectScript(ctx context.Context, ev Evaluator, file, node string) error {
	return run(ctx, ev, "script "+file, ScriptExpression(file, node), node)
}

// InjectIframe appends a zero-size iframe with the given id and src to the
// first element matching selector.
func InjectIframe(ctx context.Context, ev Evaluator, id, src, selector string) error {
	return run(ctx, ev, "iframe "+id, IframeExpression(id, src, selector), selector)
}

func run(ctx context.Context, ev Evaluator, what, expr, parent string) error {
	if ev == nil {
		return fmt.Errorf("inject %s: %w", what, berr.ErrHostNotConfigured)
	}

	var ok bool
	if err := ev.Evaluate(ctx, expr, &ok); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("inject %s: %w", what, errors.Join(berr.ErrInjectFailed, err))
	}

	if !ok {
		return fmt.Errorf("inject %s: no parent %q: %w", what, parent, berr.ErrInjectFailed)
	}

	return nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
