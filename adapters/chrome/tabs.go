package chrome

import (
	"context"
	"strconv"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/next-trace/scg-port-bus/tabs"
)

// Tabs lists page targets. CDP has no focus flag; Chrome lists targets most
// recently activated first, so the first page is reported active and its
// window is the current window.
type Tabs struct{ b *Browser }

var _ tabs.Querier = (*Tabs)(nil)

func (t *Tabs) Query(ctx context.Context, q tabs.Query) ([]tabs.Tab, error) {
	var (
		infos   []*target.Info
		windows = map[target.ID]browser.WindowID{}
	)

	err := run(ctx, t.b.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		if infos, err = target.GetTargets().Do(ctx); err != nil {
			return err
		}

		for _, info := range infos {
			if info.Type != targetTypePage {
				continue
			}

			w, _, err := browser.GetWindowForTarget().WithTargetID(info.TargetID).Do(ctx)
			if err != nil {
				continue
			}

			windows[info.TargetID] = w
		}

		return nil
	}))
	if err != nil {
		return nil, err
	}

	all, current := pageTabs(infos, windows)

	return tabs.Filter(all, q, current), nil
}

// pageTabs converts page targets and reports the current window.
func pageTabs(infos []*target.Info, windows map[target.ID]browser.WindowID) ([]tabs.Tab, string) {
	var (
		out     []tabs.Tab
		current string
	)

	for _, info := range infos {
		if info.Type != targetTypePage {
			continue
		}

		t := tabs.Tab{ID: string(info.TargetID), Title: info.Title, URL: info.URL}
		if w, ok := windows[info.TargetID]; ok {
			t.WindowID = strconv.FormatInt(int64(w), 10)
		}

		if len(out) == 0 {
			t.Active = true
			current = t.WindowID
		}

		out = append(out, t)
	}

	return out, current
}
