// Package tabs looks up browser tabs.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

// Tab is the subset of tab metadata the helpers expose.
type Tab struct {
	ID       string `json:"id"`
	WindowID string `json:"windowId,omitempty"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	Active   bool   `json:"active"`
}

// Query filters tabs. The zero value matches every tab.
type Query struct {
	Active        bool
	CurrentWindow bool
}

// Querier is implemented by tab backends.
type Querier interface {
	Query(ctx context.Context, q Query) ([]Tab, error)
}

// Filter applies q to all. currentWindow names the focused window.
func Filter(all []Tab, q Query, currentWindow string) []Tab {
	out := make([]Tab, 0, len(all))

	for _, t := range all {
		if q.Active && !t.Active {
			continue
		}

		if q.CurrentWindow && t.WindowID != currentWindow {
			continue
		}

		out = append(out, t)
	}

	return out
}

// Tabs answers the common lookups on top of a Querier.
type Tabs struct {
	q      Querier
	logger *slog.Logger
}

// New constructs Tabs. A nil logger disables logging.
func New(q Querier, logger *slog.Logger) *Tabs {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Tabs{q: q, logger: logger}
}

// CurrentTab returns the active tab of the current window, or nil when there is none.
func (t *Tabs) CurrentTab(ctx context.Context) (*Tab, error) {
	found, err := t.query(ctx, Query{Active: true, CurrentWindow: true})
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		t.logger.Debug("no current tab")
		return nil, nil
	}

	return &found[0], nil
}

// AllTabs returns every tab across all windows.
func (t *Tabs) AllTabs(ctx context.Context) ([]Tab, error) {
	return t.query(ctx, Query{})
}

func (t *Tabs) query(ctx context.Context, q Query) ([]Tab, error) {
	if t.q == nil {
		return nil, fmt.Errorf("tabs query: %w", berr.ErrHostNotConfigured)
	}

	found, err := t.q.Query(ctx, q)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("tabs query: %w", errors.Join(berr.ErrQueryFailed, err))
	}

	return found, nil
}
