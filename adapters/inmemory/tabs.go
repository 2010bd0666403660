package inmemory

import (
	"context"
	"slices"
	"sync"

	"github.com/next-trace/scg-port-bus/tabs"
)

// TabSet is an in-memory list of tabs with one current window.
type TabSet struct {
	mu            sync.RWMutex
	tabs          []tabs.Tab
	currentWindow string
}

var _ tabs.Querier = (*TabSet)(nil)

// NewTabSet returns a tab set whose current window is window.
func NewTabSet(window string) *TabSet {
	return &TabSet{currentWindow: window}
}

// Open adds a tab. An active tab deactivates the others in its window.
func (s *TabSet) Open(t tabs.Tab) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Active {
		for i := range s.tabs {
			if s.tabs[i].WindowID == t.WindowID {
				s.tabs[i].Active = false
			}
		}
	}

	s.tabs = append(s.tabs, t)
}

// Close removes the tab with the given id.
func (s *TabSet) Close(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tabs = slices.DeleteFunc(s.tabs, func(t tabs.Tab) bool { return t.ID == id })
}

// FocusWindow changes the current window.
func (s *TabSet) FocusWindow(window string) {
	s.mu.Lock()
	s.currentWindow = window
	s.mu.Unlock()
}

func (s *TabSet) Query(ctx context.Context, q tabs.Query) ([]tabs.Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return tabs.Filter(s.tabs, q, s.currentWindow), nil
}
