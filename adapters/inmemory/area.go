package inmemory

import (
	"context"
	"sync"

	"github.com/next-trace/scg-port-bus/storage"
)

// Area is an in-memory storage area. Values are kept JSON-encoded so reads
// never alias what callers wrote.
type Area struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ storage.Area = (*Area)(nil)

// NewArea returns an empty area.
func NewArea() *Area {
	return &Area{items: make(map[string][]byte)}
}

func (a *Area) Get(ctx context.Context, keys ...string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]any)

	if len(keys) == 0 {
		for k := range a.items {
			keys = append(keys, k)
		}
	}

	for _, k := range keys {
		raw, ok := a.items[k]
		if !ok {
			continue
		}

		v, err := storage.DecodeValue(k, raw)
		if err != nil {
			return nil, err
		}

		out[k] = v
	}

	return out, nil
}

func (a *Area) Set(ctx context.Context, items map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	enc, err := storage.Encode(items)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for k, v := range enc {
		a.items[k] = v
	}

	return nil
}

func (a *Area) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, k := range keys {
		delete(a.items, k)
	}

	return nil
}

func (a *Area) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	clear(a.items)
	a.mu.Unlock()

	return nil
}
