// Package storage wraps two key/value areas, a synced one and a local one,
// behind a small promise-free API.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

// Area is one key/value storage area. Values must be JSON-serializable.
type Area interface {
	// Get returns the stored values for keys; with no keys it returns everything.
	// Missing keys are absent from the result.
	Get(ctx context.Context, keys ...string) (map[string]any, error)
	Set(ctx context.Context, items map[string]any) error
	Remove(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// Storage reads and writes the sync and local areas.
type Storage struct {
	sync   Area
	local  Area
	logger *slog.Logger
}

// New constructs a Storage. A nil logger disables logging.
func New(sync, local Area, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Storage{sync: sync, local: local, logger: logger}
}

// Save writes data to the sync area and returns it.
func (s *Storage) Save(ctx context.Context, data map[string]any) (map[string]any, error) {
	return s.save(ctx, "sync", s.sync, data)
}

// Read returns the sync-area values for keys, or everything when no keys are given.
func (s *Storage) Read(ctx context.Context, keys ...string) (map[string]any, error) {
	return s.read(ctx, "sync", s.sync, keys)
}

// ReadWithDefaults reads the keys of defaults; missing keys take the default value.
func (s *Storage) ReadWithDefaults(ctx context.Context, defaults map[string]any) (map[string]any, error) {
	return s.readWithDefaults(ctx, "sync", s.sync, defaults)
}

func (s *Storage) Remove(ctx context.Context, keys ...string) error {
	return s.remove(ctx, "sync", s.sync, keys)
}

func (s *Storage) Clear(ctx context.Context) error {
	return s.clear(ctx, "sync", s.sync)
}

// SaveLocal is Save on the local area.
func (s *Storage) SaveLocal(ctx context.Context, data map[string]any) (map[string]any, error) {
	return s.save(ctx, "local", s.local, data)
}

func (s *Storage) ReadLocal(ctx context.Context, keys ...string) (map[string]any, error) {
	return s.read(ctx, "local", s.local, keys)
}

func (s *Storage) ReadLocalWithDefaults(ctx context.Context, defaults map[string]any) (map[string]any, error) {
	return s.readWithDefaults(ctx, "local", s.local, defaults)
}

func (s *Storage) RemoveLocal(ctx context.Context, keys ...string) error {
	return s.remove(ctx, "local", s.local, keys)
}

func (s *Storage) ClearLocal(ctx context.Context) error {
	return s.clear(ctx, "local", s.local)
}

func (s *Storage) save(ctx context.Context, name string, a Area, data map[string]any) (map[string]any, error) {
	if a == nil {
		return nil, areaMissing(name)
	}

	if err := a.Set(ctx, data); err != nil {
		return nil, wrap("save", name, err)
	}

	s.logger.Debug("storage is updated", "area", name, "data", data)

	return data, nil
}

func (s *Storage) read(ctx context.Context, name string, a Area, keys []string) (map[string]any, error) {
	if a == nil {
		return nil, areaMissing(name)
	}

	s.logger.Debug("reading storage", "area", name, "keys", keys)

	out, err := a.Get(ctx, keys...)
	if err != nil {
		return nil, wrap("read", name, err)
	}

	return out, nil
}

func (s *Storage) readWithDefaults(ctx context.Context, name string, a Area, defaults map[string]any) (map[string]any, error) {
	keys := slices.Sorted(maps.Keys(defaults))
	if len(keys) == 0 {
		return map[string]any{}, nil
	}

	got, err := s.read(ctx, name, a, keys)
	if err != nil {
		return nil, err
	}

	out := maps.Clone(defaults)
	maps.Copy(out, got)

	return out, nil
}

func (s *Storage) remove(ctx context.Context, name string, a Area, keys []string) error {
	if a == nil {
		return areaMissing(name)
	}

	if err := a.Remove(ctx, keys...); err != nil {
		return wrap("remove", name, err)
	}

	s.logger.Debug("removing from storage", "area", name, "keys", keys)

	return nil
}

func (s *Storage) clear(ctx context.Context, name string, a Area) error {
	if a == nil {
		return areaMissing(name)
	}

	if err := a.Clear(ctx); err != nil {
		return wrap("clear", name, err)
	}

	s.logger.Debug("storage cleared", "area", name)

	return nil
}

func wrap(op, area string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("storage %s %s: %w", op, area, errors.Join(berr.ErrStorageFailed, err))
}

func areaMissing(name string) error {
	return fmt.Errorf("storage %s area not configured: %w", name, berr.ErrStorageFailed)
}

// Decode converts the value stored under key into T.
// It reports false when the key is absent.
func Decode[T any](items map[string]any, key string) (T, bool, error) {
	var out T

	v, ok := items[key]
	if !ok {
		return out, false, nil
	}

	if t, ok := v.(T); ok {
		return t, true, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return out, true, fmt.Errorf("storage decode %s: %w", key, errors.Join(berr.ErrSerializationFailed, err))
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, true, fmt.Errorf("storage decode %s: %w", key, errors.Join(berr.ErrSerializationFailed, err))
	}

	return out, true, nil
}
