package cache

import (
	"context"
	"time"
)

// Cache stores JSON-encodable analytics results. Keys are namespaced by a
// generation number that Invalidate bumps, so stale entries simply stop
// being read and expire on their own.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Generation(ctx context.Context) (int64, error)
	Invalidate(ctx context.Context) error
}

type Noop struct{}

func (Noop) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (Noop) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (Noop) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (Noop) Invalidate(_ context.Context) error {
	return nil
}
