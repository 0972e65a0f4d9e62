package query

import (
	"context"
	"time"
)

// Cache is the capability repositories use for read-through lookups of
// single entities. Values are whatever the repository stored.
//
// The only implementation shipped is NopCache. A real cache belongs in a
// decorator around the repository (or the Executor), never inside the query
// engine, so that pagination and statistics always see the database.
type Cache interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// NopCache has zero effect: Get always misses, Set and Delete do nothing.
// Every lookup therefore goes to the database.
type NopCache struct{}

var _ Cache = NopCache{}

func (NopCache) Get(context.Context, string) (any, bool)         { return nil, false }
func (NopCache) Set(context.Context, string, any, time.Duration) {}
func (NopCache) Delete(context.Context, string)                  {}

// Cached returns the value under key if present with type T, otherwise calls
// load and stores its result. Errors from load are returned and not cached.
func Cached[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, ok := c.Get(ctx, key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(ctx, key, v, ttl)
	return v, nil
}
