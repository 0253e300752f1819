// Package cachestore is a small namespaced string cache with in-memory and
// redis-backed implementations. The ingress layer uses it as a fast-path
// for webhook idempotency checks ahead of the durable event row.
package cachestore

import "context"

type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}
