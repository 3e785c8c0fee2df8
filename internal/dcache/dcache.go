// Package dcache persists the result of an expensive discovery enumeration
// across check invocations. Each check runs as a fresh process, so the cache
// lives outside process memory: either as files in a cache directory or as
// rows in a local SQLite database, behind the same Store interface.
package dcache

import (
	"context"
	"errors"
	"time"
)

// ErrStale is returned by Get when no entry exists for the namespace or the
// entry is older than the caller's freshness window. The caller recomputes
// the enumeration and calls Put.
var ErrStale = errors.New("dcache: entry is stale")

// Store is the discovery cache contract. A maxAge of zero (or less) makes
// Get always report ErrStale, which effectively disables the cache.
type Store interface {
	Get(ctx context.Context, namespace string, maxAge time.Duration) ([]byte, error)
	Put(ctx context.Context, namespace string, payload []byte) error
}
