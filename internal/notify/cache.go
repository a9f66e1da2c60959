package notify

import "context"

// Cache is a bounded, TTL-expiring key-value store used cache-aside over
// the notification store. An entry older than its TTL is never returned as
// valid; it is a miss. The read paths key entries by recipient user id.
//
// The engine never patches cached values in place: an entry is either
// fresh or removed by Delete when the user's notification state changes.
type Cache[V any] interface {
	// Get returns the cached value for key, or false on a miss or an
	// expired entry.
	Get(ctx context.Context, key string) (V, bool)

	// Set stores value under key with the cache's TTL.
	Set(ctx context.Context, key string, value V) error

	// Delete removes the entry for key.
	Delete(ctx context.Context, key string) error
}
