// Package snapcache defines the optional SchemaSnapshot cache contract
// (spec.md section 6, outbound capability 5). TTL semantics, if any, are
// opaque to the core; this package only fixes the key shape and the
// get/put contract every Engine call site uses.
package snapcache

import "github.com/queryadvisor/pgopt/internal/schema"

// Key identifies one cached snapshot by the same filter FetchSchema takes.
type Key struct {
	Schema string
	Table  string
}

func KeyOf(filter schema.Filter) Key {
	return Key{Schema: filter.Schema, Table: filter.Table}
}

// Cache is the optional SchemaSnapshot cache. Get's second return is false
// on a miss or when caching is disabled; the core always falls back to
// fetching a fresh snapshot in that case.
type Cache interface {
	Get(key Key) (*schema.Snapshot, bool)
	Put(key Key, snap *schema.Snapshot)
}

// NullCache never caches, so the Engine always fetches a fresh snapshot.
type NullCache struct{}

func (NullCache) Get(Key) (*schema.Snapshot, bool) { return nil, false }
func (NullCache) Put(Key, *schema.Snapshot)        {}
