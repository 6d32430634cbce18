// Package cachestore persists timestamped, TTL-annotated snapshots of
// synced data. TTLs are advisory metadata for callers; the store never
// evicts on its own.
package cachestore

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one cached snapshot. Entries are replaced whole: a reader sees
// the payload from before a Put or from after it, never a mix.
type Entry struct {
	Payload   json.RawMessage
	Timestamp time.Time
	TTL       time.Duration
}

// Fresh reports whether the entry is younger than its declared TTL.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.Timestamp) < e.TTL
}

// Store is durable key/value persistence for cache entries. Get returns
// (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry Entry) error
	Remove(ctx context.Context, key string) error
	// RemoveAll deletes every key with the given prefix. Disconnecting a
	// user clears their keys this way.
	RemoveAll(ctx context.Context, prefix string) error
}
