// Package dedupe tracks recently seen event IDs so retried deliveries are
// stored once.
package dedupe

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 50_000

// Deduper records seen event IDs.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID so a delivery that failed downstream (e.g. queue
	// backpressure) can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// lruDeduper remembers the most recently recorded IDs; the least recently
// recorded one is forgotten when the cache is full.
type lruDeduper struct {
	maxSize int
	seen    *lru.Cache[string, struct{}]
}

// NewInMemoryDeduper creates a bounded in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &lruDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	// lru.New only fails on a non-positive size, which options rule out.
	d.seen, _ = lru.New[string, struct{}](d.maxSize)
	return d
}

func (d *lruDeduper) SeenAndRecord(_ context.Context, id string) bool {
	found, _ := d.seen.ContainsOrAdd(id, struct{}{})
	return found
}

func (d *lruDeduper) Unrecord(_ context.Context, id string) {
	d.seen.Remove(id)
}

func (d *lruDeduper) Size() int64 {
	return int64(d.seen.Len())
}
