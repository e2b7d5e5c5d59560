package repository

import "time"

// DefaultCapacity is the number of events retained when no capacity is configured.
const DefaultCapacity = 1000

// Option applies a configuration option to the RingStore.
type Option func(*RingStore)

// WithCapacity sets the maximum number of retained events.
func WithCapacity(capacity int) Option {
	return func(s *RingStore) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithClock replaces the clock used to stamp events that arrive without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *RingStore) {
		if now != nil {
			s.now = now
		}
	}
}
