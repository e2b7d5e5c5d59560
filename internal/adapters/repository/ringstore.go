package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/formwizard/internal/domain/model"
	"github.com/okian/formwizard/pkg/metrics"
)

// RingStore is a fixed-capacity circular buffer of events.
// Once full, every append overwrites the oldest slot, so the retained
// events are always the most recent capacity appends in arrival order.
type RingStore struct {
	mu       sync.RWMutex
	buf      []model.Event
	head     int // index of the oldest event
	size     int
	capacity int
	now      func() time.Time
}

var _ Store = (*RingStore)(nil)

// NewRingStore constructs a ring store with configuration options.
func NewRingStore(opts ...Option) *RingStore {
	s := &RingStore{
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buf = make([]model.Event, s.capacity)

	metrics.UpdateStoreCapacity(s.capacity)
	metrics.UpdateStoreSize(0)
	return s
}

// Capacity returns the configured retention bound.
func (s *RingStore) Capacity() int { return s.capacity }

// Append implements Store.Append in O(1).
func (s *RingStore) Append(ctx context.Context, ev model.Event) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	start := time.Now()

	if !ev.HasTimestamp() {
		ev.Timestamp = s.now()
	}

	s.mu.Lock()
	evicted := 0
	if s.size < s.capacity {
		s.buf[(s.head+s.size)%s.capacity] = ev
		s.size++
	} else {
		s.buf[s.head] = ev
		s.head = (s.head + 1) % s.capacity
		evicted = 1
	}
	size := s.size
	s.mu.Unlock()

	if evicted > 0 {
		metrics.RecordStoreEvictions(evicted)
	}
	metrics.UpdateStoreSize(size)
	metrics.RecordStoreAppendLatency(float64(time.Since(start).Microseconds()) / 1000)
	return ev, nil
}

// All implements Store.All. The returned slice is owned by the caller.
func (s *RingStore) All(ctx context.Context) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, s.size)
	n := copy(out, s.buf[s.head:min(s.head+s.size, s.capacity)])
	copy(out[n:], s.buf[:s.size-n])
	return out, nil
}

// Len implements Store.Len.
func (s *RingStore) Len(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Clear implements Store.Clear.
func (s *RingStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	clear(s.buf)
	s.head, s.size = 0, 0
	s.mu.Unlock()

	metrics.UpdateStoreSize(0)
	metrics.RecordStoreCleared()
	return nil
}
