package service

import (
	"time"

	"github.com/okian/formwizard/internal/domain/problems"
	"github.com/okian/formwizard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStoreCapacity sets how many events the store retains.
func WithStoreCapacity(capacity int) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.storeCapacity = capacity
		}
	}
}

// WithQueueSize bounds the archive queue. Ingest answers ErrQueueFull
// while it is full.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithArchive writes every stored event through to a. With replay set,
// Start reloads the most recent events from it.
func WithArchive(a Archive, replay bool) Option {
	return func(s *Service) {
		if a != nil {
			s.archive = a
			s.archiveReplay = replay
		}
	}
}

// WithThresholds overrides the problem detection thresholds.
func WithThresholds(t problems.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = t
	}
}

// WithClock replaces the clock used for timestamp defaulting and time windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
