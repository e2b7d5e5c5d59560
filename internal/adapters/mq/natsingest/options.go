package natsingest

import (
	"time"

	"github.com/okian/formwizard/pkg/logger"
)

// Option applies a configuration option to the Subscriber.
type Option func(*Subscriber)

// WithQueueGroup load-balances messages across subscribers sharing group.
func WithQueueGroup(group string) Option {
	return func(s *Subscriber) {
		if group != "" {
			s.queueGroup = group
		}
	}
}

// WithConnectTimeout bounds the initial connection attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Subscriber) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the subscriber.
func WithLogger(l logger.Logger) Option {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}
