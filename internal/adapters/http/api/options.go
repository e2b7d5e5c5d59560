package api

import (
	"github.com/okian/formwizard/pkg/logger"
	"golang.org/x/time/rate"
)

// Default server configuration constants.
const (
	defaultMaxBodyBytes = 1 << 20
	defaultMaxBatchSize = 500
)

// Option configures a Server.
type Option func(*Server)

// WithIngestRateLimit limits tracker ingest requests to limit per second with
// the given burst. A non-positive limit disables rate limiting.
func WithIngestRateLimit(limit float64, burst int) Option {
	return func(s *Server) {
		if limit <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// WithAllowedOrigins sets the CORS origins accepted by Handler.
// An empty list allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = append([]string(nil), origins...)
	}
}

// WithMaxBodyBytes caps the size of ingest request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithMaxBatchSize caps the number of events in one batch request.
func WithMaxBatchSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithLogger sets the logger used by the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
