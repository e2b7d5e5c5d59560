// Package config defines service configuration structures and loading hooks.
package config

import (
	"time"

	"github.com/okian/formwizard/internal/domain/problems"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":5001".
	Addr string `koanf:"addr"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// StoreCapacity is how many recent events the store retains.
	StoreCapacity int `koanf:"store_capacity"`

	// EventQueueSize bounds the archive write queue.
	EventQueueSize int `koanf:"queue_size"`

	// DedupeSize sets how many eventIds are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	// IngestRateLimit is tracker requests per second; 0 disables limiting.
	IngestRateLimit float64 `koanf:"ingest_rate_limit"`
	IngestBurst     int     `koanf:"ingest_burst"`

	// CORSAllowedOrigins lists origins allowed to call the API. Empty allows all.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// ArchivePath enables the SQLite event archive when set.
	ArchivePath   string `koanf:"archive_path"`
	ArchiveReplay bool   `koanf:"archive_replay"`

	// NATSURL enables the NATS ingest subscriber when set.
	NATSURL        string `koanf:"nats_url"`
	NATSSubject    string `koanf:"nats_subject"`
	NATSQueueGroup string `koanf:"nats_queue_group"`

	// Problem detection thresholds.
	AbandonmentThreshold  int   `koanf:"abandonment_threshold"`
	HesitationThresholdMS int64 `koanf:"hesitation_threshold_ms"`
	ChangeThreshold       int   `koanf:"change_threshold"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":5001",
		ShutdownTimeout:       10 * time.Second,
		StoreCapacity:         1000,
		EventQueueSize:        10_000,
		DedupeSize:            50_000,
		IngestRateLimit:       0,
		IngestBurst:           100,
		ArchiveReplay:         true,
		NATSSubject:           "formwizard.events",
		NATSQueueGroup:        "formwizard",
		AbandonmentThreshold:  problems.DefaultAbandonmentRate,
		HesitationThresholdMS: problems.DefaultHesitationMS,
		ChangeThreshold:       problems.DefaultChangeCount,
	}
}

// Thresholds returns the configured problem detection thresholds.
func (c *Config) Thresholds() problems.Thresholds {
	return problems.Thresholds{
		AbandonmentRate: c.AbandonmentThreshold,
		HesitationMS:    c.HesitationThresholdMS,
		ChangeCount:     c.ChangeThreshold,
	}
}
