// Package traffic simulates visitors filling in a form and publishes the
// resulting tracker events over HTTP or NATS.
package traffic

import (
	"fmt"
	"time"
)

// Transports accepted by Config.Transport.
const (
	TransportHTTP = "http"
	TransportNATS = "nats"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL     string        // service base URL, also used for the report
	Transport   string        // http or nats
	NATSURL     string        // NATS server for the nats transport
	NATSSubject string        // subject the service subscribes to
	FormID      string        // form being simulated
	Fields      []string      // field ids in tab order
	SlowField   string        // field that takes visitors noticeably longer
	Sessions    int           // number of visitor sessions
	AbandonRate float64       // share of sessions that give up, 0-1
	Workers     int           // concurrent publishers
	Timeout     time.Duration // per request timeout
	SettleDelay time.Duration // wait before reading analytics back
	Seed        uint64        // 0 picks a random seed
	OutputFile  string        // optional JSON dump of generated events
	Verbose     bool
}

// DefaultConfig returns a config that simulates a five field sign-up form.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "http://localhost:5001",
		Transport:   TransportHTTP,
		NATSSubject: "formwizard.events",
		FormID:      "signup",
		Fields:      []string{"name", "email", "phone", "plan", "notes"},
		SlowField:   "phone",
		Sessions:    200,
		AbandonRate: 0.35,
		Workers:     8,
		Timeout:     10 * time.Second,
		SettleDelay: 500 * time.Millisecond,
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("base url is required")
	case c.Transport != TransportHTTP && c.Transport != TransportNATS:
		return fmt.Errorf("unknown transport %q", c.Transport)
	case c.Transport == TransportNATS && c.NATSURL == "":
		return fmt.Errorf("nats url is required for the nats transport")
	case c.FormID == "":
		return fmt.Errorf("form id is required")
	case len(c.Fields) == 0:
		return fmt.Errorf("at least one field is required")
	case c.Sessions <= 0:
		return fmt.Errorf("sessions must be positive")
	case c.AbandonRate < 0 || c.AbandonRate > 1:
		return fmt.Errorf("abandon rate must be within 0 and 1")
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive")
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	Sessions         int
	Abandoned        int
	EventsGenerated  int
	EventsAccepted   int
	EventsDuplicate  int
	EventsFailed     int
	SessionsFailed   int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
	EventsPerSession float64
}
