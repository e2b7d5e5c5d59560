// Package natsingest feeds tracker events published on a NATS subject into
// the same ingest path as the HTTP API.
package natsingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/okian/formwizard/internal/domain/model"
	"github.com/okian/formwizard/pkg/logger"
	"github.com/okian/formwizard/pkg/metrics"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultQueueGroup     = "formwizard-ingest"
	clientName            = "formwizard-ingest"
)

// ErrNotStarted is returned by Close when Start was never called.
var ErrNotStarted = errors.New("subscriber not started")

// Handler accepts one decoded event. A non-nil error marks the event as rejected.
type Handler func(ctx context.Context, ev model.Event) error

// reply is sent back when the publisher used request/reply.
type reply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Subscriber consumes JSON encoded events from a core NATS subject.
type Subscriber struct {
	url            string
	subject        string
	queueGroup     string
	connectTimeout time.Duration
	handle         Handler
	logger         logger.Logger

	mu sync.Mutex
	nc *nats.Conn
}

// NewSubscriber prepares a subscriber; no connection is made until Start.
func NewSubscriber(url, subject string, handle Handler, opts ...Option) (*Subscriber, error) {
	if url == "" || subject == "" {
		return nil, fmt.Errorf("nats url and subject are required")
	}
	if handle == nil {
		return nil, fmt.Errorf("nats handler is required")
	}
	s := &Subscriber{
		url:            url,
		subject:        subject,
		queueGroup:     defaultQueueGroup,
		connectTimeout: defaultConnectTimeout,
		handle:         handle,
		logger:         logger.Get().Named("nats"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start connects and subscribes. Messages are handled with ctx until Close.
func (s *Subscriber) Start(ctx context.Context) error {
	nc, err := nats.Connect(s.url,
		nats.Name(clientName),
		nats.Timeout(s.connectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn(ctx, "nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info(ctx, "nats reconnected", logger.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	_, err = nc.QueueSubscribe(s.subject, s.queueGroup, func(msg *nats.Msg) {
		s.onMessage(ctx, msg)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return fmt.Errorf("failed to flush subscription: %w", err)
	}

	s.mu.Lock()
	s.nc = nc
	s.mu.Unlock()

	s.logger.Info(ctx, "nats ingest subscribed",
		logger.String("subject", s.subject),
		logger.String("queue_group", s.queueGroup),
	)
	return nil
}

func (s *Subscriber) onMessage(ctx context.Context, msg *nats.Msg) {
	var ev model.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		metrics.RecordNATSMessage("invalid")
		s.respond(ctx, msg, reply{Status: "error", Error: "invalid JSON body"})
		return
	}

	if err := s.handle(ctx, ev); err != nil {
		metrics.RecordNATSMessage("rejected")
		s.logger.Debug(ctx, "nats event rejected", logger.Error(err))
		s.respond(ctx, msg, reply{Status: "error", Error: err.Error()})
		return
	}

	metrics.RecordNATSMessage("accepted")
	s.respond(ctx, msg, reply{Status: "success"})
}

func (s *Subscriber) respond(ctx context.Context, msg *nats.Msg, r reply) {
	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(r)
	if err := msg.Respond(data); err != nil {
		s.logger.Warn(ctx, "nats reply failed", logger.Error(err))
	}
}

// Close drains in-flight messages and closes the connection.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	nc := s.nc
	s.nc = nil
	s.mu.Unlock()

	if nc == nil {
		return ErrNotStarted
	}
	if err := nc.Drain(); err != nil {
		nc.Close()
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}
