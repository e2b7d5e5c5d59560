package traffic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/okian/formwizard/internal/domain/model"
)

// ErrRejected is returned when the service refuses a whole batch.
var ErrRejected = errors.New("batch rejected")

// Result counts per-event outcomes of one publish call.
type Result struct {
	Accepted   int
	Duplicates int
	Failed     int
}

// Publisher delivers one session's events to the service.
type Publisher interface {
	Publish(ctx context.Context, events []model.Event) (Result, error)
	Close() error
}

// HTTPPublisher posts sessions to the batch ingest endpoint.
type HTTPPublisher struct {
	client *http.Client
	url    string
}

// NewHTTPPublisher returns a publisher targeting baseURL.
func NewHTTPPublisher(baseURL string, timeout time.Duration) *HTTPPublisher {
	return &HTTPPublisher{
		client: &http.Client{Timeout: timeout},
		url:    baseURL + "/api/tracker/events",
	}
}

type batchResponse struct {
	Status     string `json:"status"`
	Accepted   int    `json:"accepted"`
	Duplicates int    `json:"duplicates"`
	Rejected   int    `json:"rejected"`
	Error      string `json:"error"`
}

// Publish sends events as a single batch.
func (p *HTTPPublisher) Publish(ctx context.Context, events []model.Event) (Result, error) {
	body, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Failed: len(events)}, fmt.Errorf("failed to post batch: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Failed: len(events)}, fmt.Errorf("failed to read response: %w", err)
	}
	var br batchResponse
	if err := json.Unmarshal(data, &br); err != nil {
		return Result{Failed: len(events)}, fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}

	// 429 still carries per-item results for the part that made it in.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusTooManyRequests {
		return Result{Failed: len(events)}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, br.Error)
	}
	return Result{
		Accepted:   br.Accepted,
		Duplicates: br.Duplicates,
		Failed:     len(events) - br.Accepted - br.Duplicates,
	}, nil
}

// Close releases idle connections.
func (p *HTTPPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// NATSPublisher sends events one by one using request/reply so every event
// gets an acknowledgement from the ingest subscriber.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject string, timeout time.Duration) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("form-traffic"), nats.Timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject, timeout: timeout}, nil
}

type natsReply struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Publish sends each event and waits for its reply.
func (p *NATSPublisher) Publish(ctx context.Context, events []model.Event) (Result, error) {
	var res Result
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			res.Failed += len(events) - i
			return res, fmt.Errorf("failed to marshal event: %w", err)
		}
		rctx, cancel := context.WithTimeout(ctx, p.timeout)
		msg, err := p.nc.RequestWithContext(rctx, p.subject, data)
		cancel()
		if err != nil {
			res.Failed += len(events) - i
			return res, fmt.Errorf("nats request failed: %w", err)
		}
		var r natsReply
		if err := json.Unmarshal(msg.Data, &r); err != nil || r.Status != "success" {
			res.Failed++
			continue
		}
		res.Accepted++
	}
	return res, nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
