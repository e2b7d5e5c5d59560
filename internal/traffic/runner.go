package traffic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/formwizard/internal/domain/model"
	"github.com/okian/formwizard/pkg/logger"
)

const directoryPermission = 0750

// Report is what a run observed, both sent and read back.
type Report struct {
	Stats    Stats
	Fields   []FieldReport
	Problems []string
}

// FieldReport is one row of the form analytics as returned by the service.
type FieldReport struct {
	FieldID string `json:"fieldId"`
	Metrics struct {
		TotalInteractions int   `json:"totalInteractions"`
		AvgHesitation     int64 `json:"avgHesitation"`
		AbandonmentCount  int   `json:"abandonmentCount"`
		AbandonmentRate   int   `json:"abandonmentRate"`
		ChangeCount       int   `json:"changeCount"`
	} `json:"metrics"`
}

// Runner drives a simulation.
type Runner struct {
	cfg       *Config
	gen       *Generator
	publisher Publisher
	client    *http.Client
	logger    logger.Logger
}

// NewRunner builds a runner with the transport cfg asks for.
func NewRunner(cfg *Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var pub Publisher
	switch cfg.Transport {
	case TransportNATS:
		p, err := NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		pub = p
	default:
		pub = NewHTTPPublisher(cfg.BaseURL, cfg.Timeout)
	}
	return &Runner{
		cfg:       cfg,
		gen:       NewGenerator(cfg),
		publisher: pub,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger.Get().Named("traffic"),
	}, nil
}

// Run checks health, publishes every session, waits for the service to
// settle and reads the analytics back.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	defer r.publisher.Close()

	stats := Stats{StartTime: time.Now()}
	r.logger.Info(ctx, "starting form traffic",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.String("transport", r.cfg.Transport),
		logger.String("form", r.cfg.FormID),
		logger.Int("sessions", r.cfg.Sessions),
		logger.Int("workers", r.cfg.Workers))

	if err := r.checkHealth(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	sessions := r.gen.Sessions(r.cfg.Sessions)
	var all []model.Event
	for _, s := range sessions {
		stats.EventsGenerated += len(s.Events)
		if s.Abandoned {
			stats.Abandoned++
		}
		all = append(all, s.Events...)
	}
	stats.Sessions = len(sessions)

	r.publish(ctx, sessions, &stats)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.cfg.OutputFile != "" {
		if err := saveEvents(r.cfg.OutputFile, all); err != nil {
			r.logger.Warn(ctx, "failed to save events", logger.Error(err))
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.cfg.SettleDelay):
	}

	report := &Report{}
	if err := r.getJSON(ctx, "/api/analytics/"+r.cfg.FormID, &report.Fields); err != nil {
		return nil, fmt.Errorf("analytics retrieval failed: %w", err)
	}
	var problems []struct {
		FieldID string `json:"fieldId"`
	}
	if err := r.getJSON(ctx, "/api/analytics/"+r.cfg.FormID+"/problems", &problems); err != nil {
		return nil, fmt.Errorf("problem retrieval failed: %w", err)
	}
	for _, p := range problems {
		report.Problems = append(report.Problems, p.FieldID)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	if stats.Sessions > 0 {
		stats.EventsPerSession = float64(stats.EventsGenerated) / float64(stats.Sessions)
	}
	report.Stats = stats
	r.logReport(ctx, report)
	return report, nil
}

func (r *Runner) publish(ctx context.Context, sessions []Session, stats *Stats) {
	work := make(chan Session, r.cfg.Workers*2)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				res, err := r.publisher.Publish(ctx, s.Events)
				mu.Lock()
				stats.EventsAccepted += res.Accepted
				stats.EventsDuplicate += res.Duplicates
				stats.EventsFailed += res.Failed
				if err != nil {
					stats.SessionsFailed++
				}
				mu.Unlock()
				if err != nil && r.cfg.Verbose {
					r.logger.Warn(ctx, "session publish failed",
						logger.String("session", s.ID), logger.Error(err))
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, s := range sessions {
			select {
			case <-ctx.Done():
				return
			case work <- s:
			}
		}
	}()
	wg.Wait()
}

func (r *Runner) checkHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (r *Runner) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (r *Runner) logReport(ctx context.Context, rep *Report) {
	s := rep.Stats
	r.logger.Info(ctx, "traffic sent",
		logger.Int("sessions", s.Sessions),
		logger.Int("abandoned", s.Abandoned),
		logger.Int("eventsGenerated", s.EventsGenerated),
		logger.Int("eventsAccepted", s.EventsAccepted),
		logger.Int("eventsDuplicate", s.EventsDuplicate),
		logger.Int("eventsFailed", s.EventsFailed),
		logger.Int("sessionsFailed", s.SessionsFailed),
		logger.Duration("duration", s.Duration),
		logger.Float64("eventsPerSession", s.EventsPerSession))
	for _, f := range rep.Fields {
		r.logger.Info(ctx, "field",
			logger.String("field", f.FieldID),
			logger.Int("interactions", f.Metrics.TotalInteractions),
			logger.Any("avgHesitationMs", f.Metrics.AvgHesitation),
			logger.Int("abandonmentRate", f.Metrics.AbandonmentRate),
			logger.Int("changes", f.Metrics.ChangeCount))
	}
	r.logger.Info(ctx, "problematic fields", logger.Any("fields", rep.Problems))
}

// saveEvents writes events as a JSON array.
func saveEvents(filename string, events []model.Event) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
