// Package service wires the event store, archive pipeline and aggregation
// engine together and exposes the operations used by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	eventqueue "github.com/okian/formwizard/internal/adapters/mq/queue"
	workerpool "github.com/okian/formwizard/internal/adapters/mq/worker"
	repository "github.com/okian/formwizard/internal/adapters/repository"
	"github.com/okian/formwizard/internal/domain/analytics"
	"github.com/okian/formwizard/internal/domain/classify"
	"github.com/okian/formwizard/internal/domain/dedupe"
	"github.com/okian/formwizard/internal/domain/devices"
	"github.com/okian/formwizard/internal/domain/heatmap"
	"github.com/okian/formwizard/internal/domain/model"
	"github.com/okian/formwizard/internal/domain/problems"
	"github.com/okian/formwizard/internal/domain/window"
	"github.com/okian/formwizard/pkg/logger"
	"github.com/okian/formwizard/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize  = 10_000
	defaultDedupeSize = 50_000
	stopTimeout       = 30 * time.Second

	// One writer keeps archive rows in store order, which replay relies on.
	archiveWriters = 1
)

// Archive is the durable copy of accepted events.
type Archive interface {
	Save(ctx context.Context, ev model.Event) error
	Recent(ctx context.Context, limit int) ([]model.Event, error)
	Clear(ctx context.Context) error
}

// IngestStatus tells the caller what happened to an ingested event.
type IngestStatus string

// Ingest outcomes.
const (
	StatusAccepted  IngestStatus = "success"
	StatusDuplicate IngestStatus = "duplicate"
)

// IngestResult is the outcome of Ingest. Event is the event as stored.
type IngestResult struct {
	Status IngestStatus
	Event  model.Event
}

// Service implements the API dependencies for form analytics.
type Service struct {
	mu sync.RWMutex
	// ingestMu orders the store append and the archive enqueue.
	ingestMu sync.Mutex

	// Core components
	store      *repository.RingStore
	deduper    dedupe.Deduper
	detector   *problems.Detector
	validate   *validator.Validate
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	archive    Archive

	// Configuration
	storeCapacity int
	queueSize     int
	dedupeSize    int
	archiveReplay bool
	thresholds    problems.Thresholds
	now           func() time.Time

	// State
	started   bool
	runCancel context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service. The store is usable for queries right away;
// ingestion requires Start.
func New(opts ...Option) *Service {
	s := &Service{
		storeCapacity: repository.DefaultCapacity,
		queueSize:     defaultQueueSize,
		dedupeSize:    defaultDedupeSize,
		thresholds:    problems.DefaultThresholds(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.store = repository.NewRingStore(
		repository.WithCapacity(s.storeCapacity),
		repository.WithClock(s.now),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.detector = problems.NewDetector(problems.WithThresholds(s.thresholds))
	s.validate = newValidator()

	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Start replays the archive (if configured) and starts the archive writer.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting form analytics service...")

	if s.archive != nil && s.archiveReplay {
		if err := s.replay(ctx); err != nil {
			return err
		}
	}

	if s.archive != nil {
		s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
		s.workerPool = workerpool.NewPool(archiveWriters, s.eventQueue, s.archive,
			workerpool.WithPoolLogger(s.logger.Named("archive-writer")))

		// The writer outlives the start request; Stop cancels it after draining.
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.runCancel = cancel
		s.workerPool.Start(runCtx)
	}

	s.started = true
	s.logger.Info(ctx, "form analytics service started",
		logger.Int("queueSize", s.queueSize),
		logger.Int("storeCapacity", s.storeCapacity),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Bool("archive", s.archive != nil),
	)
	return nil
}

func (s *Service) replay(ctx context.Context) error {
	events, err := s.archive.Recent(ctx, s.storeCapacity)
	if err != nil {
		metrics.RecordArchiveError()
		return fmt.Errorf("replay archive: %w", err)
	}
	for _, ev := range events {
		if ev.EventID != "" {
			s.deduper.SeenAndRecord(ctx, ev.EventID)
		}
		if _, err := s.store.Append(ctx, ev); err != nil {
			return fmt.Errorf("replay archive: %w", err)
		}
	}
	metrics.RecordArchiveReplayed(len(events))
	s.logger.Info(ctx, "replayed archived events", logger.Int("events", len(events)))
	return nil
}

// Stop drains the archive queue and shuts down the writer.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping form analytics service...")
	if s.workerPool != nil {
		if err := s.workerPool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "archive writer did not drain", logger.Error(err))
		}
		s.runCancel()
		s.workerPool, s.eventQueue, s.runCancel = nil, nil, nil
	}

	s.started = false
	s.logger.Info(ctx, "form analytics service stopped",
		logger.Int("storedEvents", s.store.Len(ctx)),
	)
}

// Ingest validates and normalizes ev, drops it if its eventId was already
// seen and appends it to the store otherwise. Appends are serialized, so the
// store holds events in the order Ingest accepted them and an event is
// visible to queries as soon as Ingest returns. With an archive configured
// the event is also queued for the archive writer; a full queue rejects the
// event before it is stored.
func (s *Service) Ingest(ctx context.Context, ev model.Event) (IngestResult, error) {
	if err := s.validate.StructCtx(ctx, ev); err != nil {
		metrics.RecordEventRejected("validation")
		return IngestResult{}, fmt.Errorf("%w: %s", ErrInvalidEvent, describeValidation(err))
	}
	if !ev.HasTimestamp() {
		ev.Timestamp = s.now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return IngestResult{}, ErrNotStarted
	}

	if ev.EventID != "" && s.deduper.SeenAndRecord(ctx, ev.EventID) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate event detected, skipping",
			logger.String("eventId", ev.EventID),
			logger.String("sessionId", ev.SessionID),
		)
		return IngestResult{Status: StatusDuplicate, Event: ev}, nil
	}

	stored, err := s.appendOrdered(ctx, ev)
	if err != nil {
		if ev.EventID != "" {
			s.deduper.Unrecord(ctx, ev.EventID)
		}
		return IngestResult{}, err
	}

	metrics.RecordEventIngested(string(stored.EventType))
	if !stored.EventType.Known() {
		metrics.RecordEventUnknownType()
		s.logger.Debug(ctx, "stored event with unrecognized type",
			logger.String("eventType", string(stored.EventType)),
			logger.String("sessionId", stored.SessionID),
		)
	}
	return IngestResult{Status: StatusAccepted, Event: stored}, nil
}

// appendOrdered enqueues ev for the archive and appends it to the store as
// one step, so both see the same order.
func (s *Service) appendOrdered(ctx context.Context, ev model.Event) (model.Event, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	if s.eventQueue != nil && !s.eventQueue.Enqueue(ctx, ev) {
		metrics.RecordEventRejected("queue_full")
		return model.Event{}, ErrQueueFull
	}
	// Once queued for the archive the event must reach the store too.
	stored, err := s.store.Append(context.WithoutCancel(ctx), ev)
	if err != nil {
		return model.Event{}, fmt.Errorf("store event: %w", err)
	}
	return stored, nil
}

// describeValidation flattens validator errors into "field rule" phrases.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "max":
			msgs = append(msgs, fe.Field()+" exceeds "+fe.Param()+" characters")
		default:
			msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
		}
	}
	return strings.Join(msgs, "; ")
}

// GetEvents returns every retained event, oldest first.
func (s *Service) GetEvents(ctx context.Context) ([]model.Event, error) {
	return s.store.All(ctx)
}

// ClearEvents empties the store and the archive.
func (s *Service) ClearEvents(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	if s.archive != nil {
		if err := s.archive.Clear(ctx); err != nil {
			metrics.RecordArchiveError()
			return fmt.Errorf("clear archive: %w", err)
		}
	}
	s.logger.Info(ctx, "events cleared")
	return nil
}

// GetFormAnalytics computes per-field metrics for formID.
func (s *Service) GetFormAnalytics(ctx context.Context, formID string) ([]model.FieldMetrics, error) {
	snapshot, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	return deferred(ctx, "field_metrics", func() []model.FieldMetrics {
		return analytics.ComputeFieldMetrics(snapshot, formID)
	})
}

// IdentifyProblematicFields reports the fields of formID that cross the
// abandonment or hesitation thresholds.
func (s *Service) IdentifyProblematicFields(ctx context.Context, formID string) ([]model.ProblemReport, error) {
	snapshot, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := deferred(ctx, "problems", func() []model.ProblemReport {
		return s.detector.Detect(analytics.ComputeFieldMetrics(snapshot, formID))
	})
	if err != nil {
		return nil, err
	}
	for _, r := range reports {
		if r.Issues.HighAbandonment {
			metrics.RecordProblemField("highAbandonment")
		}
		if r.Issues.LongHesitation {
			metrics.RecordProblemField("longHesitation")
		}
		if r.Issues.ExcessiveChanges {
			metrics.RecordProblemField("excessiveChanges")
		}
	}
	return reports, nil
}

// GenerateHeatmap bins the pointer positions recorded for formID within the
// time window named by token (24h, 7d or 30d; anything else means 24h).
func (s *Service) GenerateHeatmap(ctx context.Context, formID, token string) ([]model.HeatmapPoint, error) {
	snapshot, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return deferred(ctx, "heatmap", func() []model.HeatmapPoint {
		return heatmap.BinPositions(window.FilterByWindowAt(classify.ByForm(snapshot, formID), token, now))
	})
}

// ListForms returns the form ids present in the store in first-seen order.
func (s *Service) ListForms(ctx context.Context) ([]string, error) {
	snapshot, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	return classify.FormIDs(snapshot), nil
}

// DeviceBreakdown counts the sessions of formID per device class.
func (s *Service) DeviceBreakdown(ctx context.Context, formID string) ([]model.DeviceCount, error) {
	snapshot, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	return deferred(ctx, "devices", func() []model.DeviceCount {
		return devices.Breakdown(classify.ByForm(snapshot, formID))
	})
}

// Thresholds returns the active problem detection thresholds.
func (s *Service) Thresholds() problems.Thresholds {
	return s.detector.Thresholds()
}

// deferred runs fn on its own goroutine so the caller yields once before the
// aggregation pass. ctx only bounds the wait; fn always runs to completion.
func deferred[T any](ctx context.Context, op string, fn func() T) (T, error) {
	start := time.Now()
	out := make(chan T, 1)
	go func() { out <- fn() }()

	select {
	case v := <-out:
		metrics.RecordAggregationLatency(op, float64(time.Since(start).Microseconds())/1000)
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":       s.started,
		"storeCapacity": s.storeCapacity,
		"storedEvents":  s.store.Len(ctx),
		"queueSize":     s.queueSize,
		"dedupeSize":    s.dedupeSize,
		"dedupeEntries": s.deduper.Size(),
		"archive":       s.archive != nil,
		"thresholds":    s.detector.Thresholds(),
	}

	if c, ok := s.archive.(interface {
		Count(ctx context.Context) (int, error)
	}); ok {
		if n, err := c.Count(ctx); err == nil {
			stats["archivedEvents"] = n
		}
	}

	if s.workerPool != nil {
		queueLen := s.eventQueue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["workerCount"] = s.workerPool.Size()
		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}
