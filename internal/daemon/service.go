// Package daemon provides the long-running background monitor service.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/bedrockmon/internal/anomaly"
	"github.com/theirongolddev/bedrockmon/internal/cost"
	"github.com/theirongolddev/bedrockmon/internal/logging"
	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/pipeline"
	"github.com/theirongolddev/bedrockmon/internal/report"
	"github.com/theirongolddev/bedrockmon/internal/sink"
)

// Event types.
const (
	EventSnapshot = "snapshot"
	EventDelta    = "usage_delta"
	EventAnomaly  = "anomaly"
)

// Runner runs one analysis. *pipeline.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Config controls the daemon runtime behavior.
type Config struct {
	// Request is the template of every poll; Start and End are replaced by
	// the trailing window.
	Request      pipeline.Request
	Window       time.Duration
	Interval     time.Duration
	Addr         string
	EventsBuffer int
	// Sink receives the report whenever a poll finds new anomalies. Nil
	// disables delivery.
	Sink   sink.Deliverer
	Logger *zap.Logger
	Now    func() time.Time
}

// Snapshot is a compact state of the trailing window for status and event
// payloads.
type Snapshot struct {
	At            time.Time `json:"at"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	ReportID      string    `json:"report_id"`
	Series        int       `json:"series"`
	Failures      int       `json:"failures"`
	Invocations   float64   `json:"invocations"`
	Errors        float64   `json:"errors"`
	Tokens        int64     `json:"tokens"`
	EstimatedCost float64   `json:"estimated_cost"`
	Currency      string    `json:"currency"`
	Warnings      int       `json:"warnings"`
	Critical      int       `json:"critical"`
}

// Delta captures snapshot deltas between polls.
type Delta struct {
	Invocations   float64 `json:"invocations"`
	Errors        float64 `json:"errors"`
	Tokens        int64   `json:"tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
	Anomalies     int     `json:"anomalies"`
}

func (d Delta) isZero() bool {
	return d.Invocations == 0 &&
		d.Errors == 0 &&
		d.Tokens == 0 &&
		d.EstimatedCost == 0 &&
		d.Anomalies == 0
}

// Event is emitted whenever the snapshot changes or new anomalies appear.
type Event struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Snapshot  Snapshot        `json:"snapshot"`
	Delta     Delta           `json:"delta"`
	Anomalies []model.Anomaly `json:"anomalies,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt         time.Time `json:"started_at"`
	LastPollAt        time.Time `json:"last_poll_at"`
	PollIntervalSec   int       `json:"poll_interval_sec"`
	WindowSec         int       `json:"window_sec"`
	PollCount         int64     `json:"poll_count"`
	Metrics           []string  `json:"metrics"`
	GroupBy           []string  `json:"group_by,omitempty"`
	Summary           Snapshot  `json:"summary"`
	LastError         string    `json:"last_error,omitempty"`
	LastDeliveryError string    `json:"last_delivery_error,omitempty"`
	EventCount        int       `json:"event_count"`
	SubscriberCount   int       `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg     Config
	runner  Runner
	log     *zap.Logger
	metrics *metrics

	mu                sync.RWMutex
	startedAt         time.Time
	lastPollAt        time.Time
	pollCount         int64
	lastError         string
	lastDeliveryError string
	hasSnapshot       bool
	snapshot          Snapshot
	lastReport        *model.Report
	alerted           map[string]time.Time
	nextEventID       int64
	events            []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a new daemon service polling through runner.
func New(runner Runner, cfg Config) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		cfg:       cfg,
		runner:    runner,
		log:       logging.OrNop(cfg.Logger),
		metrics:   newMetrics(),
		startedAt: cfg.Now(),
		alerted:   make(map[string]time.Time),
		subs:      make(map[int]chan Event),
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)
	mux.HandleFunc("/v1/report", s.handleReport)
	mux.Handle("/metrics", s.metrics.handler())
	return mux
}

// Run starts HTTP endpoints and polling until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Seed initial snapshot so status is useful immediately.
	s.pollOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.pollOnce(ctx)
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) {
	began := time.Now()
	now := s.cfg.Now()

	req := s.cfg.Request
	req.Start = now.Add(-s.cfg.Window)
	req.End = now

	res, err := s.runner.Run(ctx, req)
	s.metrics.pollDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		s.metrics.polls.WithLabelValues("error").Inc()
		s.mu.Lock()
		s.lastError = err.Error()
		s.lastPollAt = now
		s.pollCount++
		s.mu.Unlock()
		s.log.Error("poll failed", zap.Error(err))
		return
	}
	s.metrics.polls.WithLabelValues("ok").Inc()

	snap := snapshotFromResult(res, now)
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	snap.Currency = currency

	var events []Event

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot

	s.hasSnapshot = true
	s.snapshot = snap
	rep := res.Report
	s.lastReport = &rep
	s.lastPollAt = now
	s.pollCount++
	s.lastError = ""

	fresh := s.freshAnomalies(res.Anomalies, req.Start)

	if !prevExists {
		s.nextEventID++
		events = append(events, Event{
			ID:        s.nextEventID,
			Type:      EventSnapshot,
			Timestamp: now,
			Snapshot:  snap,
		})
	} else if delta := diffSnapshots(prev, snap); !delta.isZero() {
		s.nextEventID++
		events = append(events, Event{
			ID:        s.nextEventID,
			Type:      EventDelta,
			Timestamp: now,
			Snapshot:  snap,
			Delta:     delta,
		})
	}
	if len(fresh) > 0 {
		s.nextEventID++
		events = append(events, Event{
			ID:        s.nextEventID,
			Type:      EventAnomaly,
			Timestamp: now,
			Snapshot:  snap,
			Anomalies: fresh,
		})
	}
	s.mu.Unlock()

	s.metrics.observe(snap, currency, fresh)
	for _, ev := range events {
		s.publishEvent(ev)
	}

	if len(fresh) > 0 {
		s.deliver(ctx, rep, len(fresh))
	}
}

// freshAnomalies returns the anomalies not reported by an earlier poll and
// forgets those that slid out of the window. Callers hold s.mu.
func (s *Service) freshAnomalies(anomalies []model.Anomaly, windowStart time.Time) []model.Anomaly {
	for k, ts := range s.alerted {
		if ts.Before(windowStart) {
			delete(s.alerted, k)
		}
	}
	var fresh []model.Anomaly
	for _, a := range anomalies {
		k := a.Key().String() + "@" + a.Timestamp.UTC().Format(time.RFC3339Nano)
		if _, seen := s.alerted[k]; seen {
			continue
		}
		s.alerted[k] = a.Timestamp
		fresh = append(fresh, a)
	}
	return fresh
}

func (s *Service) deliver(ctx context.Context, r model.Report, fresh int) {
	if s.cfg.Sink == nil {
		return
	}
	err := s.cfg.Sink.Deliver(ctx, r)

	s.mu.Lock()
	if err != nil {
		s.lastDeliveryError = err.Error()
	} else {
		s.lastDeliveryError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.metrics.deliveries.WithLabelValues("error").Inc()
		s.log.Error("report delivery failed",
			zap.String("sink", s.cfg.Sink.Name()),
			zap.String("report", r.ID),
			zap.Error(err),
		)
		return
	}
	s.metrics.deliveries.WithLabelValues("ok").Inc()
	s.log.Info("report delivered",
		zap.String("sink", s.cfg.Sink.Name()),
		zap.String("report", r.ID),
		zap.Int("new_anomalies", fresh),
	)
}

func snapshotFromResult(res *pipeline.Result, at time.Time) Snapshot {
	totals := report.Totals(res.Collection.Series, res.Costs, time.Time{}, time.Time{})
	warn, crit := anomaly.CountBySeverity(res.Anomalies)
	return Snapshot{
		At:            at,
		WindowStart:   res.Report.WindowStart,
		WindowEnd:     res.Report.WindowEnd,
		ReportID:      res.Report.ID,
		Series:        len(res.Collection.Series),
		Failures:      len(res.Collection.Failures),
		Invocations:   totals.Invocations,
		Errors:        totals.Errors,
		Tokens:        totals.InputTokens + totals.OutputTokens,
		EstimatedCost: cost.Total(res.Costs).InexactFloat64(),
		Warnings:      warn,
		Critical:      crit,
	}
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		Invocations:   curr.Invocations - prev.Invocations,
		Errors:        curr.Errors - prev.Errors,
		Tokens:        curr.Tokens - prev.Tokens,
		EstimatedCost: curr.EstimatedCost - prev.EstimatedCost,
		Anomalies:     (curr.Warnings + curr.Critical) - (prev.Warnings + prev.Critical),
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:         s.startedAt,
		LastPollAt:        s.lastPollAt,
		PollIntervalSec:   int(s.cfg.Interval.Seconds()),
		WindowSec:         int(s.cfg.Window.Seconds()),
		PollCount:         s.pollCount,
		Metrics:           s.cfg.Request.MetricNames,
		GroupBy:           s.cfg.Request.GroupBy,
		Summary:           s.snapshot,
		LastError:         s.lastError,
		LastDeliveryError: s.lastDeliveryError,
		EventCount:        len(s.events),
		SubscriberCount:   len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleReport(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	r := s.lastReport
	s.mu.RUnlock()

	if r == nil {
		http.Error(w, "no report yet", http.StatusNotFound)
		return
	}
	data, err := report.Marshal(*r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current snapshot immediately.
	current := Event{
		Type:      EventSnapshot,
		Timestamp: s.cfg.Now(),
		Snapshot:  s.snapshotStatus().Summary,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
