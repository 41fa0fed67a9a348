// Package services wires the analysis pipeline to its surrounding
// infrastructure: topology snapshots in, reports out.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/incidentstack/faultline/internal/engine"
	"github.com/incidentstack/faultline/internal/graph"
	"github.com/incidentstack/faultline/internal/metrics"
	"github.com/incidentstack/faultline/internal/models"
	"github.com/incidentstack/faultline/internal/utils"
)

// Notifier delivers a finished report to an alerting channel.
type Notifier interface {
	Deliver(ctx context.Context, report models.AnalysisReport) error
}

// TopologySource supplies the current dependency graph snapshot.
type TopologySource interface {
	Current() *graph.Graph
}

// AnalysisService drives batches through the pipeline against the latest
// topology snapshot and hands resulting reports to the notifier. It is the
// sink behind the ingest buffer.
type AnalysisService struct {
	logger      *slog.Logger
	pipeline    *engine.Pipeline
	topology    TopologySource
	notifier    Notifier
	environment string
	latencies   *utils.LatencyTracker
}

// NewAnalysisService constructs the service facade. notifier may be nil.
func NewAnalysisService(logger *slog.Logger, pipeline *engine.Pipeline, topology TopologySource, notifier Notifier, environment string) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		logger:      logger,
		pipeline:    pipeline,
		topology:    topology,
		notifier:    notifier,
		environment: environment,
		latencies:   utils.NewLatencyTracker(1024),
	}
}

// Process analyses one flushed batch. Delivery failures are logged, not
// propagated, so a broken notifier cannot push batches back into the buffer.
func (s *AnalysisService) Process(ctx context.Context, batch []models.Event) error {
	if s.pipeline == nil {
		return utils.NewAppError("analysis.Process", "pipeline not configured", nil)
	}

	var snapshot *graph.Graph
	if s.topology != nil {
		snapshot = s.topology.Current()
	}

	start := time.Now()
	reports, err := s.pipeline.Analyze(ctx, batch, s.environment, snapshot)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveAnalysis(duration, metrics.OutcomeError)
		s.logger.Error("batch analysis failed", slog.Any("error", err))
		return utils.NewAppError("analysis.Process", "batch analysis failed", err)
	}

	s.latencies.Observe(duration)
	metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("analysis latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}

	for _, report := range reports {
		s.deliver(ctx, report)
	}

	s.logger.Info("batch analysed",
		slog.Int("events", len(batch)),
		slog.Int("reports", len(reports)),
		slog.Duration("duration", duration))
	return nil
}

// Analyze runs one batch synchronously and returns the reports. Used by
// callers that want results inline rather than via the notifier.
func (s *AnalysisService) Analyze(ctx context.Context, batch []models.Event) ([]models.AnalysisReport, error) {
	var snapshot *graph.Graph
	if s.topology != nil {
		snapshot = s.topology.Current()
	}
	return s.pipeline.Analyze(ctx, batch, s.environment, snapshot)
}

func (s *AnalysisService) deliver(ctx context.Context, report models.AnalysisReport) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Deliver(ctx, report); err != nil {
		s.logger.Warn("report delivery failed",
			slog.String("correlation_id", report.CorrelationID),
			slog.Any("error", err))
	}
}

// LatencyP95 returns the current p95 batch analysis latency.
func (s *AnalysisService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
