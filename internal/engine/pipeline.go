package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/incidentstack/faultline/internal/graph"
	"github.com/incidentstack/faultline/internal/metrics"
	"github.com/incidentstack/faultline/internal/models"
)

// ChangeFetcher returns recent human-readable change summaries for a service.
// Implementations should degrade to an empty list rather than block analysis.
type ChangeFetcher interface {
	RecentChanges(ctx context.Context, service string) ([]string, error)
}

// Pipeline runs correlation, impact analysis, evidence assembly, hypothesis
// generation, and report building over one batch of events. Groups are
// independent: they run concurrently and a failure in one never aborts its
// siblings.
type Pipeline struct {
	logger         *slog.Logger
	correlator     *Correlator
	adapter        *Adapter
	changes        ChangeFetcher
	changesTimeout time.Duration
	concurrency    int
}

// NewPipeline constructs the analysis pipeline. changes may be nil when no
// code-hosting integration is configured.
func NewPipeline(logger *slog.Logger, adapter *Adapter, changes ChangeFetcher, changesTimeout time.Duration, concurrency int) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if adapter == nil {
		adapter = NewAdapter(nil, 0, logger)
	}
	if changesTimeout <= 0 {
		changesTimeout = 5 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pipeline{
		logger:         logger,
		correlator:     NewCorrelator(logger),
		adapter:        adapter,
		changes:        changes,
		changesTimeout: changesTimeout,
		concurrency:    concurrency,
	}
}

// Analyze processes one batch of events against the supplied graph snapshot
// and returns one report per non-skipped correlation group, in group
// first-seen order. The snapshot is read-only for the whole batch and shared
// across the concurrent group analyses. If the caller's deadline expires,
// remaining groups are abandoned individually and the completed reports are
// still returned.
func (p *Pipeline) Analyze(ctx context.Context, batch []models.Event, environment string, snapshot *graph.Graph) ([]models.AnalysisReport, error) {
	if snapshot == nil {
		snapshot = graph.New(graph.Document{})
	}

	groups := p.correlator.Group(batch)
	if len(groups) == 0 {
		return nil, nil
	}

	results := make([]*models.AnalysisReport, len(groups))

	var eg errgroup.Group
	eg.SetLimit(p.concurrency)
	for i := range groups {
		eg.Go(func() error {
			if report, ok := p.processGroup(ctx, groups[i], environment, snapshot); ok {
				results[i] = &report
			}
			return nil
		})
	}
	_ = eg.Wait()

	reports := make([]models.AnalysisReport, 0, len(groups))
	for _, r := range results {
		if r != nil {
			reports = append(reports, *r)
		}
	}
	return reports, nil
}

// processGroup walks one correlation group through the analysis states. Any
// panic is contained here so sibling groups keep running.
func (p *Pipeline) processGroup(ctx context.Context, group models.CorrelationGroup, environment string, snapshot *graph.Graph) (report models.AnalysisReport, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("group analysis panicked",
				slog.String("correlation_id", group.Key),
				slog.Any("panic", r))
			ok = false
		}
	}()

	if ctx.Err() != nil {
		p.logger.Warn("group analysis abandoned", slog.String("correlation_id", group.Key))
		return models.AnalysisReport{}, false
	}

	critical := CriticalSubset(group.Events)
	if len(critical) == 0 {
		p.logger.Info("skipping group without critical events",
			slog.String("correlation_id", group.Key),
			slog.Int("events", len(group.Events)))
		metrics.ObserveGroupSkipped()
		return models.AnalysisReport{}, false
	}

	trigger := critical[0]
	service := trigger.AffectedService()
	impact := snapshot.Impact(service)

	bundle := NewEvidenceBundle(trigger, group, impact, p.fetchChanges(ctx, service), environment)
	hypotheses := p.adapter.Hypothesize(ctx, bundle)

	return BuildReport(group, trigger, impact, hypotheses, time.Now()), true
}

// fetchChanges looks up recent changes with a bounded call. Failures degrade
// to no change evidence.
func (p *Pipeline) fetchChanges(ctx context.Context, service string) []string {
	if p.changes == nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, p.changesTimeout)
	defer cancel()

	summaries, err := p.changes.RecentChanges(callCtx, service)
	if err != nil {
		p.logger.Warn("recent change lookup failed",
			slog.String("service", service),
			slog.Any("error", err))
		return nil
	}
	return summaries
}
