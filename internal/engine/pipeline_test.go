package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/incidentstack/faultline/internal/graph"
	"github.com/incidentstack/faultline/internal/models"
)

type fakeChanges struct {
	summaries []string
	err       error
	services  []string
}

func (f *fakeChanges) RecentChanges(_ context.Context, service string) ([]string, error) {
	f.services = append(f.services, service)
	return f.summaries, f.err
}

func pipelineGraph() *graph.Graph {
	return graph.New(graph.Document{Services: map[string]graph.ServiceNode{
		"checkout": {DependsOn: []string{"payments"}},
		"payments": {DependsOn: []string{"ledger"}},
		"ledger":   {},
	}})
}

func TestAnalyzeProducesOneReportPerGroup(t *testing.T) {
	gen := &stubGenerator{candidates: []Candidate{{Title: "Bad deploy", Confidence: floatPtr(80)}}}
	p := NewPipeline(nil, NewAdapter(gen, 0, nil), nil, 0, 2)

	batch := []models.Event{
		{Type: "payment_failed", CorrelationID: "req-1", Service: "payments", Level: models.SeverityError},
		{Type: "retry", CorrelationID: "req-1", Service: "payments", Level: models.SeverityInfo},
		{Type: "ledger_write_failed", CorrelationID: "req-2", Service: "ledger", Level: models.SeverityCritical},
	}

	reports, err := p.Analyze(context.Background(), batch, "production", pipelineGraph())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	// Group first-seen order is preserved.
	if reports[0].CorrelationID != "req-1" || reports[1].CorrelationID != "req-2" {
		t.Fatalf("report order = %q %q", reports[0].CorrelationID, reports[1].CorrelationID)
	}
	if reports[0].TriggerEventType != "payment_failed" {
		t.Fatalf("trigger = %q", reports[0].TriggerEventType)
	}
	if reports[1].AffectedServices[0] != "ledger" {
		t.Fatalf("affected = %v", reports[1].AffectedServices)
	}
}

func TestAnalyzeSkipsNoiseOnlyGroups(t *testing.T) {
	p := NewPipeline(nil, nil, nil, 0, 1)

	batch := []models.Event{
		{Type: "heartbeat", CorrelationID: "req-1", Level: models.SeverityInfo},
		{Type: "debug_dump", CorrelationID: "req-2", Level: models.SeverityDebug},
	}
	reports, err := p.Analyze(context.Background(), batch, "", pipelineGraph())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("reports = %d, want 0", len(reports))
	}
}

func TestAnalyzeFailingGeneratorFallsBack(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model down")}
	p := NewPipeline(nil, NewAdapter(gen, 0, nil), nil, 0, 1)

	batch := []models.Event{{Type: "crash", CorrelationID: "req-1", Service: "payments", Level: models.SeverityError}}
	reports, err := p.Analyze(context.Background(), batch, "", pipelineGraph())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	top := reports[0].Hypotheses[0]
	if top.Title != "Service Dependency Failure" || top.Confidence != 60 {
		t.Fatalf("fallback hypothesis = %+v", top)
	}
}

type selectiveGenerator struct{}

func (selectiveGenerator) Generate(_ context.Context, bundle EvidenceBundle) ([]Candidate, error) {
	if bundle.Trigger.CorrelationID == "req-bad" {
		panic("generator exploded")
	}
	return []Candidate{{Title: "Fine", Confidence: floatPtr(80)}}, nil
}

func TestAnalyzeIsolatesPanickingGroup(t *testing.T) {
	p := NewPipeline(nil, NewAdapter(selectiveGenerator{}, 0, nil), nil, 0, 1)

	batch := []models.Event{
		{Type: "crash", CorrelationID: "req-bad", Service: "payments", Level: models.SeverityError},
		{Type: "crash", CorrelationID: "req-ok", Service: "ledger", Level: models.SeverityError},
	}
	reports, err := p.Analyze(context.Background(), batch, "", pipelineGraph())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1 (panicking group dropped)", len(reports))
	}
	if reports[0].CorrelationID != "req-ok" {
		t.Fatalf("surviving report = %q", reports[0].CorrelationID)
	}
}

func TestAnalyzeFetchesChangesForTriggerService(t *testing.T) {
	changes := &fakeChanges{summaries: []string{"abc1234 fix pool by dev at 2026-08-01T00:00:00Z"}}
	gen := &stubGenerator{candidates: []Candidate{{Title: "x"}}}
	p := NewPipeline(nil, NewAdapter(gen, 0, nil), changes, 0, 1)

	batch := []models.Event{{Type: "crash", CorrelationID: "req-1", Service: "payments", Level: models.SeverityError}}
	if _, err := p.Analyze(context.Background(), batch, "", pipelineGraph()); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(changes.services) != 1 || changes.services[0] != "payments" {
		t.Fatalf("change lookups = %v", changes.services)
	}
}

func TestAnalyzeChangeLookupFailureDegrades(t *testing.T) {
	changes := &fakeChanges{err: errors.New("forge down")}
	gen := &stubGenerator{candidates: []Candidate{{Title: "x"}}}
	p := NewPipeline(nil, NewAdapter(gen, 0, nil), changes, 0, 1)

	batch := []models.Event{{Type: "crash", CorrelationID: "req-1", Service: "payments", Level: models.SeverityError}}
	reports, err := p.Analyze(context.Background(), batch, "", pipelineGraph())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
}

func TestAnalyzeNilSnapshot(t *testing.T) {
	gen := &stubGenerator{candidates: []Candidate{{Title: "x"}}}
	p := NewPipeline(nil, NewAdapter(gen, 0, nil), nil, 0, 1)

	batch := []models.Event{{Type: "crash", CorrelationID: "req-1", Service: "ghost", Level: models.SeverityError}}
	reports, err := p.Analyze(context.Background(), batch, "", nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	if len(reports[0].AffectedServices) != 1 || reports[0].AffectedServices[0] != "ghost" {
		t.Fatalf("affected = %v", reports[0].AffectedServices)
	}
}

func TestAnalyzeExpiredContextAbandonsGroups(t *testing.T) {
	gen := &stubGenerator{candidates: []Candidate{{Title: "x"}}}
	p := NewPipeline(nil, NewAdapter(gen, 0, nil), nil, 0, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := []models.Event{{Type: "crash", CorrelationID: "req-1", Service: "payments", Level: models.SeverityError}}
	reports, err := p.Analyze(ctx, batch, "", pipelineGraph())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("reports = %d, want 0 after cancellation", len(reports))
	}
	if gen.callCount() != 0 {
		t.Fatalf("generator should not run after cancellation")
	}
}
