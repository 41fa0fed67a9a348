package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/incidentstack/faultline/internal/graph"
	"github.com/incidentstack/faultline/internal/models"
)

const testRulePack = `
rules:
  - id: payment-timeout
    match:
      event_contains: ["payment", "timeout"]
    hypothesis:
      title: Payment Provider Timeout
      confidence: 70
      suggested_actions: ["check provider status"]
  - id: error-burst
    match:
      level: error
    hypothesis:
      title: Error Burst
      confidence: 55
  - id: db-only
    match:
      service: database
    hypothesis:
      title: Database Trouble
`

func loadTestRules(t *testing.T) *RuleGenerator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(testRulePack), 0o644); err != nil {
		t.Fatalf("write rule pack: %v", err)
	}
	gen, err := NewRuleGenerator(path, nil)
	if err != nil {
		t.Fatalf("load rule pack: %v", err)
	}
	if gen == nil {
		t.Fatalf("expected generator")
	}
	return gen
}

func TestRuleGeneratorMatches(t *testing.T) {
	gen := loadTestRules(t)
	bundle := EvidenceBundle{
		Siblings: []models.Event{
			{Type: "payment_timeout", Level: models.SeverityError},
		},
		Impact: graph.ImpactResult{Service: "payments", DirectDependents: []string{"checkout"}},
	}

	candidates, err := gen.Generate(context.Background(), bundle)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, want 2 (timeout + error burst)", len(candidates))
	}
	first := candidates[0]
	if first.Title != "Payment Provider Timeout" {
		t.Fatalf("title = %q", first.Title)
	}
	if first.Confidence == nil || *first.Confidence != 70 {
		t.Fatalf("confidence = %v", first.Confidence)
	}
	if len(first.Evidence) != 1 || first.Evidence[0].Source != "rule:payment-timeout" {
		t.Fatalf("evidence = %+v", first.Evidence)
	}
	if len(first.RelatedServices) != 1 || first.RelatedServices[0] != "checkout" {
		t.Fatalf("related = %v", first.RelatedServices)
	}
}

func TestRuleGeneratorNoMatch(t *testing.T) {
	gen := loadTestRules(t)
	bundle := EvidenceBundle{
		Siblings: []models.Event{{Type: "heartbeat", Level: models.SeverityInfo}},
		Impact:   graph.ImpactResult{Service: "web"},
	}

	candidates, err := gen.Generate(context.Background(), bundle)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %+v, want none", candidates)
	}
}

func TestRuleGeneratorServiceMatchesImpactSets(t *testing.T) {
	gen := loadTestRules(t)
	bundle := EvidenceBundle{
		Siblings: []models.Event{{Type: "slow_query", Level: models.SeverityWarn}},
		Impact:   graph.ImpactResult{Service: "api", AllDependents: []string{"database"}},
	}

	candidates, err := gen.Generate(context.Background(), bundle)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Title != "Database Trouble" {
		t.Fatalf("candidates = %+v", candidates)
	}
	// Confidence omitted in the pack stays absent so the adapter defaults it.
	if candidates[0].Confidence != nil {
		t.Fatalf("confidence should be nil, got %v", *candidates[0].Confidence)
	}
}

func TestNewRuleGeneratorMissingPath(t *testing.T) {
	gen, err := NewRuleGenerator(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("missing pack should not error: %v", err)
	}
	if gen != nil {
		t.Fatalf("expected nil generator for missing pack")
	}
}
