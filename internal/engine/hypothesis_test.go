package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/incidentstack/faultline/internal/models"
)

type stubGenerator struct {
	mu         sync.Mutex
	candidates []Candidate
	err        error
	calls      int
}

func (s *stubGenerator) Generate(context.Context, EvidenceBundle) ([]Candidate, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.candidates, s.err
}

func (s *stubGenerator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func floatPtr(v float64) *float64 { return &v }

func TestHypothesizeNormalisesCandidates(t *testing.T) {
	gen := &stubGenerator{candidates: []Candidate{
		{
			Title:      "Bad deploy",
			Confidence: floatPtr(85),
			Evidence: []CandidateEvidence{
				{Type: "diff", Source: "repo", Detail: "config change", Confidence: floatPtr(90)},
				{Type: "bogus", Source: "logs", Detail: "stack trace"},
			},
			SuggestedActions: []string{"roll back"},
		},
		{Description: "no title, no confidence"},
	}}
	adapter := NewAdapter(gen, 0, nil)

	hyps := adapter.Hypothesize(context.Background(), EvidenceBundle{})
	if len(hyps) != 2 {
		t.Fatalf("hypotheses = %d, want 2", len(hyps))
	}

	first := hyps[0]
	if first.Confidence != 85 {
		t.Fatalf("confidence = %v", first.Confidence)
	}
	if first.Evidence[0].Type != models.EvidenceDiff {
		t.Fatalf("evidence type = %v", first.Evidence[0].Type)
	}
	// Unknown evidence type defaults to log, missing score defaults to 50.
	if first.Evidence[1].Type != models.EvidenceLog || first.Evidence[1].Confidence != 50 {
		t.Fatalf("evidence defaults = %+v", first.Evidence[1])
	}

	second := hyps[1]
	if second.Confidence != 50 {
		t.Fatalf("missing confidence should default to 50, got %v", second.Confidence)
	}
	if second.Title == "" {
		t.Fatalf("empty title should be replaced")
	}
	if second.SuggestedActions == nil || second.RelatedServices == nil {
		t.Fatalf("nil slices should be normalised to empty")
	}
	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Fatalf("hypothesis ids must be unique and non-empty: %q %q", first.ID, second.ID)
	}
}

func TestHypothesizeClampsConfidence(t *testing.T) {
	gen := &stubGenerator{candidates: []Candidate{
		{Title: "over", Confidence: floatPtr(150)},
		{Title: "under", Confidence: floatPtr(-20)},
	}}
	hyps := NewAdapter(gen, 0, nil).Hypothesize(context.Background(), EvidenceBundle{})

	if hyps[0].Confidence != 100 {
		t.Fatalf("confidence above range = %v, want 100", hyps[0].Confidence)
	}
	if hyps[1].Confidence != 0 {
		t.Fatalf("confidence below range = %v, want 0", hyps[1].Confidence)
	}
}

func TestHypothesizeFallbackOnError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model unavailable")}
	hyps := NewAdapter(gen, 0, nil).Hypothesize(context.Background(), EvidenceBundle{})

	if len(hyps) != 1 {
		t.Fatalf("hypotheses = %d, want 1", len(hyps))
	}
	assertFallback(t, hyps[0])
}

func TestHypothesizeFallbackOnEmptyResult(t *testing.T) {
	gen := &stubGenerator{}
	hyps := NewAdapter(gen, 0, nil).Hypothesize(context.Background(), EvidenceBundle{})

	if len(hyps) != 1 {
		t.Fatalf("hypotheses = %d, want 1", len(hyps))
	}
	assertFallback(t, hyps[0])
}

func TestHypothesizeNilGenerator(t *testing.T) {
	hyps := NewAdapter(nil, 0, nil).Hypothesize(context.Background(), EvidenceBundle{})
	if len(hyps) != 1 {
		t.Fatalf("hypotheses = %d, want 1", len(hyps))
	}
	assertFallback(t, hyps[0])
}

func assertFallback(t *testing.T, h models.Hypothesis) {
	t.Helper()
	if h.Title != "Service Dependency Failure" {
		t.Fatalf("title = %q", h.Title)
	}
	if h.Confidence != 60 {
		t.Fatalf("confidence = %v, want 60", h.Confidence)
	}
	if len(h.Evidence) != 1 || h.Evidence[0].Type != models.EvidenceLog || h.Evidence[0].Confidence != 70 {
		t.Fatalf("fallback evidence = %+v", h.Evidence)
	}
	if len(h.SuggestedActions) != 3 {
		t.Fatalf("suggested actions = %d, want 3", len(h.SuggestedActions))
	}
	if len(h.RelatedServices) != 0 {
		t.Fatalf("related services = %v, want empty", h.RelatedServices)
	}
	if !strings.HasPrefix(h.ID, "hyp-") {
		t.Fatalf("id = %q", h.ID)
	}
}
