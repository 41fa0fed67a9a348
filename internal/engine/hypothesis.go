package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/incidentstack/faultline/internal/metrics"
	"github.com/incidentstack/faultline/internal/models"
)

// Generator produces root-cause candidates from an evidence bundle. It is a
// replaceable black box: implementations may be model-backed or rule-based,
// may fail, and may return incomplete candidates.
type Generator interface {
	Generate(ctx context.Context, bundle EvidenceBundle) ([]Candidate, error)
}

// Candidate is a raw, possibly incomplete hypothesis as returned by a
// generator. Pointer fields distinguish "absent" from zero.
type Candidate struct {
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	Confidence       *float64            `json:"confidence,omitempty"`
	Evidence         []CandidateEvidence `json:"evidence,omitempty"`
	SuggestedActions []string            `json:"suggested_actions,omitempty"`
	RelatedServices  []string            `json:"related_services,omitempty"`
}

// CandidateEvidence is one raw evidence entry inside a candidate.
type CandidateEvidence struct {
	Type       string   `json:"type"`
	Source     string   `json:"source"`
	Detail     string   `json:"detail"`
	Confidence *float64 `json:"confidence,omitempty"`
}

const (
	defaultConfidence         = 50
	fallbackConfidence        = 60
	fallbackEvidenceScore     = 70
	fallbackTitle             = "Service Dependency Failure"
	fallbackDescription       = "The failing service or one of its declared dependencies is the most likely root cause. The correlated events follow the declared dependency topology."
	fallbackEvidenceDetail    = "Correlated error events align with the declared dependency relationships"
	fallbackEvidenceSource    = "dependency-analysis"
	untitledHypothesisDefault = "Unlabeled hypothesis"
)

// Adapter invokes a Generator and normalises its output into Hypothesis
// records, substituting the deterministic fallback whenever the call fails,
// times out, or yields nothing usable. The pipeline always gets at least one
// hypothesis back.
type Adapter struct {
	generator Generator
	timeout   time.Duration
	logger    *slog.Logger
}

// NewAdapter constructs an Adapter. generator may be nil, in which case every
// call returns the fallback.
func NewAdapter(generator Generator, timeout time.Duration, logger *slog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{generator: generator, timeout: timeout, logger: logger}
}

// Hypothesize runs the generator with a bounded call and returns normalised
// hypotheses in generator order.
func (a *Adapter) Hypothesize(ctx context.Context, bundle EvidenceBundle) []models.Hypothesis {
	if a.generator == nil {
		return []models.Hypothesis{FallbackHypothesis()}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	candidates, err := a.generator.Generate(callCtx, bundle)
	if err != nil || len(candidates) == 0 {
		a.logger.Warn("hypothesis generation failed, using fallback",
			slog.String("correlation_id", bundle.Trigger.CorrelationID),
			slog.Any("error", err))
		metrics.ObserveFallback()
		return []models.Hypothesis{FallbackHypothesis()}
	}

	hypotheses := make([]models.Hypothesis, 0, len(candidates))
	for i, candidate := range candidates {
		hypotheses = append(hypotheses, normalise(candidate, i))
	}
	return hypotheses
}

// normalise repairs a raw candidate into a Hypothesis, filling absent optional
// fields with safe defaults instead of rejecting the candidate.
func normalise(c Candidate, ordinal int) models.Hypothesis {
	confidence := float64(defaultConfidence)
	if c.Confidence != nil {
		confidence = clampScore(*c.Confidence)
	}

	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = untitledHypothesisDefault
	}

	evidence := make([]models.EvidenceItem, 0, len(c.Evidence))
	for _, e := range c.Evidence {
		score := float64(defaultConfidence)
		if e.Confidence != nil {
			score = clampScore(*e.Confidence)
		}
		evidence = append(evidence, models.EvidenceItem{
			Type:       parseEvidenceType(e.Type),
			Source:     e.Source,
			Detail:     e.Detail,
			Confidence: score,
		})
	}

	actions := c.SuggestedActions
	if actions == nil {
		actions = []string{}
	}
	related := c.RelatedServices
	if related == nil {
		related = []string{}
	}

	return models.Hypothesis{
		ID:               newHypothesisID(ordinal),
		Title:            title,
		Description:      c.Description,
		Confidence:       confidence,
		Evidence:         evidence,
		SuggestedActions: actions,
		RelatedServices:  related,
	}
}

// FallbackHypothesis is the deterministic hypothesis returned whenever
// generation fails. Fixed content; only the id varies.
func FallbackHypothesis() models.Hypothesis {
	return models.Hypothesis{
		ID:          newHypothesisID(0),
		Title:       fallbackTitle,
		Description: fallbackDescription,
		Confidence:  fallbackConfidence,
		Evidence: []models.EvidenceItem{{
			Type:       models.EvidenceLog,
			Source:     fallbackEvidenceSource,
			Detail:     fallbackEvidenceDetail,
			Confidence: fallbackEvidenceScore,
		}},
		SuggestedActions: []string{
			"Review recent deployments to the affected service",
			"Inspect error logs for the affected service and its direct dependencies",
			"Verify upstream dependency health and connectivity",
		},
		RelatedServices: []string{},
	}
}

func parseEvidenceType(value string) models.EvidenceType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "diff":
		return models.EvidenceDiff
	case "system_map":
		return models.EvidenceSystemMap
	case "correlation":
		return models.EvidenceCorrelation
	default:
		return models.EvidenceLog
	}
}

func clampScore(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func newHypothesisID(ordinal int) string {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Sprintf("hyp-%d", ordinal+1)
	}
	return "hyp-" + id
}
