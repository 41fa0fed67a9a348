package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleGenerator is the deterministic Generator used when no model backend is
// configured. It matches declarative rules against the evidence bundle and
// emits their hypothesis templates.
type RuleGenerator struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule pairs matching conditions with a hypothesis template.
type Rule struct {
	ID         string         `yaml:"id"`
	Match      RuleMatch      `yaml:"match"`
	Hypothesis RuleHypothesis `yaml:"hypothesis"`
}

// RuleMatch defines optional attributes for rule matching. Empty fields match
// everything.
type RuleMatch struct {
	Service       string   `yaml:"service"`
	Level         string   `yaml:"level"`
	EventContains []string `yaml:"event_contains"`
}

// RuleHypothesis is the template emitted when a rule matches.
type RuleHypothesis struct {
	Title            string   `yaml:"title"`
	Description      string   `yaml:"description"`
	Confidence       float64  `yaml:"confidence"`
	SuggestedActions []string `yaml:"suggested_actions"`
}

// RulePackFile is the YAML root structure of a rule pack.
type RulePackFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleGenerator loads rules from the provided path. An empty or missing
// path returns a nil generator (caller falls through to the adapter fallback).
func NewRuleGenerator(path string, logger *slog.Logger) (*RuleGenerator, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var pack RulePackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleGenerator{rules: pack.Rules, logger: logger}, nil
}

// Generate emits one candidate per matching rule, in rule-pack order. An
// empty result triggers the adapter fallback.
func (g *RuleGenerator) Generate(_ context.Context, bundle EvidenceBundle) ([]Candidate, error) {
	if g == nil {
		return nil, nil
	}

	var candidates []Candidate
	for _, rule := range g.rules {
		if !ruleMatches(rule.Match, bundle) {
			continue
		}
		confidence := rule.Hypothesis.Confidence
		candidate := Candidate{
			Title:            rule.Hypothesis.Title,
			Description:      rule.Hypothesis.Description,
			SuggestedActions: rule.Hypothesis.SuggestedActions,
			RelatedServices:  bundle.Impact.DirectDependents,
			Evidence: []CandidateEvidence{{
				Type:   string(evidenceTypeCorrelation),
				Source: "rule:" + rule.ID,
				Detail: "Matched rule " + rule.ID + " against the correlated event group",
			}},
		}
		if confidence > 0 {
			candidate.Confidence = &confidence
		}
		candidates = append(candidates, candidate)
	}

	if len(candidates) > 0 {
		g.logger.Debug("rule pack matched", slog.Int("candidates", len(candidates)))
	}
	return candidates, nil
}

const evidenceTypeCorrelation = "correlation"

func ruleMatches(match RuleMatch, bundle EvidenceBundle) bool {
	if match.Service != "" && !serviceInBundle(match.Service, bundle) {
		return false
	}
	if match.Level != "" && !levelInGroup(match.Level, bundle) {
		return false
	}
	if len(match.EventContains) > 0 && !eventTypeContains(match.EventContains, bundle) {
		return false
	}
	return true
}

func serviceInBundle(service string, bundle EvidenceBundle) bool {
	if strings.EqualFold(service, bundle.Impact.Service) {
		return true
	}
	for _, s := range bundle.Impact.AllDependents {
		if strings.EqualFold(service, s) {
			return true
		}
	}
	return false
}

func levelInGroup(level string, bundle EvidenceBundle) bool {
	for _, event := range bundle.Siblings {
		if strings.EqualFold(level, string(event.Level)) {
			return true
		}
	}
	return false
}

func eventTypeContains(keywords []string, bundle EvidenceBundle) bool {
	for _, event := range bundle.Siblings {
		eventType := strings.ToLower(event.Type)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(eventType, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}
