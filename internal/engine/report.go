package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/incidentstack/faultline/internal/graph"
	"github.com/incidentstack/faultline/internal/models"
)

// BuildReport ranks hypotheses and assembles the final report for one
// correlation group. Sorting is stable: equal confidence keeps generator
// order. Affected services start with the primary service followed by its
// transitive dependents in discovery order, deduplicated.
func BuildReport(group models.CorrelationGroup, trigger models.Event, impact graph.ImpactResult, hypotheses []models.Hypothesis, now time.Time) models.AnalysisReport {
	ranked := append([]models.Hypothesis(nil), hypotheses...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	affected := uniqueStrings(append([]string{impact.Service}, impact.AllDependents...))

	return models.AnalysisReport{
		CorrelationID:    group.Key,
		TriggerEventType: trigger.Type,
		GeneratedAt:      now.UTC(),
		Hypotheses:       ranked,
		AffectedServices: affected,
		Summary:          summarise(trigger.Type, impact.Service, ranked),
	}
}

// summarise produces the one-line report headline. Placeholder text stands in
// when no hypothesis survived normalisation.
func summarise(eventType, service string, ranked []models.Hypothesis) string {
	topTitle := "Unknown"
	topConfidence := 0.0
	if len(ranked) > 0 {
		topTitle = ranked[0].Title
		topConfidence = ranked[0].Confidence
	}
	return fmt.Sprintf("%s on %s: top hypothesis %q at %.0f%% confidence (%d candidates)",
		eventType, service, topTitle, topConfidence, len(ranked))
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
