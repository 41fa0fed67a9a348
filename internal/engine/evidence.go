package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/incidentstack/faultline/internal/graph"
	"github.com/incidentstack/faultline/internal/models"
)

// EvidenceBundle is the sole input handed to hypothesis generators. No other
// context leaks into the generator call.
type EvidenceBundle struct {
	Trigger       models.Event
	Environment   string
	Siblings      []models.Event
	Impact        graph.ImpactResult
	RecentChanges []string
}

// NewEvidenceBundle assembles the bundle for one correlation group. Siblings
// are the full group in arrival order, including the trigger itself.
func NewEvidenceBundle(trigger models.Event, group models.CorrelationGroup, impact graph.ImpactResult, changes []string, environment string) EvidenceBundle {
	return EvidenceBundle{
		Trigger:       trigger,
		Environment:   environment,
		Siblings:      group.Events,
		Impact:        impact,
		RecentChanges: changes,
	}
}

// Render flattens the bundle into a deterministic text block. Section order is
// fixed: trigger, raw details, correlated events, impact sets, recent changes.
func (b EvidenceBundle) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Trigger event: %s\n", b.Trigger.Type)
	fmt.Fprintf(&sb, "Service: %s\n", b.Trigger.AffectedService())
	fmt.Fprintf(&sb, "Error code: %s\n", valueOr(b.Trigger.Metadata.ErrorCode, "none"))
	fmt.Fprintf(&sb, "Timestamp: %s\n", formatTime(b.Trigger.Timestamp))
	fmt.Fprintf(&sb, "Environment: %s\n", valueOr(b.Environment, "unspecified"))

	sb.WriteString("\nDetails:\n")
	if len(b.Trigger.Details) == 0 {
		sb.WriteString("  (empty)\n")
	} else {
		keys := make([]string, 0, len(b.Trigger.Details))
		for k := range b.Trigger.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %v\n", k, b.Trigger.Details[k])
		}
	}

	fmt.Fprintf(&sb, "\nCorrelated events (%d):\n", len(b.Siblings))
	for _, event := range b.Siblings {
		fmt.Fprintf(&sb, "  %s %s service=%s level=%s\n",
			formatTime(event.Timestamp), event.Type, event.AffectedService(), event.Level)
	}

	sb.WriteString("\nDependency impact:\n")
	fmt.Fprintf(&sb, "  depends on: %s\n", listOr(b.Impact.Dependencies, "none"))
	fmt.Fprintf(&sb, "  direct dependents: %s\n", listOr(b.Impact.DirectDependents, "none"))
	fmt.Fprintf(&sb, "  all dependents: %s\n", listOr(b.Impact.AllDependents, "none"))

	sb.WriteString("\nRecent changes:\n")
	if len(b.RecentChanges) == 0 {
		sb.WriteString("  none detected\n")
	} else {
		for _, change := range b.RecentChanges {
			fmt.Fprintf(&sb, "  - %s\n", change)
		}
	}

	return sb.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func listOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}
