package engine

import (
	"testing"

	"github.com/incidentstack/faultline/internal/models"
)

func TestGroupPartitionsByCorrelationID(t *testing.T) {
	batch := []models.Event{
		{Type: "a", CorrelationID: "req-1"},
		{Type: "b", CorrelationID: "req-2"},
		{Type: "c", CorrelationID: "req-1"},
		{Type: "d"},
		{Type: "e", CorrelationID: "req-2"},
	}

	groups := NewCorrelator(nil).Group(batch)
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}

	// First-seen order, events in arrival order within each group.
	if groups[0].Key != "req-1" || groups[1].Key != "req-2" || groups[2].Key != UncorrelatedKey {
		t.Fatalf("group keys = %q %q %q", groups[0].Key, groups[1].Key, groups[2].Key)
	}
	if groups[0].Events[0].Type != "a" || groups[0].Events[1].Type != "c" {
		t.Fatalf("req-1 events out of order: %+v", groups[0].Events)
	}

	total := 0
	for _, g := range groups {
		if len(g.Events) == 0 {
			t.Fatalf("group %q is empty", g.Key)
		}
		total += len(g.Events)
	}
	if total != len(batch) {
		t.Fatalf("events across groups = %d, want %d", total, len(batch))
	}
}

func TestGroupEmptyBatch(t *testing.T) {
	if groups := NewCorrelator(nil).Group(nil); len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestCriticalSubset(t *testing.T) {
	events := []models.Event{
		{Type: "noise", Level: models.SeverityInfo},
		{Type: "crash", Level: models.SeverityError},
		{Type: "urgent", Level: models.SeverityInfo, Priority: models.PriorityHigh},
		{Type: "fatal", Level: models.SeverityCritical},
		{Type: "slow", Level: models.SeverityWarn, Priority: models.PriorityMedium},
	}

	critical := CriticalSubset(events)
	if len(critical) != 3 {
		t.Fatalf("critical = %d, want 3", len(critical))
	}
	if critical[0].Type != "crash" || critical[1].Type != "urgent" || critical[2].Type != "fatal" {
		t.Fatalf("critical subset out of order: %+v", critical)
	}
}

func TestCriticalSubsetAllNoise(t *testing.T) {
	events := []models.Event{
		{Type: "a", Level: models.SeverityInfo},
		{Type: "b", Level: models.SeverityDebug, Priority: models.PriorityLow},
	}
	if critical := CriticalSubset(events); len(critical) != 0 {
		t.Fatalf("expected empty subset, got %+v", critical)
	}
}
