package engine

import (
	"log/slog"

	"github.com/incidentstack/faultline/internal/models"
)

// UncorrelatedKey is the group key assigned to events arriving without a
// correlation id. The group is scoped to its batch; uncorrelated events are
// never merged across batches.
const UncorrelatedKey = "uncorrelated"

// Correlator groups a batch of events by correlation id.
type Correlator struct {
	logger *slog.Logger
}

// NewCorrelator constructs a Correlator.
func NewCorrelator(logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{logger: logger}
}

// Group partitions the batch into correlation groups in a single pass. Groups
// appear in first-seen order and events keep their arrival order within each
// group.
func (c *Correlator) Group(batch []models.Event) []models.CorrelationGroup {
	index := make(map[string]int, len(batch))
	groups := make([]models.CorrelationGroup, 0, len(batch))

	for _, event := range batch {
		key := event.CorrelationID
		if key == "" {
			key = UncorrelatedKey
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, models.CorrelationGroup{Key: key})
		}
		groups[i].Events = append(groups[i].Events, event)
	}

	if len(groups) > 0 {
		c.logger.Debug("batch correlated",
			slog.Int("events", len(batch)),
			slog.Int("groups", len(groups)))
	}
	return groups
}

// CriticalSubset returns the events in the group worth analysing: priority
// high, or level error/critical. An empty result means the group is skipped.
func CriticalSubset(events []models.Event) []models.Event {
	var critical []models.Event
	for _, event := range events {
		if event.IsCritical() {
			critical = append(critical, event)
		}
	}
	return critical
}
